package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/marinraf/StimuliApp-sub001/internal/design"
	"github.com/marinraf/StimuliApp-sub001/internal/events"
	"github.com/marinraf/StimuliApp-sub001/internal/resolver"
	"github.com/marinraf/StimuliApp-sub001/internal/rng"
	"github.com/marinraf/StimuliApp-sub001/internal/storage"
	"github.com/marinraf/StimuliApp-sub001/internal/timeline"
)

// CommandQueueSize bounds the commands waiting for the next frame.
const CommandQueueSize = 64

// ErrQueueFull is returned when a command cannot be queued.
var ErrQueueFull = errors.New("command queue full")

// Cursor locates the frame a checkpoint is fired on.
type Cursor struct {
	RunID   string `json:"run_id"`
	Section string `json:"section"`
	Trial   int    `json:"trial"`
	Scene   string `json:"scene"`
	Frame   int    `json:"frame"`
}

// CursorAware renderers are told where the run is before each frame.
type CursorAware interface {
	SetCursor(c Cursor)
}

// TrialPayload is the resolved content of a trial as sent to the renderer.
type TrialPayload struct {
	RunID      string                 `json:"run_id"`
	Section    string                 `json:"section"`
	Trial      int                    `json:"trial"`
	Block      int                    `json:"block,omitempty"`
	Values     map[string]interface{} `json:"values"`
	TrialValue interface{}            `json:"trial_value,omitempty"`
}

// TrialPublisher renderers receive the resolved values of each trial
// before its first scene starts.
type TrialPublisher interface {
	PublishTrial(p TrialPayload) error
}

// Observer receives run counters, e.g. for metrics.
type Observer interface {
	FrameAdvanced()
	CheckpointFired(action timeline.Action)
	TrialCompleted(section string, o Outcome)
	StateChanged(s RunState)
}

// Options configure a Runtime.
type Options struct {
	RunID string
	// Seeds override authored seeds, e.g. to replay a run.
	Seeds    rng.Seeds
	Renderer timeline.Renderer
	Observer Observer
}

type commandKind int

const (
	cmdResponse commandKind = iota
	cmdPause
	cmdResume
	cmdAbort
)

type command struct {
	kind     commandKind
	response *Response
	reason   string
}

// Runtime runs a design: it resolves every section up front, then drives
// the timeline scheduler one frame per Tick, scores trials and follows
// the section graph. Tick must be called from a single goroutine; the
// other methods are safe from any goroutine.
type Runtime struct {
	doc         *design.Document
	graph       *SectionGraph
	runID       string
	book        *rng.Book
	resolutions map[string]*resolver.Resolution
	progress    map[string]*SectionProgress
	renderer    timeline.Renderer
	observer    Observer
	sched       *timeline.Scheduler

	state      RunState
	started    bool
	restored   *RestoredState
	current    *SectionProgress
	section    *design.Section
	scene      int
	trial      resolver.ResolvedTrial
	responses  map[int]*Response
	ticks      uint64
	trialsDone int

	commands chan command

	mu     sync.RWMutex
	status Status
}

// NewRuntime indexes the section graph, records the run seeds and
// resolves every section. Every problem is reported before anything runs.
func NewRuntime(doc *design.Document, opts Options) (*Runtime, error) {
	if err := design.Validate(doc); err != nil {
		return nil, err
	}
	graph, err := NewSectionGraph(doc)
	if err != nil {
		return nil, err
	}

	book := rng.NewBook()
	keys := make([]string, 0, len(doc.Lists)+len(doc.Sections))
	for i := range doc.Lists {
		l := &doc.Lists[i]
		keys = append(keys, rng.ListKey(l.ID))
		if l.Seed != nil {
			book.Set(rng.ListKey(l.ID), *l.Seed)
		}
	}
	for i := range doc.Sections {
		s := &doc.Sections[i]
		keys = append(keys, rng.SectionKey(s.ID))
		if s.Seed != nil {
			book.Set(rng.SectionKey(s.ID), *s.Seed)
		}
	}
	for k, v := range opts.Seeds {
		book.Set(k, v)
	}
	if err := book.Ensure(keys...); err != nil {
		return nil, fmt.Errorf("failed to draw seeds: %w", err)
	}

	var p design.Problems
	seeds := book.Seeds()
	resolutions := make(map[string]*resolver.Resolution, len(doc.Sections))
	for i := range doc.Sections {
		res, err := resolver.Resolve(doc, &doc.Sections[i], seeds)
		if err != nil {
			p.Merge(err)
			continue
		}
		resolutions[res.SectionID] = res
	}
	if err := p.Err(); err != nil {
		return nil, err
	}

	r := &Runtime{
		doc:         doc,
		graph:       graph,
		runID:       opts.RunID,
		book:        book,
		resolutions: resolutions,
		progress:    make(map[string]*SectionProgress, len(resolutions)),
		renderer:    opts.Renderer,
		observer:    opts.Observer,
		state:       RunStateIdle,
		commands:    make(chan command, CommandQueueSize),
	}
	for id, res := range resolutions {
		r.progress[id] = NewSectionProgress(res)
	}
	r.sched = timeline.New(timeline.RendererFunc(r.onCheckpoint), true)
	r.publishStatus()
	return r, nil
}

// RunID returns the run id.
func (r *Runtime) RunID() string { return r.runID }

// Graph returns the section graph.
func (r *Runtime) Graph() *SectionGraph { return r.graph }

// Seeds returns every seed of the run.
func (r *Runtime) Seeds() rng.Seeds { return r.book.Seeds() }

// Resolution returns the resolved trials of a section. Resolutions do not
// change after NewRuntime.
func (r *Runtime) Resolution(sectionID string) (*resolver.Resolution, bool) {
	res, ok := r.resolutions[sectionID]
	return res, ok
}

// Start enters the first section, or the section a restored run stopped in.
// Start is called from the goroutine that ticks.
func (r *Runtime) Start() error {
	if r.started {
		return fmt.Errorf("run %s already started", r.runID)
	}
	r.started = true

	if rs := r.restored; rs != nil {
		r.emitEvent("run.restored", map[string]interface{}{
			"run_id":  r.runID,
			"trials":  len(rs.Trials),
			"section": rs.Section,
		})
		if rs.Completed || rs.Section == "" {
			r.setState(RunStateCompleted)
			r.publishStatus()
			return nil
		}
		r.setState(RunStateRunning)
		r.enterSection(rs.Section)
		r.publishStatus()
		return nil
	}

	seeds := r.book.Seeds()
	seedFields := make(map[string]interface{}, len(seeds))
	for k, v := range seeds {
		seedFields[k] = strconv.FormatUint(v, 10)
	}
	r.emitEvent("run.started", map[string]interface{}{
		"run_id":        r.runID,
		"design":        r.doc.Name,
		"first_section": r.graph.First(),
		"frame_rate":    r.doc.FrameRate,
		"seeds":         seedFields,
	})
	for _, k := range r.book.Generated() {
		r.emitEvent("run.seed", map[string]interface{}{
			"key":  k,
			"seed": strconv.FormatUint(seeds[k], 10),
		})
	}

	r.setState(RunStateRunning)
	r.enterSection(r.graph.First())
	r.publishStatus()
	return nil
}

// Tick applies queued commands and runs one frame. It returns false once
// the run has finished.
func (r *Runtime) Tick() bool {
	r.drainCommands()
	if r.state.Finished() || !r.started {
		r.publishStatus()
		return !r.state.Finished()
	}

	if r.state != RunStatePaused {
		if r.sched.State() == timeline.Running {
			r.ticks++
			r.setCursor()
			r.sched.Advance()
			if r.observer != nil {
				r.observer.FrameAdvanced()
			}
		}
		// A deferred scene answered while it was still running ends at once.
		if r.sched.State() == timeline.AwaitingResponse && r.responses[r.scene] != nil {
			r.sched.SubmitResponse()
		}
		if r.sched.State() == timeline.SceneEnded {
			r.endScene()
		}
		if !r.state.Finished() {
			if r.sched.State() == timeline.AwaitingResponse {
				r.setState(RunStateAwaiting)
			} else {
				r.setState(RunStateRunning)
			}
		}
	}

	r.publishStatus()
	return !r.state.Finished()
}

// Run calls Tick for every value received on ticks until the run finishes
// or ctx is done.
func (r *Runtime) Run(ctx context.Context, ticks <-chan struct{}) error {
	if !r.started {
		if err := r.Start(); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticks:
			if !ok {
				return nil
			}
			if !r.Tick() {
				return nil
			}
		}
	}
}

// FrameTicker sends one tick per frame at frameRate until ctx is done.
func FrameTicker(ctx context.Context, frameRate int) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		defer close(out)
		t := time.NewTicker(time.Second / time.Duration(frameRate))
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// SubmitResponse queues a participant response for the current scene.
func (r *Runtime) SubmitResponse(resp Response) error {
	return r.enqueue(command{kind: cmdResponse, response: &resp})
}

// Pause queues a pause of the frame loop.
func (r *Runtime) Pause() error { return r.enqueue(command{kind: cmdPause}) }

// Resume queues the end of a pause.
func (r *Runtime) Resume() error { return r.enqueue(command{kind: cmdResume}) }

// Abort queues the end of the run.
func (r *Runtime) Abort(reason string) error {
	return r.enqueue(command{kind: cmdAbort, reason: reason})
}

func (r *Runtime) enqueue(c command) error {
	select {
	case r.commands <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// Status returns a snapshot of the run.
func (r *Runtime) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.status
	s.Sections = append([]SectionStatus(nil), r.status.Sections...)
	return s
}

func (r *Runtime) drainCommands() {
	for {
		select {
		case c := <-r.commands:
			r.apply(c)
		default:
			return
		}
	}
}

func (r *Runtime) apply(c command) {
	switch c.kind {
	case cmdPause:
		if r.state != RunStateRunning && r.state != RunStateAwaiting {
			return
		}
		r.sched.Pause()
		r.setState(RunStatePaused)
		r.emitEvent("run.paused", map[string]interface{}{"run_id": r.runID})
	case cmdResume:
		if r.state != RunStatePaused {
			return
		}
		r.sched.Resume()
		r.setState(RunStateRunning)
		r.emitEvent("run.resumed", map[string]interface{}{"run_id": r.runID})
	case cmdAbort:
		if r.state.Finished() {
			return
		}
		r.sched.Interrupt()
		r.setState(RunStateAborted)
		r.emitEvent("run.aborted", map[string]interface{}{"run_id": r.runID, "reason": c.reason})
	case cmdResponse:
		r.applyResponse(c.response)
	}
}

func (r *Runtime) applyResponse(resp *Response) {
	reject := func(msg string) {
		fields := resp.Fields()
		fields["error"] = msg
		events.Emit("warn", "response.rejected", msg, fields)
	}
	if !r.started || r.state.Finished() || r.section == nil {
		reject("no scene is running")
		return
	}
	scene := r.scene
	if resp.Scene != "" {
		scene = r.section.SceneIndex(resp.Scene)
		if scene != r.scene {
			reject(fmt.Sprintf("scene %q is not the current scene", resp.Scene))
			return
		}
	}
	sc := &r.section.Scenes[scene]
	if sc.Response.Type == design.ResponseNone {
		reject(fmt.Sprintf("scene %q accepts no response", sc.ID))
		return
	}
	if _, dup := r.responses[scene]; dup {
		reject(fmt.Sprintf("scene %q already has a response", sc.ID))
		return
	}

	switch r.sched.State() {
	case timeline.Running, timeline.Paused:
		r.responses[scene] = resp
		if sc.Response.EndsScene {
			r.sched.Interrupt()
		}
	case timeline.AwaitingResponse:
		r.responses[scene] = resp
		r.sched.SubmitResponse()
	default:
		reject(fmt.Sprintf("scene %q is not accepting responses", sc.ID))
		return
	}

	fields := resp.Fields()
	fields["section"] = r.section.ID
	fields["trial"] = r.current.Trial
	fields["scene"] = sc.ID
	fields["frame"] = r.sched.Frame()
	r.emitEvent("response.received", fields)
}

func (r *Runtime) onCheckpoint(action timeline.Action, object int) {
	if r.renderer != nil {
		r.renderer.OnCheckpoint(action, object)
	}
	if r.observer != nil {
		r.observer.CheckpointFired(action)
	}
	fields := map[string]interface{}{
		"action": action.String(),
		"object": object,
		"frame":  r.sched.Frame(),
	}
	if r.section != nil {
		fields["section"] = r.section.ID
		fields["scene"] = r.section.Scenes[r.scene].ID
		fields["trial"] = r.current.Trial
	}
	events.Emit("debug", "checkpoint.fired", "", fields)
}

func (r *Runtime) setCursor() {
	ca, ok := r.renderer.(CursorAware)
	if !ok || r.section == nil {
		return
	}
	ca.SetCursor(Cursor{
		RunID:   r.runID,
		Section: r.section.ID,
		Trial:   r.current.Trial,
		Scene:   r.section.Scenes[r.scene].ID,
		Frame:   r.sched.Frame(),
	})
}

func (r *Runtime) enterSection(id string) {
	sec, ok := r.graph.Section(id)
	if !ok {
		r.fail(fmt.Errorf("section %q not found", id))
		return
	}
	r.section = sec
	r.current = r.progress[id]
	r.current.Visits++
	r.emitEvent("section.started", map[string]interface{}{
		"section": id,
		"visit":   r.current.Visits,
		"trial":   r.current.Trial,
	})
	r.enterTrial()
}

func (r *Runtime) enterTrial() {
	tr, err := r.current.CurrentTrial()
	if err != nil {
		r.fail(err)
		return
	}
	r.trial = tr
	r.responses = make(map[int]*Response)

	payload := r.trialPayload()
	r.emitEvent("trial.started", map[string]interface{}{
		"section": payload.Section,
		"trial":   payload.Trial,
		"block":   payload.Block,
		"values":  payload.Values,
	})
	if tp, ok := r.renderer.(TrialPublisher); ok {
		if err := tp.PublishTrial(payload); err != nil {
			events.Emit("error", "renderer.error", err.Error(), map[string]interface{}{
				"section": payload.Section,
				"trial":   payload.Trial,
			})
		}
	}
	r.enterScene(0)
}

func (r *Runtime) enterScene(i int) {
	r.scene = i
	sc := &r.section.Scenes[i]
	ov := timeline.OverridesFor(r.current.Res, r.trial, i)
	cps, err := timeline.Build(sc, ov, r.doc.FrameRate)
	if err != nil {
		r.fail(err)
		return
	}
	if err := r.sched.Load(cps, sc.Response.Type.Deferred()); err != nil {
		r.fail(err)
		return
	}
	r.emitEvent("scene.started", map[string]interface{}{
		"section":     r.section.ID,
		"trial":       r.current.Trial,
		"scene":       sc.ID,
		"checkpoints": len(cps),
		"end_frame":   cps[len(cps)-1].Frame,
	})
}

func (r *Runtime) endScene() {
	sc := &r.section.Scenes[r.scene]
	r.emitEvent("scene.completed", map[string]interface{}{
		"section": r.section.ID,
		"trial":   r.current.Trial,
		"scene":   sc.ID,
		"frame":   r.sched.Frame(),
	})
	if r.scene+1 < len(r.section.Scenes) {
		r.enterScene(r.scene + 1)
		return
	}
	r.sched.Complete()
	r.finishTrial()
}

// outcome scores the trial. Without a response binding a trial counts as
// responded when every scene that takes input got an on-time response.
func (r *Runtime) outcome() (Outcome, *Response) {
	sec := r.section
	if b := sec.Response; b != nil {
		resp := r.responses[sec.SceneIndex(b.Scene)]
		return Score(b, r.trial.TrialValue, resp), resp
	}
	o := Outcome{Responded: true, InTime: true}
	for i := range sec.Scenes {
		if sec.Scenes[i].Response.Type == design.ResponseNone {
			continue
		}
		resp := r.responses[i]
		if resp == nil || !resp.OnTime() {
			o.Responded = false
			o.InTime = false
		}
	}
	return o, nil
}

func (r *Runtime) finishTrial() {
	p := r.current
	sec := r.section
	o, resp := r.outcome()
	p.Record(o)
	r.trialsDone++
	if r.observer != nil {
		r.observer.TrialCompleted(sec.ID, o)
	}

	for i, d := range p.Res.Dependent {
		r.emitEvent("staircase.step", map[string]interface{}{
			"section":  sec.ID,
			"variable": p.Res.Variables[d.Variable].ID,
			"correct":  o.Correct,
			"index":    p.Staircases[i].Index,
		})
	}

	payload := r.trialPayload()
	row := storage.TrialRow{
		RunID:      r.runID,
		Section:    sec.ID,
		Trial:      p.Trial,
		Values:     payload.Values,
		Responded:  o.Responded,
		Correct:    o.Correct,
		InTime:     o.InTime,
		Seed:       p.Res.Seed,
		RecordedAt: time.Now().UTC(),
	}
	if payload.TrialValue != nil {
		row.Values["trial_value"] = payload.TrialValue
	}
	if resp != nil {
		row.Response = resp.Fields()
	}
	events.PersistTrial(row)

	next, matched := NextSection(sec, p)
	fields := map[string]interface{}{
		"section":   sec.ID,
		"trial":     p.Trial,
		"responded": o.Responded,
		"in_time":   o.InTime,
		"correct":   o.Correct,
		"default":   o.Default,
		"next":      next,
		"matched":   matched,
	}
	if o.Measured != nil {
		fields["measured"] = o.Measured.Plain()
	}
	r.emitEvent("trial.completed", fields)

	p.Advance()

	if next == sec.ID {
		r.enterTrial()
		return
	}
	r.emitEvent("section.completed", map[string]interface{}{
		"section":   sec.ID,
		"completed": p.Completed,
		"accuracy":  p.Accuracy(0),
	})
	if next == "" {
		r.section = nil
		r.setState(RunStateCompleted)
		r.emitEvent("run.completed", map[string]interface{}{
			"run_id": r.runID,
			"trials": r.trialsDone,
		})
		return
	}
	r.emitEvent("section.transition", map[string]interface{}{
		"from":    sec.ID,
		"to":      next,
		"matched": matched,
	})
	r.enterSection(next)
}

func (r *Runtime) trialPayload() TrialPayload {
	res := r.current.Res
	values := make(map[string]interface{}, len(r.trial.Values))
	for i, v := range r.trial.Values {
		values[res.Variables[i].ID] = v.Value.Plain()
	}
	p := TrialPayload{
		RunID:   r.runID,
		Section: res.SectionID,
		Trial:   r.current.Trial,
		Block:   r.trial.Block,
		Values:  values,
	}
	if r.trial.TrialValue != nil {
		p.TrialValue = r.trial.TrialValue.Plain()
	}
	return p
}

// fail aborts the run on an error that makes it impossible to continue.
func (r *Runtime) fail(err error) {
	r.section = nil
	r.setState(RunStateAborted)
	events.Emit("error", "system.error", err.Error(), map[string]interface{}{"run_id": r.runID})
	r.emitEvent("run.aborted", map[string]interface{}{"run_id": r.runID, "reason": err.Error()})
}

func (r *Runtime) setState(s RunState) {
	if r.state == s {
		return
	}
	r.state = s
	if r.observer != nil {
		r.observer.StateChanged(s)
	}
}

func (r *Runtime) publishStatus() {
	s := Status{
		RunID:  r.runID,
		State:  r.state,
		Frame:  r.sched.Frame(),
		Ticks:  r.ticks,
		Trials: r.trialsDone,
	}
	if r.section != nil {
		s.Section = r.section.ID
		s.Trial = r.current.Trial
		s.Scene = r.section.Scenes[r.scene].ID
	}
	ids := make([]string, 0, len(r.progress))
	for id := range r.progress {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.Sections = make([]SectionStatus, 0, len(ids))
	for _, id := range ids {
		s.Sections = append(s.Sections, r.progress[id].Status())
	}

	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

func (r *Runtime) emitEvent(name string, fields map[string]interface{}) {
	events.Emit("info", name, "", fields)
}
