package timeline

import (
	"errors"
	"testing"
)

type fired struct {
	call   int
	action Action
	object int
}

type recorder struct {
	call   int
	events []fired
}

func (r *recorder) OnCheckpoint(a Action, obj int) {
	r.events = append(r.events, fired{call: r.call, action: a, object: obj})
}

func simpleTimeline() []Checkpoint {
	return []Checkpoint{
		{Frame: 0, Action: StartStimulus, Object: 0},
		{Frame: 30, Action: EndStimulus, Object: 0},
		{Frame: 30, Action: EndScene, Object: -1},
	}
}

func TestAdvanceFiresAtReachedFrames(t *testing.T) {
	rec := &recorder{}
	s := New(rec, true)
	if err := s.Load(simpleTimeline(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for call := 1; call <= 31; call++ {
		rec.call = call
		if !s.Advance() {
			t.Fatalf("call %d: expected Advance to run", call)
		}
	}

	want := []fired{
		{call: 1, action: StartStimulus, object: 0},
		{call: 31, action: EndStimulus, object: 0},
		{call: 31, action: EndScene, object: -1},
	}
	if len(rec.events) != len(want) {
		t.Fatalf("expected %d fired checkpoints, got %d: %+v", len(want), len(rec.events), rec.events)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("checkpoint %d: expected %+v, got %+v", i, want[i], rec.events[i])
		}
	}
	if s.State() != SceneEnded {
		t.Errorf("expected scene_ended, got %v", s.State())
	}

	rec.call = 32
	if s.Advance() {
		t.Error("expected Advance to do nothing after the scene ended")
	}
	if len(rec.events) != 3 {
		t.Errorf("expected no checkpoint to fire twice, got %d events", len(rec.events))
	}
}

func TestAdvanceCatchesUpLateCheckpoints(t *testing.T) {
	rec := &recorder{}
	s := New(rec, true)
	cps := []Checkpoint{
		{Frame: 0, Action: StartText, Object: 0},
		{Frame: 0, Action: StartAudio, Object: 1},
		{Frame: 2, Action: EndAudio, Object: 1},
		{Frame: 5, Action: EndScene, Object: -1},
	}
	if err := s.Load(cps, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Advance()
	if len(rec.events) != 2 || rec.events[0].action != StartText || rec.events[1].action != StartAudio {
		t.Errorf("expected both frame-0 checkpoints in declaration order, got %+v", rec.events)
	}
	if s.Frame() != 1 {
		t.Errorf("expected frame 1, got %d", s.Frame())
	}
}

func TestDeferredResponseBlocks(t *testing.T) {
	s := New(nil, true)
	if err := s.Load([]Checkpoint{{Frame: 1, Action: EndScene, Object: -1}}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Advance()
	s.Advance()
	if s.State() != AwaitingResponse {
		t.Fatalf("expected awaiting_response, got %v", s.State())
	}

	frame := s.Frame()
	if s.Advance() {
		t.Error("expected Advance to be a no-op while awaiting a response")
	}
	if s.Frame() != frame {
		t.Errorf("expected frame to stay %d, got %d", frame, s.Frame())
	}

	if !s.SubmitResponse() {
		t.Fatal("expected SubmitResponse to succeed")
	}
	if s.State() != SceneEnded {
		t.Errorf("expected scene_ended, got %v", s.State())
	}
	if !s.Complete() || s.State() != SectionComplete {
		t.Errorf("expected section_complete, got %v", s.State())
	}
}

func TestPauseResume(t *testing.T) {
	s := New(nil, true)
	s.Load(simpleTimeline(), false)
	s.Advance()
	if !s.Pause() {
		t.Fatal("expected Pause to succeed")
	}
	if s.Advance() {
		t.Error("expected paused scheduler not to advance")
	}
	if s.Frame() != 1 {
		t.Errorf("expected frame 1, got %d", s.Frame())
	}
	if !s.Resume() || !s.Advance() || s.Frame() != 2 {
		t.Errorf("expected resumed scheduler at frame 2, got %d", s.Frame())
	}
	if s.Resume() {
		t.Error("expected Resume on a running scheduler to fail")
	}
}

func TestReverseUndoesCheckpoints(t *testing.T) {
	rec := &recorder{}
	s := New(rec, false)
	s.Load(simpleTimeline(), false)

	for i := 0; i < 31; i++ {
		s.Advance()
	}
	rec.events = nil

	if !s.Reverse() {
		t.Fatal("expected Reverse to run")
	}
	if len(rec.events) != 1 || rec.events[0].action != StartStimulus {
		t.Errorf("expected undo of EndStimulus, got %+v", rec.events)
	}
	if s.Frame() != 30 || s.State() != Paused {
		t.Errorf("expected paused at frame 30, got %v at %d", s.State(), s.Frame())
	}

	for s.Reverse() {
	}
	if s.Frame() != 0 || s.Fired() != 0 {
		t.Errorf("expected rewind to frame 0 with nothing fired, got frame %d fired %d", s.Frame(), s.Fired())
	}
	last := rec.events[len(rec.events)-1]
	if last.action != EndStimulus {
		t.Errorf("expected final undo to end the stimulus, got %v", last.action)
	}

	s.Resume()
	s.Advance()
	if s.Fired() != 1 {
		t.Errorf("expected start to fire again, fired %d", s.Fired())
	}
}

func TestReverseOnLiveSchedulerPanics(t *testing.T) {
	s := New(nil, true)
	s.Load(simpleTimeline(), false)
	s.Advance()

	defer func() {
		r := recover()
		var av *AssertionViolation
		err, _ := r.(error)
		if !errors.As(err, &av) {
			t.Errorf("expected AssertionViolation panic, got %v", r)
		}
	}()
	s.Reverse()
}

func TestReentrantAdvancePanics(t *testing.T) {
	var s *Scheduler
	s = New(RendererFunc(func(Action, int) { s.Advance() }), true)
	s.Load(simpleTimeline(), false)

	defer func() {
		if _, ok := recover().(*AssertionViolation); !ok {
			t.Error("expected AssertionViolation panic")
		}
	}()
	s.Advance()
}

func TestInterrupt(t *testing.T) {
	rec := &recorder{}
	s := New(rec, true)
	s.Load(simpleTimeline(), false)
	s.Advance()
	if !s.Interrupt() {
		t.Fatal("expected Interrupt to end the scene")
	}
	if s.State() != SceneEnded {
		t.Errorf("expected scene_ended, got %v", s.State())
	}
	if rec.events[len(rec.events)-1].action != EndScene {
		t.Error("expected EndScene to reach the renderer")
	}
	if s.Interrupt() {
		t.Error("expected second Interrupt to fail")
	}
}

func TestLoadRejectsMalformedTimeline(t *testing.T) {
	s := New(nil, true)
	bad := [][]Checkpoint{
		nil,
		{{Frame: 3, Action: StartStimulus}, {Frame: 1, Action: EndScene, Object: -1}},
		{{Frame: 0, Action: EndScene, Object: -1}, {Frame: 1, Action: EndScene, Object: -1}},
		{{Frame: 0, Action: StartStimulus}},
	}
	for i, cps := range bad {
		if err := s.Load(cps, false); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
	if s.State() != Idle {
		t.Errorf("expected scheduler to stay idle, got %v", s.State())
	}
}
