package timeline

import "fmt"

// State is the lifecycle state of a scheduler.
type State int

const (
	Idle State = iota
	Running
	Paused
	// AwaitingResponse blocks progress until SubmitResponse is called.
	AwaitingResponse
	SceneEnded
	SectionComplete
)

var stateNames = [...]string{"idle", "running", "paused", "awaiting_response", "scene_ended", "section_complete"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Renderer receives fired checkpoints. Object is -1 for EndScene.
type Renderer interface {
	OnCheckpoint(action Action, object int)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(action Action, object int)

func (f RendererFunc) OnCheckpoint(action Action, object int) { f(action, object) }

// AssertionViolation reports a broken scheduler contract. It is raised
// with panic and is not meant to be recovered from during a run.
type AssertionViolation struct {
	Msg string
}

func (e *AssertionViolation) Error() string { return "timeline assertion violated: " + e.Msg }

// Scheduler steps through the checkpoints of one scene. It is driven by a
// single goroutine and must not be called from a Renderer callback.
type Scheduler struct {
	renderer Renderer
	live     bool

	checkpoints []Checkpoint
	deferred    bool

	frame int
	next  int
	state State
	busy  bool
}

// New returns an idle scheduler. A live scheduler refuses Reverse.
func New(r Renderer, live bool) *Scheduler {
	if r == nil {
		r = RendererFunc(func(Action, int) {})
	}
	return &Scheduler{renderer: r, live: live}
}

// Load resets the scheduler to frame 0 of a new scene and starts it.
// Deferred scenes wait in AwaitingResponse after EndScene.
func (s *Scheduler) Load(cps []Checkpoint, deferred bool) error {
	s.enter()
	defer s.exit()

	if err := Validate(cps); err != nil {
		return err
	}
	s.checkpoints = cps
	s.deferred = deferred
	s.frame = 0
	s.next = 0
	s.state = Running
	return nil
}

// Advance fires every checkpoint whose frame has been reached, in order,
// then moves to the next frame. EndScene stops the scene instead. Outside
// Running it returns false and changes nothing.
func (s *Scheduler) Advance() bool {
	s.enter()
	defer s.exit()

	if s.state != Running {
		return false
	}

	end, ended := s.next, false
	for end < len(s.checkpoints) && s.checkpoints[end].Frame <= s.frame {
		end++
		if s.checkpoints[end-1].Action == EndScene {
			ended = true
			break
		}
	}

	for _, cp := range s.checkpoints[s.next:end] {
		s.renderer.OnCheckpoint(cp.Action, cp.Object)
	}
	s.next = end

	if ended {
		if s.deferred {
			s.state = AwaitingResponse
		} else {
			s.state = SceneEnded
		}
		return true
	}
	s.frame++
	return true
}

// Reverse steps one frame back, firing the inverse of every checkpoint
// fired on that frame. It is meant for preview scrubbing.
func (s *Scheduler) Reverse() bool {
	s.enter()
	defer s.exit()

	if s.live {
		panic(&AssertionViolation{Msg: "reverse called on a live scheduler"})
	}
	switch s.state {
	case Idle, SectionComplete:
		return false
	case SceneEnded, AwaitingResponse:
		// EndScene fired without moving past its frame.
		s.frame++
		s.state = Paused
	}
	if s.frame == 0 {
		return false
	}

	s.frame--
	for s.next > 0 && s.checkpoints[s.next-1].Frame >= s.frame {
		s.next--
		cp := s.checkpoints[s.next]
		if cp.Action != EndScene {
			s.renderer.OnCheckpoint(cp.Action.Inverse(), cp.Object)
		}
	}
	return true
}

// Pause stops Advance from moving until Resume.
func (s *Scheduler) Pause() bool {
	return s.transition(Running, Paused)
}

// Resume continues a paused scene.
func (s *Scheduler) Resume() bool {
	return s.transition(Paused, Running)
}

// SubmitResponse releases a scene waiting for deferred input.
func (s *Scheduler) SubmitResponse() bool {
	return s.transition(AwaitingResponse, SceneEnded)
}

// Complete marks the end of the section after the last scene.
func (s *Scheduler) Complete() bool {
	return s.transition(SceneEnded, SectionComplete)
}

// Interrupt ends a running or paused scene early, as when a response ends
// the scene. The renderer receives EndScene.
func (s *Scheduler) Interrupt() bool {
	s.enter()
	defer s.exit()

	if s.state != Running && s.state != Paused {
		return false
	}
	s.next = len(s.checkpoints)
	s.state = SceneEnded
	s.renderer.OnCheckpoint(EndScene, -1)
	return true
}

func (s *Scheduler) transition(from, to State) bool {
	s.enter()
	defer s.exit()

	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// Frame is the current frame counter.
func (s *Scheduler) Frame() int { return s.frame }

// State is the current state.
func (s *Scheduler) State() State { return s.state }

// Fired is the number of checkpoints fired so far in this scene.
func (s *Scheduler) Fired() int { return s.next }

// Checkpoints returns the loaded checkpoints.
func (s *Scheduler) Checkpoints() []Checkpoint { return s.checkpoints }

// At returns the checkpoints stamped with frame.
func (s *Scheduler) At(frame int) []Checkpoint {
	var out []Checkpoint
	for _, cp := range s.checkpoints {
		if cp.Frame == frame {
			out = append(out, cp)
		}
	}
	return out
}

func (s *Scheduler) enter() {
	if s.busy {
		panic(&AssertionViolation{Msg: "scheduler re-entered from a checkpoint callback"})
	}
	s.busy = true
}

func (s *Scheduler) exit() { s.busy = false }
