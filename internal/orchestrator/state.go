package orchestrator

// RunState represents the lifecycle state of a run.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStatePaused    RunState = "paused"
	RunStateAwaiting  RunState = "awaiting_response"
	RunStateCompleted RunState = "completed"
	RunStateAborted   RunState = "aborted"
)

// Finished returns true once the run can make no further progress.
func (s RunState) Finished() bool {
	return s == RunStateCompleted || s == RunStateAborted
}

// SectionStatus is the externally visible progress of one section.
type SectionStatus struct {
	ID           string  `json:"id"`
	Trial        int     `json:"trial"`
	Total        int     `json:"total"`
	Visits       int     `json:"visits"`
	Completed    int     `json:"completed"`
	Correct      int     `json:"correct"`
	Incorrect    int     `json:"incorrect"`
	Responded    int     `json:"responded"`
	NotResponded int     `json:"not_responded"`
	Accuracy     float64 `json:"accuracy"`
}

// Status is a point-in-time snapshot of a run.
type Status struct {
	RunID    string          `json:"run_id"`
	State    RunState        `json:"state"`
	Section  string          `json:"section,omitempty"`
	Trial    int             `json:"trial"`
	Scene    string          `json:"scene,omitempty"`
	Frame    int             `json:"frame"`
	Ticks    uint64          `json:"ticks"`
	Trials   int             `json:"trials_completed"`
	Sections []SectionStatus `json:"sections"`
}
