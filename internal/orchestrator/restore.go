package orchestrator

import (
	"fmt"
	"strconv"

	"github.com/marinraf/StimuliApp-sub001/internal/events"
	"github.com/marinraf/StimuliApp-sub001/internal/rng"
	"github.com/marinraf/StimuliApp-sub001/internal/storage"
)

// DefaultRestoreLimit is the default number of events to load for restore.
const DefaultRestoreLimit = storage.MaxQueryLimit

// restoreEvents are the only events replayed on restore.
var restoreEvents = []string{
	"run.started",
	"section.started",
	"trial.completed",
	"run.completed",
}

// RestoredTrial is one trial.completed event of a stored run.
type RestoredTrial struct {
	Section string
	Trial   int
	Outcome Outcome
	Next    string
}

// RestoredState is the progress of a stored run, rebuilt from its log.
type RestoredState struct {
	RunID string
	Seeds rng.Seeds
	// Section is where the run resumes. It is empty once the run ended.
	Section   string
	Completed bool
	Trials    []RestoredTrial
	Visits    map[string]int
}

// RestoreFromEvents loads the run log from store and rebuilds the run's
// seeds and per-section progress. It returns nil if the store is nil or
// holds no events for the run, and an error if the log does not fit in
// limit events.
func RestoreFromEvents(store storage.Store, limit int) (*RestoredState, int, error) {
	if store == nil {
		return nil, 0, nil
	}
	if limit <= 0 {
		limit = DefaultRestoreLimit
	}

	rows, err := store.QueryNames(limit, restoreEvents...)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}

	// Reverse to chronological order (QueryNames returns DESC)
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	var state *RestoredState
	for _, row := range rows {
		if row.Event == "run.started" {
			state = &RestoredState{
				RunID:  store.RunID(),
				Seeds:  make(rng.Seeds),
				Visits: make(map[string]int),
			}
			state.Section, _ = row.Fields["first_section"].(string)
			seeds, _ := row.Fields["seeds"].(map[string]interface{})
			for k, v := range seeds {
				s, _ := v.(string)
				seed, err := strconv.ParseUint(s, 10, 64)
				if err != nil {
					return nil, len(rows), fmt.Errorf("run.started: seed %s: %w", k, err)
				}
				state.Seeds[k] = seed
			}
			continue
		}
		if state == nil {
			continue
		}

		switch row.Event {
		case "section.started":
			if id, ok := row.Fields["section"].(string); ok {
				state.Visits[id]++
				state.Section = id
			}

		case "trial.completed":
			t := RestoredTrial{
				Section: stringField(row.Fields, "section"),
				Trial:   intField(row.Fields, "trial"),
				Next:    stringField(row.Fields, "next"),
				Outcome: Outcome{
					Responded: boolField(row.Fields, "responded"),
					InTime:    boolField(row.Fields, "in_time"),
					Correct:   boolField(row.Fields, "correct"),
					Default:   boolField(row.Fields, "default"),
				},
			}
			state.Trials = append(state.Trials, t)
			state.Section = t.Next
			if t.Next == "" {
				state.Completed = true
			}

		case "run.completed":
			state.Completed = true
			state.Section = ""
		}
	}

	if state == nil {
		// run.started is the oldest restore event; missing it means the
		// log is longer than the window and the progress is incomplete.
		return nil, len(rows), fmt.Errorf("run %s: run.started not within the last %d events", store.RunID(), limit)
	}
	return state, len(rows), nil
}

// ApplyRestoredState replays restored trials into the section progress so
// Start resumes where the stored run stopped. The runtime must have been
// built with the restored seeds. This does NOT re-emit events or call the
// renderer.
func (r *Runtime) ApplyRestoredState(state *RestoredState) error {
	if state == nil {
		return nil
	}
	if r.started {
		return fmt.Errorf("run %s already started", r.runID)
	}

	seeds := r.book.Seeds()
	for k, v := range state.Seeds {
		if seeds[k] != v {
			return fmt.Errorf("restored seed %s is %d, runtime uses %d", k, v, seeds[k])
		}
	}

	for _, t := range state.Trials {
		p, ok := r.progress[t.Section]
		if !ok {
			return fmt.Errorf("restored trial for unknown section %q", t.Section)
		}
		if t.Trial < 0 || t.Trial >= p.Res.Total {
			return fmt.Errorf("restored trial %d out of range for section %q", t.Trial, t.Section)
		}
		p.Trial = t.Trial
		p.Record(t.Outcome)
		p.Advance()
		r.trialsDone++
	}
	for id, n := range state.Visits {
		if p, ok := r.progress[id]; ok {
			p.Visits = n
		}
	}
	// Resuming counts as a new visit of the resume section; the stored
	// visit that was cut short is not counted twice.
	if p, ok := r.progress[state.Section]; ok && p.Visits > 0 {
		p.Visits--
	}

	r.restored = state
	r.publishStatus()
	return nil
}

// EmitStartupRestore emits the system.startup_restore event.
func EmitStartupRestore(restored int, runID string) {
	events.Emit("info", "system.startup_restore", "", map[string]interface{}{
		"restored": restored,
		"run_id":   runID,
	})
}

func stringField(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}

func boolField(fields map[string]interface{}, key string) bool {
	b, _ := fields[key].(bool)
	return b
}

// intField reads a number that went through JSON.
func intField(fields map[string]interface{}, key string) int {
	switch v := fields[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
