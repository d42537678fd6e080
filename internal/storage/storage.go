// Package storage defines the run log and trial result records shared by
// the postgres and sqlite backends.
package storage

import "time"

// DefaultQueryLimit caps event queries when the caller passes no limit.
const DefaultQueryLimit = 200

// MaxQueryLimit is the largest page a store returns.
const MaxQueryLimit = 10000

// EventRow represents an event stored in the run log.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	RunID     string                 `json:"run_id"`
}

// TrialRow is one scored trial of a run.
type TrialRow struct {
	RunID      string                 `json:"run_id"`
	Section    string                 `json:"section"`
	Trial      int                    `json:"trial"`
	Values     map[string]interface{} `json:"values"`
	Response   map[string]interface{} `json:"response,omitempty"`
	Responded  bool                   `json:"responded"`
	Correct    bool                   `json:"correct"`
	InTime     bool                   `json:"in_time"`
	Seed       uint64                 `json:"seed"`
	RecordedAt time.Time              `json:"recorded_at"`
}

// Store persists the run log and trial results for one run id.
type Store interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}) error
	AppendTrial(row TrialRow) error
	Query(limit int) ([]EventRow, error)
	QueryNames(limit int, names ...string) ([]EventRow, error)
	Trials() ([]TrialRow, error)
	RunID() string
	Close() error
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
