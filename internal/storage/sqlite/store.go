// Package sqlite keeps the run log and trial results in an embedded SQLite file.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/marinraf/StimuliApp-sub001/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_ms    INTEGER NOT NULL,
	level    TEXT NOT NULL,
	event    TEXT NOT NULL,
	msg      TEXT,
	fields   TEXT,
	run_id   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_run_ts ON events(run_id, ts_ms DESC);

CREATE TABLE IF NOT EXISTS trial_results (
	result_id      INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	section        TEXT NOT NULL,
	trial          INTEGER NOT NULL,
	vals           TEXT NOT NULL,
	response       TEXT,
	responded      INTEGER NOT NULL,
	correct        INTEGER NOT NULL,
	in_time        INTEGER NOT NULL,
	seed           INTEGER NOT NULL,
	recorded_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trial_results_run ON trial_results(run_id, result_id);
`

// Store persists one run in SQLite.
type Store struct {
	sqlDB *sql.DB
	runID string
}

var _ storage.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database file, applies the schema and binds the store to runID.
func Open(path, runID string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, runID: runID}, nil
}

// RunID returns the run this store reads and writes.
func (s *Store) RunID() string {
	return s.runID
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Append inserts an event into the run log.
func (s *Store) Append(ts time.Time, level, event, msg string, fields map[string]interface{}) error {
	var fieldsJSON sql.NullString
	if fields != nil {
		b, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("marshal fields: %w", err)
		}
		fieldsJSON = sql.NullString{String: string(b), Valid: true}
	}
	var msgVal sql.NullString
	if msg != "" {
		msgVal = sql.NullString{String: msg, Valid: true}
	}
	_, err := s.sqlDB.Exec(
		`INSERT INTO events (ts_ms, level, event, msg, fields, run_id) VALUES (?, ?, ?, ?, ?, ?)`,
		toMillis(ts), level, event, msgVal, fieldsJSON, s.runID,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// AppendTrial inserts one scored trial.
func (s *Store) AppendTrial(row storage.TrialRow) error {
	valuesJSON, err := json.Marshal(row.Values)
	if err != nil {
		return fmt.Errorf("marshal values: %w", err)
	}
	var responseJSON sql.NullString
	if row.Response != nil {
		b, err := json.Marshal(row.Response)
		if err != nil {
			return fmt.Errorf("marshal response: %w", err)
		}
		responseJSON = sql.NullString{String: string(b), Valid: true}
	}
	_, err = s.sqlDB.Exec(
		`INSERT INTO trial_results (run_id, section, trial, vals, response, responded, correct, in_time, seed, recorded_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, row.Section, row.Trial, string(valuesJSON), responseJSON,
		boolInt(row.Responded), boolInt(row.Correct), boolInt(row.InTime), int64(row.Seed), toMillis(row.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("insert trial result: %w", err)
	}
	return nil
}

// Query returns the last N events of the run, newest first.
func (s *Store) Query(limit int) ([]storage.EventRow, error) {
	rows, err := s.sqlDB.Query(
		`SELECT event_id, ts_ms, level, event, msg, fields, run_id
		 FROM events WHERE run_id = ? ORDER BY ts_ms DESC, event_id DESC LIMIT ?`,
		s.runID, storage.ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return scanEvents(rows)
}

// QueryNames is Query restricted to the given event names.
func (s *Store) QueryNames(limit int, names ...string) ([]storage.EventRow, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := make([]interface{}, 0, len(names)+2)
	args = append(args, s.runID)
	for _, n := range names {
		args = append(args, n)
	}
	args = append(args, storage.ClampLimit(limit))
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	rows, err := s.sqlDB.Query(
		`SELECT event_id, ts_ms, level, event, msg, fields, run_id
		 FROM events WHERE run_id = ? AND event IN (`+placeholders+`)
		 ORDER BY ts_ms DESC, event_id DESC LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]storage.EventRow, error) {
	defer rows.Close()

	var out []storage.EventRow
	for rows.Next() {
		var e storage.EventRow
		var tsMs int64
		var msg, fields sql.NullString
		if err := rows.Scan(&e.EventID, &tsMs, &e.Level, &e.Event, &msg, &fields, &e.RunID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = fromMillis(tsMs)
		if msg.Valid {
			m := msg.String
			e.Message = &m
		}
		if fields.Valid && fields.String != "" {
			if err := json.Unmarshal([]byte(fields.String), &e.Fields); err != nil {
				return nil, fmt.Errorf("unmarshal fields: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Trials returns every trial result of the run in insertion order.
func (s *Store) Trials() ([]storage.TrialRow, error) {
	rows, err := s.sqlDB.Query(
		`SELECT run_id, section, trial, vals, response, responded, correct, in_time, seed, recorded_at_ms
		 FROM trial_results WHERE run_id = ? ORDER BY result_id`,
		s.runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query trial results: %w", err)
	}
	defer rows.Close()

	var out []storage.TrialRow
	for rows.Next() {
		var r storage.TrialRow
		var values string
		var response sql.NullString
		var responded, correct, inTime int
		var seed, recordedMs int64
		if err := rows.Scan(&r.RunID, &r.Section, &r.Trial, &values, &response,
			&responded, &correct, &inTime, &seed, &recordedMs); err != nil {
			return nil, fmt.Errorf("scan trial result: %w", err)
		}
		r.Responded = responded != 0
		r.Correct = correct != 0
		r.InTime = inTime != 0
		r.Seed = uint64(seed)
		r.RecordedAt = fromMillis(recordedMs)
		if err := json.Unmarshal([]byte(values), &r.Values); err != nil {
			return nil, fmt.Errorf("unmarshal values: %w", err)
		}
		if response.Valid && response.String != "" {
			if err := json.Unmarshal([]byte(response.String), &r.Response); err != nil {
				return nil, fmt.Errorf("unmarshal response: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
