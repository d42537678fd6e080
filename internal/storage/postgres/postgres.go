package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/marinraf/StimuliApp-sub001/internal/storage"
)

// Options holds the connection settings for the run log database.
type Options struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnString renders the options as a lib/pq keyword/value string.
func (o Options) ConnString() string {
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	if o.Password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			o.Host, o.Port, o.User, o.Password, o.Database, sslMode)
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		o.Host, o.Port, o.User, o.Database, sslMode)
}

// Client manages the Postgres connection for one run.
type Client struct {
	db    *sql.DB
	runID string
}

var _ storage.Store = (*Client)(nil)

// New connects, creates the tables if missing and binds the client to runID.
func New(opts Options, runID string) (*Client, error) {
	db, err := sql.Open("postgres", opts.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:    db,
		runID: runID,
	}

	if err := client.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return client, nil
}

func (c *Client) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS events (
			event_id BIGSERIAL PRIMARY KEY,
			ts       TIMESTAMPTZ NOT NULL,
			level    TEXT NOT NULL,
			event    TEXT NOT NULL,
			msg      TEXT,
			fields   JSONB,
			run_id   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_run_ts ON events(run_id, ts DESC);

		CREATE TABLE IF NOT EXISTS trial_results (
			result_id   BIGSERIAL PRIMARY KEY,
			run_id      TEXT NOT NULL,
			section     TEXT NOT NULL,
			trial       INTEGER NOT NULL,
			vals        JSONB NOT NULL,
			response    JSONB,
			responded   BOOLEAN NOT NULL,
			correct     BOOLEAN NOT NULL,
			in_time     BOOLEAN NOT NULL,
			seed        BIGINT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trial_results_run ON trial_results(run_id, result_id);
	`
	_, err := c.db.Exec(query)
	return err
}

// RunID returns the run this client reads and writes.
func (c *Client) RunID() string {
	return c.runID
}

// Append inserts an event into the run log.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	query := `
		INSERT INTO events (ts, level, event, msg, fields, run_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.runID)
	return err
}

// AppendTrial inserts one scored trial.
func (c *Client) AppendTrial(row storage.TrialRow) error {
	valuesJSON, err := json.Marshal(row.Values)
	if err != nil {
		return fmt.Errorf("failed to marshal values: %w", err)
	}
	var responseJSON []byte
	if row.Response != nil {
		responseJSON, err = json.Marshal(row.Response)
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
	}

	query := `
		INSERT INTO trial_results (run_id, section, trial, vals, response, responded, correct, in_time, seed, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = c.db.Exec(query, c.runID, row.Section, row.Trial, valuesJSON, responseJSON,
		row.Responded, row.Correct, row.InTime, int64(row.Seed), row.RecordedAt)
	return err
}

// Query returns the last N events of the run in descending order by timestamp.
func (c *Client) Query(limit int) ([]storage.EventRow, error) {
	query := `
		SELECT event_id, ts, level, event, msg, fields, run_id
		FROM events
		WHERE run_id = $1
		ORDER BY ts DESC, event_id DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.runID, storage.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// QueryNames is Query restricted to the given event names.
func (c *Client) QueryNames(limit int, names ...string) ([]storage.EventRow, error) {
	query := `
		SELECT event_id, ts, level, event, msg, fields, run_id
		FROM events
		WHERE run_id = $1 AND event = ANY($2)
		ORDER BY ts DESC, event_id DESC
		LIMIT $3
	`
	rows, err := c.db.Query(query, c.runID, pq.Array(names), storage.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]storage.EventRow, error) {
	defer rows.Close()

	var events []storage.EventRow
	for rows.Next() {
		var e storage.EventRow
		var fieldsJSON []byte
		var msg sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.RunID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// Trials returns every trial result of the run in insertion order.
func (c *Client) Trials() ([]storage.TrialRow, error) {
	query := `
		SELECT run_id, section, trial, vals, response, responded, correct, in_time, seed, recorded_at
		FROM trial_results
		WHERE run_id = $1
		ORDER BY result_id
	`
	rows, err := c.db.Query(query, c.runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.TrialRow
	for rows.Next() {
		var r storage.TrialRow
		var valuesJSON, responseJSON []byte
		var seed int64
		if err := rows.Scan(&r.RunID, &r.Section, &r.Trial, &valuesJSON, &responseJSON,
			&r.Responded, &r.Correct, &r.InTime, &seed, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.Seed = uint64(seed)
		if err := json.Unmarshal(valuesJSON, &r.Values); err != nil {
			return nil, fmt.Errorf("failed to unmarshal values: %w", err)
		}
		if len(responseJSON) > 0 {
			if err := json.Unmarshal(responseJSON, &r.Response); err != nil {
				return nil, fmt.Errorf("failed to unmarshal response: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping checks the connection.
func (c *Client) Ping() error {
	return c.db.Ping()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
