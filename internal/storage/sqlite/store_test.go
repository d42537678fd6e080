package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/marinraf/StimuliApp-sub001/internal/storage"
)

func openTestStore(t *testing.T, runID string) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "run.db"), runID)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  ", "run-1"); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestAppendAndQueryEvents(t *testing.T) {
	s := openTestStore(t, "run-1")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.Append(base, "info", "run.started", "", map[string]interface{}{"seed": 7}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(base.Add(time.Second), "info", "trial.completed", "done", nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows, err := s.Query(0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rows))
	}
	if rows[0].Event != "trial.completed" {
		t.Errorf("expected newest event first, got %s", rows[0].Event)
	}
	if rows[0].Message == nil || *rows[0].Message != "done" {
		t.Errorf("expected message 'done', got %v", rows[0].Message)
	}
	if rows[1].Fields["seed"] != float64(7) {
		t.Errorf("expected seed field 7, got %v", rows[1].Fields["seed"])
	}
	if !rows[1].Timestamp.Equal(base) {
		t.Errorf("expected timestamp %v, got %v", base, rows[1].Timestamp)
	}
}

func TestQueryScopedToRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	a, err := Open(path, "run-a")
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	defer a.Close()
	b, err := Open(path, "run-b")
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	defer b.Close()

	if err := a.Append(time.Now(), "info", "run.started", "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	rows, err := b.Query(10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no events for run-b, got %d", len(rows))
	}
}

func TestAppendTrialRoundTrip(t *testing.T) {
	s := openTestStore(t, "run-1")
	row := storage.TrialRow{
		Section:    "main",
		Trial:      3,
		Values:     map[string]interface{}{"contrast": 0.25},
		Response:   map[string]interface{}{"value": 0.3},
		Responded:  true,
		Correct:    true,
		InTime:     true,
		Seed:       1<<63 + 5,
		RecordedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := s.AppendTrial(row); err != nil {
		t.Fatalf("append trial: %v", err)
	}
	if err := s.AppendTrial(storage.TrialRow{Section: "main", Trial: 4, Values: map[string]interface{}{}}); err != nil {
		t.Fatalf("append trial: %v", err)
	}

	got, err := s.Trials()
	if err != nil {
		t.Fatalf("trials: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 trials, got %d", len(got))
	}
	if got[0].RunID != "run-1" || got[0].Trial != 3 {
		t.Errorf("expected run-1 trial 3, got %s trial %d", got[0].RunID, got[0].Trial)
	}
	if got[0].Seed != row.Seed {
		t.Errorf("expected seed %d, got %d", row.Seed, got[0].Seed)
	}
	if !got[0].Correct || !got[0].Responded || !got[0].InTime {
		t.Errorf("expected all flags set, got %+v", got[0])
	}
	if got[0].Values["contrast"] != 0.25 {
		t.Errorf("expected contrast 0.25, got %v", got[0].Values["contrast"])
	}
	if got[1].Response != nil {
		t.Errorf("expected nil response, got %v", got[1].Response)
	}
}

func TestQueryNamesFilters(t *testing.T) {
	s := openTestStore(t, "run-1")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	names := []string{"run.started", "checkpoint.fired", "trial.completed", "checkpoint.fired"}
	for i, n := range names {
		if err := s.Append(base.Add(time.Duration(i)*time.Second), "info", n, "", nil); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rows, err := s.QueryNames(0, "run.started", "trial.completed")
	if err != nil {
		t.Fatalf("query names: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rows))
	}
	if rows[0].Event != "trial.completed" || rows[1].Event != "run.started" {
		t.Errorf("expected trial.completed then run.started, got %s then %s", rows[0].Event, rows[1].Event)
	}

	none, err := s.QueryNames(10)
	if err != nil {
		t.Fatalf("query names: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no events without names, got %d", len(none))
	}
}
