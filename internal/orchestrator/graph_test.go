package orchestrator

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/marinraf/StimuliApp-sub001/internal/design"
	"github.com/marinraf/StimuliApp-sub001/internal/resolver"
	"github.com/marinraf/StimuliApp-sub001/internal/staircase"
)

func graphDoc(sections ...design.Section) *design.Document {
	return &design.Document{Version: 1, FrameRate: 60, Sections: sections}
}

func TestSectionGraphDefaultsToFirstSection(t *testing.T) {
	g, err := NewSectionGraph(graphDoc(
		design.Section{ID: "a", Next: "b"},
		design.Section{ID: "b"},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.First() != "a" {
		t.Errorf("expected first section a, got %s", g.First())
	}
	if sec, ok := g.Section("b"); !ok || sec.ID != "b" {
		t.Errorf("expected to find section b, got %v", sec)
	}
	if _, ok := g.Section("c"); ok {
		t.Error("expected section c to be unknown")
	}
}

func TestSectionGraphEdgesInEvaluationOrder(t *testing.T) {
	doc := graphDoc(
		design.Section{
			ID: "practice",
			Conditions: []design.Condition{
				{Kind: design.CondAccuracyAtLeast, N: 10, Accuracy: 0.8, Next: "main"},
				{Kind: design.CondTrials, N: 30, Next: ""},
			},
			Next: "practice",
		},
		design.Section{ID: "main"},
	)
	doc.FirstSection = "practice"
	g, err := NewSectionGraph(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []string
	for _, e := range g.Edges("practice") {
		got = append(got, e.To)
	}
	if diff := cmp.Diff([]string{"main", "", "practice"}, got); diff != "" {
		t.Errorf("edge targets mismatch (-want +got):\n%s", diff)
	}
	if e := g.Edges("practice")[2]; e.Condition != nil {
		t.Errorf("expected the implicit next to carry no condition, got %+v", e.Condition)
	}
	if diff := cmp.Diff([]string{"practice", "main"}, g.Reachable()); diff != "" {
		t.Errorf("reachable mismatch (-want +got):\n%s", diff)
	}
}

func TestSectionGraphReportsEveryDanglingReference(t *testing.T) {
	doc := graphDoc(
		design.Section{ID: "a", Next: "missing_next",
			Conditions: []design.Condition{{Kind: design.CondCorrect, N: 1, Next: "missing_target"}}},
		design.Section{ID: "a"},
	)
	doc.FirstSection = "missing_first"
	_, err := NewSectionGraph(doc)

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if len(cfgErr.Problems) != 4 {
		t.Fatalf("expected 4 problems, got %d: %v", len(cfgErr.Problems), cfgErr.Problems)
	}
	for _, want := range []string{"duplicate", "missing_first", "missing_target", "missing_next"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err)
		}
	}
}

func TestSectionGraphRejectsEmptyDesign(t *testing.T) {
	if _, err := NewSectionGraph(graphDoc()); err == nil {
		t.Error("expected an error for a design without sections")
	}
}

func progressWith(total int, history ...bool) *SectionProgress {
	p := NewSectionProgress(&resolver.Resolution{SectionID: "s", Total: total})
	for i, correct := range history {
		p.Trial = i % total
		p.Record(Outcome{Responded: true, InTime: true, Correct: correct})
	}
	p.Trial = (len(history) - 1) % total
	return p
}

func TestEvalCondition(t *testing.T) {
	tests := []struct {
		name string
		cond design.Condition
		p    *SectionProgress
		want bool
	}{
		{"trials reached", design.Condition{Kind: design.CondTrials, N: 3}, progressWith(10, true, true, false), true},
		{"trials not reached", design.Condition{Kind: design.CondTrials, N: 4}, progressWith(10, true, true, false), false},
		{"correct exact", design.Condition{Kind: design.CondCorrect, N: 2}, progressWith(10, true, true, false), true},
		{"correct passed", design.Condition{Kind: design.CondCorrect, N: 1}, progressWith(10, true, true, false), false},
		{"incorrect", design.Condition{Kind: design.CondIncorrect, N: 1}, progressWith(10, true, true, false), true},
		{"responded", design.Condition{Kind: design.CondResponded, N: 3}, progressWith(10, true, true, false), true},
		{"not responded", design.Condition{Kind: design.CondNotResponded, N: 1}, progressWith(10, true), false},
		{"last correct", design.Condition{Kind: design.CondLastCorrect}, progressWith(10, false, true), true},
		{"last incorrect", design.Condition{Kind: design.CondLastIncorrect}, progressWith(10, true, false), true},
		{"last responded", design.Condition{Kind: design.CondLastResponded}, progressWith(10, false), true},
		{"last not responded", design.Condition{Kind: design.CondLastNotResponded}, progressWith(10, false), false},
		{"accuracy at least on boundary", design.Condition{Kind: design.CondAccuracyAtLeast, N: 4, Accuracy: 0.75},
			progressWith(10, false, true, true, true), true},
		{"accuracy at least off boundary", design.Condition{Kind: design.CondAccuracyAtLeast, N: 4, Accuracy: 0.5},
			progressWith(10, true, true, true), false},
		{"accuracy at least uses last n", design.Condition{Kind: design.CondAccuracyAtLeast, N: 2, Accuracy: 1},
			progressWith(10, false, false, true, true), true},
		{"accuracy at least too low", design.Condition{Kind: design.CondAccuracyAtLeast, N: 2, Accuracy: 0.6},
			progressWith(10, true, false), false},
		{"accuracy below", design.Condition{Kind: design.CondAccuracyBelow, N: 2, Accuracy: 0.6},
			progressWith(10, true, false), true},
		{"accuracy below not met", design.Condition{Kind: design.CondAccuracyBelow, N: 2, Accuracy: 0.5},
			progressWith(10, true, false), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvalCondition(tt.cond, tt.p); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEvalConditionNotRespondedCountsMissing(t *testing.T) {
	p := progressWith(10)
	p.Record(Outcome{})
	p.Record(Outcome{})
	p.Trial = 1
	if !EvalCondition(design.Condition{Kind: design.CondNotResponded, N: 2}, p) {
		t.Error("expected two missing responses to match")
	}
	if !EvalCondition(design.Condition{Kind: design.CondLastNotResponded}, p) {
		t.Error("expected last not responded to match")
	}
}

func TestNextSection(t *testing.T) {
	sec := &design.Section{
		ID:   "practice",
		Next: "main",
		Conditions: []design.Condition{
			{Kind: design.CondIncorrect, N: 2, Next: ""},
			{Kind: design.CondCorrect, N: 2, Next: "bonus"},
		},
	}

	next, matched := NextSection(sec, progressWith(3, true))
	if next != "practice" || matched {
		t.Errorf("expected to repeat practice, got %q matched=%v", next, matched)
	}

	next, matched = NextSection(sec, progressWith(3, true, true))
	if next != "bonus" || !matched {
		t.Errorf("expected bonus by condition, got %q matched=%v", next, matched)
	}

	next, matched = NextSection(sec, progressWith(3, false, true, false))
	if next != "" || !matched {
		t.Errorf("expected the first matching condition to end the run, got %q matched=%v", next, matched)
	}

	next, matched = NextSection(sec, progressWith(3, true, false, true))
	if next != "bonus" || !matched {
		t.Errorf("expected bonus on the last trial, got %q matched=%v", next, matched)
	}

	sec.Conditions = nil
	next, matched = NextSection(sec, progressWith(3, true, false, true))
	if next != "main" || matched {
		t.Errorf("expected to follow next after the last trial, got %q matched=%v", next, matched)
	}
}

func TestTrialsConditionWinsOverLaterConditions(t *testing.T) {
	sec := &design.Section{
		ID: "practice",
		Conditions: []design.Condition{
			{Kind: design.CondTrials, N: 10, Next: "x"},
			{Kind: design.CondLastCorrect, Next: "y"},
		},
	}
	for _, last := range []bool{true, false} {
		history := []bool{true, false, true, true, false, true, false, true, true, last}
		p := progressWith(20, history...)
		if p.Trial != 9 {
			t.Fatalf("expected trial 9, got %d", p.Trial)
		}
		next, matched := NextSection(sec, p)
		if next != "x" || !matched {
			t.Errorf("last correct=%v: expected x on trial 10, got %q matched=%v", last, next, matched)
		}
	}

	next, _ := NextSection(sec, progressWith(20, true, true))
	if next != "y" {
		t.Errorf("expected last correct before trial 10, got %q", next)
	}
}

func TestSectionProgressWrapResetsStaircase(t *testing.T) {
	res := &resolver.Resolution{
		SectionID: "s",
		Total:     3,
		Dependent: []resolver.Dependent{{Rule: staircase.OneUpOneDown, Start: 2, Length: 5}},
	}
	p := NewSectionProgress(res)
	for i := 0; i < 2; i++ {
		p.Record(Outcome{Responded: true})
		p.Advance()
	}
	if p.Staircases[0].Index != 4 {
		t.Fatalf("expected two incorrect trials to reach 4, got %d", p.Staircases[0].Index)
	}
	p.Record(Outcome{Responded: true, Correct: true})
	p.Advance()
	if p.Trial != 0 {
		t.Fatalf("expected cursor to wrap, got %d", p.Trial)
	}
	if p.Staircases[0].Index != 2 {
		t.Errorf("expected staircase back at its start 2, got %d", p.Staircases[0].Index)
	}
	if p.Staircases[0].Bootstrapping {
		t.Error("expected the staircase to keep its streak state across the wrap")
	}
}

func TestSectionProgressCursorWraps(t *testing.T) {
	p := progressWith(2)
	p.Trial = 0
	p.Advance()
	p.Advance()
	if p.Trial != 0 {
		t.Errorf("expected cursor to wrap to 0, got %d", p.Trial)
	}
	if !p.LastCorrect || !p.LastResponded {
		t.Error("expected a fresh section to count as preceded by a correct response")
	}
	if p.Accuracy(0) != 0 {
		t.Errorf("expected zero accuracy without trials, got %v", p.Accuracy(0))
	}
}
