package staircase

import "testing"

func run(s State, responses ...bool) []int {
	out := []int{s.Index}
	for _, c := range responses {
		out = append(out, s.Step(c))
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOneUpOneDown(t *testing.T) {
	got := run(New(OneUpOneDown, 2, 5), true, true, false, true)
	want := []int{2, 1, 0, 1, 0}
	if !equalInts(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestClampsToBounds(t *testing.T) {
	got := run(New(OneUpOneDown, 0, 3), true, false, false, false, false)
	want := []int{0, 0, 1, 2, 2, 2}
	if !equalInts(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestCorrectIncorrect(t *testing.T) {
	s := New(CorrectIncorrect, 5, 2)
	if s.Index != 0 {
		t.Fatalf("expected first trial at index 0, got %d", s.Index)
	}
	got := run(s, false, false, true, false)
	want := []int{0, 1, 1, 0, 1}
	if !equalInts(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestOneUpTwoDownBootstraps(t *testing.T) {
	// Steps down on every correct until the first incorrect, then needs two
	// in a row.
	got := run(New(OneUpTwoDown, 5, 8), true, true, false, true, true, true, true)
	want := []int{5, 4, 3, 4, 4, 3, 3, 2}
	if !equalInts(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestOneUpThreeDownResetsStreak(t *testing.T) {
	s := New(OneUpThreeDown, 4, 8)
	s.Step(false) // leaves bootstrapping, index 5
	got := run(s, true, true, false, true, true, true)
	want := []int{5, 5, 5, 6, 6, 6, 5}
	if !equalInts(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestRuleText(t *testing.T) {
	var r Rule
	if err := r.UnmarshalText([]byte("1up_2down")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != OneUpTwoDown {
		t.Errorf("expected OneUpTwoDown, got %v", r)
	}
	if err := r.UnmarshalText([]byte("2up")); err == nil {
		t.Error("expected error for unknown rule")
	}
}
