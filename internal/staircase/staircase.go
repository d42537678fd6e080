// Package staircase implements response-dependent index selection for
// adaptive procedures.
package staircase

import (
	"fmt"
	"strings"
)

// Rule is an adaptive procedure.
type Rule int

const (
	// CorrectIncorrect picks value 0 after a correct response and value 1
	// after an incorrect one.
	CorrectIncorrect Rule = iota
	OneUpOneDown
	OneUpTwoDown
	OneUpThreeDown
)

var ruleNames = []string{"correct_incorrect", "1up_1down", "1up_2down", "1up_3down"}

func (r Rule) String() string {
	if r >= 0 && int(r) < len(ruleNames) {
		return ruleNames[r]
	}
	return fmt.Sprintf("rule(%d)", int(r))
}

func (r Rule) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Rule) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for i, n := range ruleNames {
		if n == s {
			*r = Rule(i)
			return nil
		}
	}
	return fmt.Errorf("unknown staircase rule %q", s)
}

// Down is the number of consecutive correct responses that step the index
// toward 0 once bootstrapping is over.
func (r Rule) Down() int {
	switch r {
	case OneUpTwoDown:
		return 2
	case OneUpThreeDown:
		return 3
	}
	return 1
}

// MinValues is the smallest list the rule can run on.
func (r Rule) MinValues() int {
	if r == CorrectIncorrect {
		return 2
	}
	return 1
}

// State is the evaluator state carried between trials.
type State struct {
	Rule   Rule `json:"rule"`
	Index  int  `json:"index"`
	Length int  `json:"length"`
	// Streak counts consecutive correct responses since the last step.
	Streak int `json:"streak"`
	// Bootstrapping stays true until the first incorrect response; while it
	// holds every correct response steps down.
	Bootstrapping bool `json:"bootstrapping"`
}

// New returns the state for the first trial. The first trial counts as
// preceded by a correct response.
func New(rule Rule, start, length int) State {
	s := State{Rule: rule, Index: start, Length: length, Bootstrapping: true}
	if rule == CorrectIncorrect {
		s.Index = 0
	}
	s.Index = s.clamp(s.Index)
	return s
}

func (s State) clamp(i int) int {
	if i > s.Length-1 {
		i = s.Length - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// Next returns the state after a response. The resulting Index is the
// list position for the following trial.
func Next(s State, lastCorrect bool) State {
	if s.Rule == CorrectIncorrect {
		if lastCorrect {
			s.Index = 0
		} else {
			s.Index = s.clamp(1)
		}
		return s
	}

	if !lastCorrect {
		s.Bootstrapping = false
		s.Streak = 0
		s.Index = s.clamp(s.Index + 1)
		return s
	}

	if s.Bootstrapping || s.Streak+1 >= s.Rule.Down() {
		s.Streak = 0
		s.Index = s.clamp(s.Index - 1)
		return s
	}
	s.Streak++
	return s
}

// Step applies Next in place and returns the new index.
func (s *State) Step(lastCorrect bool) int {
	*s = Next(*s, lastCorrect)
	return s.Index
}
