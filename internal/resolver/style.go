package resolver

import (
	"fmt"
	"strings"

	"github.com/marinraf/StimuliApp-sub001/internal/design"
)

// Style is the ordering instruction of a generator group.
type Style int

const (
	OrderedAlternating Style = iota
	ShuffledAlternating
	OrderedHigh
	OrderedMedium
	OrderedLow
	ShuffledIndependent
	RandomEqual
	RandomDifferent
	Fixed
	CorrectDependent
	// BlockManaged marks the variable whose values come from a block list.
	BlockManaged
)

var styleNames = [...]string{
	"ordered_alternating", "shuffled_alternating",
	"ordered_high", "ordered_medium", "ordered_low",
	"shuffled_independent", "random_equal", "random_different",
	"fixed", "correct_dependent", "block_managed",
}

func (s Style) String() string {
	if s >= 0 && int(s) < len(styleNames) {
		return styleNames[s]
	}
	return fmt.Sprintf("style(%d)", int(s))
}

func (s Style) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Style) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for i, n := range styleNames {
		if n == name {
			*s = Style(i)
			return nil
		}
	}
	return fmt.Errorf("unknown style %q", name)
}

// Counterbalanced reports whether the group is part of the factorial and
// contributes its cardinality to the combination count.
func (s Style) Counterbalanced() bool {
	return s <= ShuffledIndependent
}

func (s Style) alternating() bool {
	return s == OrderedAlternating || s == ShuffledAlternating
}

// nesting orders counterbalanced groups from the outermost loop (lowest)
// to the innermost. The repetition factor sits between the ordered and
// the shuffled levels.
func (s Style) nesting() int {
	switch s {
	case OrderedLow:
		return 0
	case OrderedMedium:
		return 1
	case OrderedHigh:
		return 2
	case ShuffledIndependent:
		return 3
	case OrderedAlternating, ShuffledAlternating:
		return 4
	}
	return 5
}

func styleOf(sel design.Selection, alternate bool) Style {
	switch sel.Method {
	case design.MethodInOrder:
		if alternate {
			return OrderedAlternating
		}
		switch sel.Priority {
		case design.PriorityMedium:
			return OrderedMedium
		case design.PriorityLow:
			return OrderedLow
		}
		return OrderedHigh
	case design.MethodShuffled:
		if alternate {
			return ShuffledAlternating
		}
		return ShuffledIndependent
	case design.MethodRandom:
		if sel.Random == design.RandomDifferent {
			return RandomDifferent
		}
		return RandomEqual
	case design.MethodFixed:
		return Fixed
	}
	return CorrectDependent
}
