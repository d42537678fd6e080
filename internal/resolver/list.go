package resolver

import (
	"github.com/marinraf/StimuliApp-sub001/internal/design"
	"github.com/marinraf/StimuliApp-sub001/internal/rng"
)

// List is a value list materialized for one run. The authored list is
// never reordered; Source maps each run position back to it.
type List struct {
	ID     string         `json:"id"`
	Values []design.Value `json:"values"`
	Source []int          `json:"source"`
	Jitter float64        `json:"jitter,omitempty"`
	Seed   uint64         `json:"seed"`
	Blocks *BlockPlan     `json:"blocks,omitempty"`
}

// Len is the number of values.
func (l *List) Len() int { return len(l.Values) }

// Materialize derives the run order of a list from its seed. Shuffled
// lists are permuted once; block lists are planned.
func Materialize(doc *design.Document, l *design.ValueList, seed uint64) (*List, error) {
	m := &List{ID: l.ID, Jitter: l.Jitter, Seed: seed}

	if l.Blocks != nil {
		plan, err := PlanBlocks(doc, l, seed)
		if err != nil {
			return nil, err
		}
		m.Blocks = plan
		m.Values = plan.Values
		m.Source = identity(len(plan.Values))
		return m, nil
	}

	n := len(l.Values)
	m.Values = make([]design.Value, n)
	if l.Order == design.OrderShuffled {
		m.Source = rng.Perm(n, seed, streamListShuffle)
	} else {
		m.Source = identity(n)
	}
	for i, src := range m.Source {
		m.Values[i] = l.Values[src]
	}
	return m, nil
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
