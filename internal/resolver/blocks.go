package resolver

import (
	"fmt"

	"github.com/marinraf/StimuliApp-sub001/internal/design"
	"github.com/marinraf/StimuliApp-sub001/internal/rng"
)

// BlockDraw is one trial of a block list stream.
type BlockDraw struct {
	// Position indexes the concatenated values of the block plan.
	Position int `json:"position"`
	// Type is the active block type (1 or 2).
	Type int `json:"type"`
	// List is the active list of that type (1 = first, 2 = second).
	List int `json:"list"`
}

// BlockPlan is the resolved stream of a block list.
type BlockPlan struct {
	// Values concatenates the underlying lists in declaration order, each
	// list once.
	Values []design.Value `json:"values"`
	Draws  []BlockDraw    `json:"draws"`
}

type blockSource struct {
	offset, length int
}

// PlanBlocks interleaves the lists of a block list into a stream of
// NumberOfBlocks × LengthOfBlocks draws. At every block boundary a uniform
// draw below the switch probability toggles the active list; with two
// block types an outer chain toggles the active type the same way, and a
// type change restarts its list from the type's starting policy.
func PlanBlocks(doc *design.Document, l *design.ValueList, seed uint64) (*BlockPlan, error) {
	spec := l.Blocks
	if spec == nil {
		return nil, fmt.Errorf("list %q is not a block list", l.Label())
	}
	if len(spec.Types) != 1 && len(spec.Types) != 2 {
		return nil, fmt.Errorf("block list %q: needs one or two block types", l.Label())
	}
	if spec.LengthOfBlocks <= 0 || spec.NumberOfBlocks <= 0 {
		return nil, fmt.Errorf("block list %q: number and length of blocks must be positive", l.Label())
	}

	plan := &BlockPlan{}
	offsets := make(map[string]blockSource)
	sources := make([][2]blockSource, len(spec.Types))
	for ti, bt := range spec.Types {
		for li, id := range [2]string{bt.First, bt.Second} {
			src, ok := offsets[id]
			if !ok {
				sub, found := doc.List(id)
				if !found || len(sub.Values) == 0 {
					return nil, fmt.Errorf("block list %q: list %q is missing or empty", l.Label(), id)
				}
				src = blockSource{offset: len(plan.Values), length: len(sub.Values)}
				offsets[id] = src
				plan.Values = append(plan.Values, sub.Values...)
			}
			sources[ti][li] = src
		}
	}

	total := spec.Trials()
	plan.Draws = make([]BlockDraw, total)

	typ := 0
	if len(spec.Types) == 2 {
		typ = startIndex(spec.Starting, seed, streamStartType)
	}
	list := startIndex(spec.Types[typ].Starting, seed, streamStartList, uint64(typ))

	for i := 0; i < total; i++ {
		if i > 0 && i%spec.LengthOfBlocks == 0 {
			switched := false
			if len(spec.Types) == 2 && rng.Float64(seed, streamSwitchType, uint64(i)) < spec.Switch {
				typ = 1 - typ
				list = startIndex(spec.Types[typ].Starting, seed, streamStartList, uint64(typ), uint64(i))
				switched = true
			}
			if !switched && rng.Float64(seed, streamSwitchList, uint64(i)) < spec.Types[typ].Switch {
				list = 1 - list
			}
		}
		src := sources[typ][list]
		plan.Draws[i] = BlockDraw{
			Position: src.offset + rng.Intn(src.length, seed, streamDraw, uint64(i)),
			Type:     typ + 1,
			List:     list + 1,
		}
	}

	return plan, nil
}

func startIndex(policy design.StartingList, seed uint64, parts ...uint64) int {
	switch policy {
	case design.StartFirst:
		return 0
	case design.StartSecond:
		return 1
	}
	return rng.Intn(2, seed, parts...)
}
