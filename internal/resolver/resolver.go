// Package resolver turns a section of a design document into the concrete
// ordered list of values each variable takes on every trial.
//
// Resolution is all-or-nothing: any structural problem is reported in a
// *design.ValidationError and no trial is produced. All randomness is
// derived from the section and list seeds, so resolving twice with the
// same seeds yields identical trials.
package resolver

import (
	"fmt"
	"sort"

	"github.com/marinraf/StimuliApp-sub001/internal/design"
	"github.com/marinraf/StimuliApp-sub001/internal/rng"
	"github.com/marinraf/StimuliApp-sub001/internal/staircase"
)

// MaxTrials caps the number of trials of one section.
const MaxTrials = 10000

// Sub-seed streams.
const (
	streamListShuffle = 101
	streamSlots       = 257
	streamAlternate   = 307
	streamRandom      = 401
	streamDifferent   = 631
	streamJitter      = 733

	streamStartType  = 163
	streamStartList  = 229
	streamSwitchType = 347
	streamSwitchList = 409
	streamDraw       = 503
)

// VariableInfo describes one variable of a resolved section.
type VariableInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Scene    int    `json:"scene"`
	Object   int    `json:"object"`
	ObjectID string `json:"object_id"`
	Property string `json:"property"`
	List     string `json:"list"`
	Group    int    `json:"group,omitempty"`
	Style    Style  `json:"style"`
}

// ResolvedValue is the value one variable takes on one trial.
type ResolvedValue struct {
	Variable string `json:"variable"`
	// Position is the draw position in the materialized list.
	Position int `json:"position"`
	// Source is the matching position in the authored list.
	Source int          `json:"source"`
	Value  design.Value `json:"value"`
}

// ResolvedTrial holds the values of every variable for one trial, in
// variable declaration order.
type ResolvedTrial struct {
	Index      int             `json:"index"`
	Values     []ResolvedValue `json:"values"`
	Block      int             `json:"block,omitempty"`
	TrialValue *design.Value   `json:"trial_value,omitempty"`
}

// Dependent is a correct-dependent variable whose position is stepped by
// a staircase at run time.
type Dependent struct {
	Variable int            `json:"variable"`
	Rule     staircase.Rule `json:"rule"`
	Start    int            `json:"start"`
	Length   int            `json:"length"`
}

// Resolution is the resolved form of one section.
type Resolution struct {
	SectionID    string           `json:"section"`
	Seed         uint64           `json:"seed"`
	Total        int              `json:"total"`
	Combinations int              `json:"combinations"`
	Repetitions  int              `json:"repetitions"`
	Variables    []VariableInfo   `json:"variables"`
	Lists        map[string]*List `json:"lists"`
	Dependent    []Dependent      `json:"dependent,omitempty"`
	Trials       []ResolvedTrial  `json:"trials"`

	varLists   []*List
	selections []design.Selection
	trialValue *design.TrialValueBinding
	trialVar   int
}

type group struct {
	ordinal int
	style   Style
	vars    []int
	n       int
	block   int
}

// Resolve resolves sec. Seeds must hold the section seed and the seed of
// every list the section uses (see rng.SectionKey and rng.ListKey).
func Resolve(doc *design.Document, sec *design.Section, seeds rng.Seeds) (*Resolution, error) {
	var p design.Problems
	vars := sec.Variables()

	sectionSeed, ok := seeds[rng.SectionKey(sec.ID)]
	if !ok {
		p.Addf("section %q: no seed recorded", sec.Label())
	}

	res := &Resolution{
		SectionID:  sec.ID,
		Seed:       sectionSeed,
		Lists:      make(map[string]*List),
		Variables:  make([]VariableInfo, len(vars)),
		varLists:   make([]*List, len(vars)),
		selections: make([]design.Selection, len(vars)),
		trialValue: sec.TrialValue,
		trialVar:   -1,
	}

	blockVar := -1
	for i, v := range vars {
		res.Variables[i] = VariableInfo{
			ID:       v.ID,
			Name:     v.Label(),
			Scene:    v.Scene,
			Object:   v.Object,
			ObjectID: sec.Scenes[v.Scene].Objects[v.Object].ID,
			Property: v.Property,
			List:     v.List,
			Group:    v.Group,
		}
		res.selections[i] = v.Selection
		if sec.TrialValue != nil && sec.TrialValue.Variable == v.ID {
			res.trialVar = i
		}

		l, ok := doc.List(v.List)
		if !ok {
			p.Addf("section %q: variable %q: list %q not found", sec.Label(), v.Label(), v.List)
			continue
		}
		m, done := res.Lists[l.ID]
		if !done {
			seed, ok := seeds[rng.ListKey(l.ID)]
			if !ok {
				p.Addf("section %q: list %q: no seed recorded", sec.Label(), l.Label())
				continue
			}
			var err error
			if m, err = Materialize(doc, l, seed); err != nil {
				p.Addf("section %q: %v", sec.Label(), err)
				continue
			}
			res.Lists[l.ID] = m
		}
		if m.Len() == 0 {
			p.Addf("section %q: variable %q: list %q is empty", sec.Label(), v.Label(), l.Label())
			continue
		}
		res.varLists[i] = m

		if m.Blocks != nil {
			if blockVar >= 0 {
				p.Addf("section %q: variables %q and %q both use block lists; only one is allowed",
					sec.Label(), vars[blockVar].Label(), v.Label())
			} else {
				blockVar = i
				res.Variables[i].Style = BlockManaged
			}
		}
	}
	if p.Len() > 0 {
		return nil, p.Err()
	}

	groups := buildGroups(sec, vars, res, blockVar, &p)

	if tv := sec.TrialValue; tv != nil && res.trialVar >= 0 && tv.Mode == design.TrialValueOther {
		if n := res.varLists[res.trialVar].Len(); len(tv.Values) != n {
			p.Addf("section %q: trial value needs %d values, got %d", sec.Label(), n, len(tv.Values))
		}
	}

	combos := 1
	for _, g := range groups {
		if !g.style.Counterbalanced() {
			continue
		}
		combos *= g.n
		if combos > MaxTrials {
			break
		}
	}

	total, reps := 0, sec.Reps()
	if blockVar >= 0 {
		total = len(res.varLists[blockVar].Blocks.Draws)
		if combos > 0 && total%combos != 0 {
			p.Addf("section %q: %d block trials cannot be split over %d value combinations",
				sec.Label(), total, combos)
		} else if combos > 0 {
			reps = total / combos
		}
	} else {
		total = combos * reps
	}
	if total > MaxTrials || combos > MaxTrials {
		p.Addf("section %q: %d trials exceed the maximum of %d", sec.Label(), total, MaxTrials)
	}
	if total <= 0 {
		p.Addf("section %q: no trials to run", sec.Label())
	}
	if p.Len() > 0 {
		return nil, p.Err()
	}

	res.Total = total
	res.Combinations = combos
	res.Repetitions = reps
	res.Trials = make([]ResolvedTrial, total)
	for t := range res.Trials {
		res.Trials[t] = ResolvedTrial{Index: t, Values: make([]ResolvedValue, len(vars))}
	}

	positions := order(groups, total, reps, sectionSeed)
	for _, g := range groups {
		assign(res, g, positions[g.ordinal], sectionSeed)
	}
	if blockVar >= 0 {
		draws := res.varLists[blockVar].Blocks.Draws
		for t := range res.Trials {
			res.Trials[t].Values[blockVar] = res.draw(blockVar, t, draws[t].Position)
			res.Trials[t].Block = draws[t].Type
		}
	}
	for t := range res.Trials {
		res.Trials[t].TrialValue = res.resolveTrialValue(res.Trials[t])
	}

	return res, nil
}

func buildGroups(sec *design.Section, vars []design.BoundVariable, res *Resolution, blockVar int, p *design.Problems) []*group {
	var groups []*group
	byID := make(map[int]*group)

	for i, v := range vars {
		if i == blockVar {
			continue
		}
		g := byID[v.Group]
		if v.Group == 0 || g == nil {
			g = &group{ordinal: len(groups), n: res.varLists[i].Len()}
			groups = append(groups, g)
			if v.Group != 0 {
				byID[v.Group] = g
			}
		} else if vars[g.vars[0]].Selection.Method != v.Selection.Method {
			p.Addf("section %q group %d: variables %q and %q use different selection methods",
				sec.Label(), v.Group, vars[g.vars[0]].Label(), v.Label())
		}
		g.vars = append(g.vars, i)
	}

	for _, g := range groups {
		first := vars[g.vars[0]]
		alternate := false
		for _, vi := range g.vars {
			if sec.Alternate != "" && vars[vi].ID == sec.Alternate {
				alternate = true
			}
		}
		if alternate && !first.Selection.Method.Counterbalanced() {
			p.Addf("section %q: alternate variable %q must be in order or shuffled", sec.Label(), sec.Alternate)
		}
		g.style = styleOf(first.Selection, alternate)
		for _, vi := range g.vars {
			res.Variables[vi].Style = g.style
		}
		checkGroup(sec, vars, res, g, p)
	}
	return groups
}

func checkGroup(sec *design.Section, vars []design.BoundVariable, res *Resolution, g *group, p *design.Problems) {
	for _, vi := range g.vars {
		v := vars[vi]
		n := res.varLists[vi].Len()
		switch g.style {
		case Fixed:
			if v.Selection.Position < 1 || v.Selection.Position > n {
				p.Addf("section %q: variable %q: fixed position %d is outside list %q (1..%d)",
					sec.Label(), v.Label(), v.Selection.Position, v.List, n)
			}
		case CorrectDependent:
			if v.Selection.Position > n || v.Selection.Position < 0 {
				p.Addf("section %q: variable %q: starting position %d is outside list %q (1..%d)",
					sec.Label(), v.Label(), v.Selection.Position, v.List, n)
			}
			if n < v.Selection.Staircase.MinValues() {
				p.Addf("section %q: variable %q: rule %s needs at least %d values, list %q has %d",
					sec.Label(), v.Label(), v.Selection.Staircase, v.Selection.Staircase.MinValues(), v.List, n)
			}
		case RandomEqual:
			// The shared index spans the longest list.
			if n > g.n {
				g.n = n
			}
		case RandomDifferent:
			if n != g.n {
				p.Addf("section %q group %d: lists of different lengths (%d and %d)", sec.Label(), v.Group, g.n, n)
			}
		default:
			if g.style.Counterbalanced() && n != g.n {
				p.Addf("section %q group %d: lists of different lengths (%d and %d)", sec.Label(), v.Group, g.n, n)
			}
		}
	}
	if g.style == RandomDifferent && len(g.vars) > g.n {
		p.Addf("section %q group %d: %d variables cannot take different values from %d list values",
			sec.Label(), vars[g.vars[0]].Group, len(g.vars), g.n)
	}
}

// order computes, for every counterbalanced group, its list position on
// every trial slot. Slot t decomposes as
//
//	t = (orderedBlock × cells + cell) × alt + a
//
// where alt is the cardinality of the alternating group (1 without one)
// and cells spans the repetitions times the shuffled groups. One seeded
// permutation of the cells per ordered block is shared by every shuffled
// group, so their joint combinations stay balanced.
func order(groups []*group, total, reps int, seed uint64) map[int][]int {
	var cb []*group
	for _, g := range groups {
		if g.style.Counterbalanced() {
			cb = append(cb, g)
		}
	}
	sort.SliceStable(cb, func(i, j int) bool {
		return cb[i].style.nesting() < cb[j].style.nesting()
	})

	alt, cells, shuffled := 1, reps, false
	for _, g := range cb {
		switch {
		case g.style.alternating():
			alt *= g.n
		case g.style == ShuffledIndependent:
			cells *= g.n
			shuffled = true
		}
	}

	// Block sizes, innermost first, in unshuffled slot units. Repetitions
	// sit just inside the innermost ordered group.
	running, repsApplied := 1, false
	for i := len(cb) - 1; i >= 0; i-- {
		g := cb[i]
		if !repsApplied && g.style.nesting() <= OrderedHigh.nesting() {
			running *= reps
			repsApplied = true
		}
		g.block = running
		running *= g.n
	}

	span := cells * alt
	var perm []int
	permBlock := -1

	out := make(map[int][]int, len(cb))
	for _, g := range cb {
		out[g.ordinal] = make([]int, total)
	}
	for t := 0; t < total; t++ {
		ob, rest := t/span, t%span
		cell, a := rest/alt, rest%alt
		if shuffled && ob != permBlock {
			perm = rng.Perm(cells, seed, streamSlots, uint64(ob))
			permBlock = ob
		}
		shuffledCell := cell
		if shuffled {
			shuffledCell = perm[cell]
		}
		slot := ob*span + shuffledCell*alt + a

		for _, g := range cb {
			pos := (slot / g.block) % g.n
			if g.style == ShuffledAlternating {
				pos = rng.Perm(g.n, seed, streamAlternate, uint64(t/alt))[pos]
			}
			out[g.ordinal][t] = pos
		}
	}
	return out
}

func assign(res *Resolution, g *group, positions []int, seed uint64) {
	for t := range res.Trials {
		var perm []int
		var shared int
		switch g.style {
		case RandomEqual:
			shared = rng.Intn(g.n, seed, streamRandom, uint64(g.ordinal), uint64(t))
		case RandomDifferent:
			perm = rng.Perm(g.n, seed, streamDifferent, uint64(g.ordinal), uint64(t))
		}

		for k, vi := range g.vars {
			var pos int
			switch g.style {
			case RandomEqual:
				pos = shared % res.varLists[vi].Len()
			case RandomDifferent:
				pos = perm[k]
			case Fixed:
				pos = res.fixedPosition(vi)
			case CorrectDependent:
				pos = res.dependentStart(vi)
			default:
				pos = positions[t]
			}
			res.Trials[t].Values[vi] = res.draw(vi, t, pos)
		}
	}

	if g.style == CorrectDependent {
		for _, vi := range g.vars {
			res.Dependent = append(res.Dependent, Dependent{
				Variable: vi,
				Rule:     res.selections[vi].Staircase,
				Start:    res.dependentStart(vi),
				Length:   res.varLists[vi].Len(),
			})
		}
	}
}

func (r *Resolution) fixedPosition(vi int) int {
	return r.selections[vi].Position - 1
}

func (r *Resolution) dependentStart(vi int) int {
	sel := r.selections[vi]
	start := sel.Position - 1
	if start < 0 {
		start = 0
	}
	return staircase.New(sel.Staircase, start, r.varLists[vi].Len()).Index
}

// draw returns the value of variable vi at list position pos on trial t,
// with the list's jitter applied to every numeric component.
func (r *Resolution) draw(vi, t, pos int) ResolvedValue {
	m := r.varLists[vi]
	v := m.Values[pos]
	if m.Jitter != 0 {
		for c := 0; c < v.Components(); c++ {
			j := rng.Uniform(-m.Jitter, m.Jitter, m.Seed, streamJitter, uint64(vi), uint64(t), uint64(c))
			v = v.WithComponent(c, v.Component(c)+j)
		}
	}
	return ResolvedValue{
		Variable: r.Variables[vi].ID,
		Position: pos,
		Source:   m.Source[pos],
		Value:    v,
	}
}

func (r *Resolution) resolveTrialValue(tr ResolvedTrial) *design.Value {
	if r.trialValue == nil || r.trialVar < 0 {
		return nil
	}
	rv := tr.Values[r.trialVar]
	v := rv.Value
	if r.trialValue.Mode == design.TrialValueOther {
		v = r.trialValue.Values[rv.Source]
	}
	return &v
}

// WithPosition returns a copy of tr with variable vi drawn at list
// position pos. The trial value follows when it is bound to vi.
func (r *Resolution) WithPosition(tr ResolvedTrial, vi, pos int) (ResolvedTrial, error) {
	if vi < 0 || vi >= len(r.varLists) {
		return tr, fmt.Errorf("section %q: no variable #%d", r.SectionID, vi)
	}
	if pos < 0 || pos >= r.varLists[vi].Len() {
		return tr, fmt.Errorf("section %q: variable %q: position %d out of range", r.SectionID, r.Variables[vi].ID, pos)
	}
	out := tr
	out.Values = append([]ResolvedValue(nil), tr.Values...)
	out.Values[vi] = r.draw(vi, tr.Index, pos)
	out.TrialValue = r.resolveTrialValue(out)
	return out, nil
}

// VariableIndex returns the index of the variable with the given id.
func (r *Resolution) VariableIndex(id string) int {
	for i, v := range r.Variables {
		if v.ID == id {
			return i
		}
	}
	return -1
}
