package resolver

import (
	"strings"
	"testing"

	"github.com/marinraf/StimuliApp-sub001/internal/design"
	"github.com/marinraf/StimuliApp-sub001/internal/rng"
)

func blockDoc(spec design.BlockSpec) *design.Document {
	return &design.Document{
		Lists: []design.ValueList{
			scalarList("low", 2),
			scalarList("high", 3),
			scalarList("left", 2),
			scalarList("right", 2),
			{ID: "blocks", Blocks: &spec},
		},
	}
}

func TestPlanBlocksWithoutSwitching(t *testing.T) {
	doc := blockDoc(design.BlockSpec{
		NumberOfBlocks: 4,
		LengthOfBlocks: 5,
		Types:          []design.BlockType{{First: "low", Second: "high", Starting: design.StartFirst}},
	})
	l, _ := doc.List("blocks")
	plan, err := PlanBlocks(doc, l, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Draws) != 20 {
		t.Fatalf("expected 20 draws, got %d", len(plan.Draws))
	}
	if len(plan.Values) != 5 {
		t.Errorf("expected 5 concatenated values, got %d", len(plan.Values))
	}
	for i, d := range plan.Draws {
		if d.List != 1 || d.Type != 1 {
			t.Errorf("draw %d: expected first list of type 1, got list %d type %d", i, d.List, d.Type)
		}
		if d.Position < 0 || d.Position >= 2 {
			t.Errorf("draw %d: position %d outside the first list", i, d.Position)
		}
	}
}

func TestPlanBlocksAlwaysSwitching(t *testing.T) {
	doc := blockDoc(design.BlockSpec{
		NumberOfBlocks: 4,
		LengthOfBlocks: 3,
		Types:          []design.BlockType{{First: "low", Second: "high", Starting: design.StartSecond, Switch: 1}},
	})
	l, _ := doc.List("blocks")
	plan, err := PlanBlocks(doc, l, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, d := range plan.Draws {
		block := i / 3
		want := 2 - block%2
		if d.List != want {
			t.Errorf("draw %d: expected list %d, got %d", i, want, d.List)
		}
		if d.List == 2 && (d.Position < 2 || d.Position >= 5) {
			t.Errorf("draw %d: position %d outside the second list", i, d.Position)
		}
	}
}

func TestPlanBlocksTwoTypes(t *testing.T) {
	doc := blockDoc(design.BlockSpec{
		NumberOfBlocks: 6,
		LengthOfBlocks: 2,
		Starting:       design.StartFirst,
		Switch:         1,
		Types: []design.BlockType{
			{First: "low", Second: "high", Starting: design.StartFirst},
			{First: "left", Second: "right", Starting: design.StartSecond},
		},
	})
	l, _ := doc.List("blocks")
	plan, err := PlanBlocks(doc, l, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Values) != 9 {
		t.Fatalf("expected 9 concatenated values, got %d", len(plan.Values))
	}

	for i, d := range plan.Draws {
		block := i / 2
		wantType := 1 + block%2
		if d.Type != wantType {
			t.Errorf("draw %d: expected type %d, got %d", i, wantType, d.Type)
		}
		if d.Type == 2 {
			if d.List != 2 {
				t.Errorf("draw %d: expected type 2 to restart on its second list", i)
			}
			if d.Position < 7 || d.Position >= 9 {
				t.Errorf("draw %d: position %d outside list right", i, d.Position)
			}
		}
	}
}

func TestPlanBlocksDeterministic(t *testing.T) {
	doc := blockDoc(design.BlockSpec{
		NumberOfBlocks: 10,
		LengthOfBlocks: 4,
		Types:          []design.BlockType{{First: "low", Second: "high", Switch: 0.5}},
	})
	l, _ := doc.List("blocks")
	a, _ := PlanBlocks(doc, l, 77)
	b, _ := PlanBlocks(doc, l, 77)
	for i := range a.Draws {
		if a.Draws[i] != b.Draws[i] {
			t.Fatalf("draw %d differs: %+v vs %+v", i, a.Draws[i], b.Draws[i])
		}
	}
}

func TestBlockManagedSection(t *testing.T) {
	doc := blockDoc(design.BlockSpec{
		NumberOfBlocks: 3,
		LengthOfBlocks: 4,
		Types:          []design.BlockType{{First: "low", Second: "high", Switch: 0.3}},
	})
	doc.Sections = []design.Section{newSection(5,
		variable("blocked", "blocks", 0, design.Selection{}),
		variable("side", "left", 0, design.Selection{Method: design.MethodShuffled}),
	)}
	res := resolve(t, doc)

	if res.Total != 12 {
		t.Fatalf("expected 12 trials (blocks x length), got %d", res.Total)
	}
	if res.Repetitions != 6 {
		t.Errorf("expected the 2 side values repeated 6 times, got %d", res.Repetitions)
	}
	plan := res.Lists["blocks"].Blocks
	for i, tr := range res.Trials {
		if tr.Values[0].Position != plan.Draws[i].Position {
			t.Errorf("trial %d: expected block draw %d, got %d", i, plan.Draws[i].Position, tr.Values[0].Position)
		}
		if tr.Block != 1 {
			t.Errorf("trial %d: expected block type 1, got %d", i, tr.Block)
		}
	}
}

func TestBlockManagedSectionMustDivide(t *testing.T) {
	doc := blockDoc(design.BlockSpec{
		NumberOfBlocks: 1,
		LengthOfBlocks: 5,
		Types:          []design.BlockType{{First: "low", Second: "high"}},
	})
	doc.Sections = []design.Section{newSection(1,
		variable("blocked", "blocks", 0, design.Selection{}),
		variable("side", "left", 0, design.Selection{Method: design.MethodShuffled}),
	)}
	_, err := Resolve(doc, &doc.Sections[0], seedsFor(doc))
	if err == nil || !strings.Contains(err.Error(), "cannot be split") {
		t.Errorf("expected divisibility error, got %v", err)
	}
}

func TestMaterializeShuffledKeepsSource(t *testing.T) {
	l := scalarList("a", 6)
	l.Order = design.OrderShuffled
	m, err := Materialize(&design.Document{}, &l, rng.Mix(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range m.Values {
		if v != l.Values[m.Source[i]] {
			t.Errorf("position %d: value %v does not match source %d", i, v, m.Source[i])
		}
	}
	if l.Values[0] != design.Scalar(10) {
		t.Error("expected authored list to stay in order")
	}
}
