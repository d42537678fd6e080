package design

import (
	"errors"
	"strings"
	"testing"

	"github.com/marinraf/StimuliApp-sub001/internal/staircase"
	"gopkg.in/yaml.v3"
)

const examplePath = "../../designs/examples/contrast.v1.yaml"

func TestLoadExample(t *testing.T) {
	doc, err := Load(examplePath)
	if err != nil {
		t.Fatalf("failed to load design: %v", err)
	}

	if doc.FrameRate != 60 {
		t.Errorf("expected frame rate 60, got %d", doc.FrameRate)
	}
	if len(doc.Lists) != 4 {
		t.Errorf("expected 4 lists, got %d", len(doc.Lists))
	}
	if len(doc.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(doc.Sections))
	}

	pos, ok := doc.List("positions")
	if !ok {
		t.Fatal("expected list positions")
	}
	if pos.Order != OrderShuffled {
		t.Errorf("expected shuffled order, got %v", pos.Order)
	}
	if pos.Values[1] != Vec2(5, 0) {
		t.Errorf("expected (5, 0), got %v", pos.Values[1])
	}
	if pos.Seed == nil || *pos.Seed != 11 {
		t.Errorf("expected seed 11, got %v", pos.Seed)
	}

	practice, _ := doc.Section("practice")
	vars := practice.Variables()
	if len(vars) != 3 {
		t.Fatalf("expected 3 practice variables, got %d", len(vars))
	}
	if vars[1].ID != "practice_orientation" || vars[1].Selection.Priority != PriorityLow {
		t.Errorf("unexpected second variable: %+v", vars[1])
	}
	if vars[1].Scene != 1 || vars[1].Object != 0 {
		t.Errorf("expected owner scene 1 object 0, got %d/%d", vars[1].Scene, vars[1].Object)
	}

	mainSec, _ := doc.Section("main")
	if mainSec.Response == nil || mainSec.Response.Default == nil || *mainSec.Response.Default != -1 {
		t.Error("expected main response default -1")
	}
	contrast := mainSec.Variables()[1]
	if contrast.Selection.Method != MethodCorrectDependent {
		t.Errorf("expected correct_dependent, got %v", contrast.Selection.Method)
	}
	if contrast.Selection.Staircase != staircase.OneUpTwoDown {
		t.Errorf("expected 1up_2down, got %v", contrast.Selection.Staircase)
	}
	if !mainSec.Scenes[1].Response.Type.Deferred() {
		t.Error("expected keyboard response to be deferred")
	}

	if err := Validate(doc); err != nil {
		t.Errorf("expected example to validate, got %v", err)
	}
}

func TestParseRejectsUnknownVersion(t *testing.T) {
	if _, err := Parse([]byte("version: 2\n")); err == nil {
		t.Error("expected error for version 2")
	}
}

func TestParseRejectsUnknownEnum(t *testing.T) {
	data := `
version: 1
lists:
  - id: a
    values: [1]
    order: sideways
`
	if _, err := Parse([]byte(data)); err == nil {
		t.Error("expected error for unknown order policy")
	}
}

func TestValueShapes(t *testing.T) {
	var vals []Value
	if err := yaml.Unmarshal([]byte(`[1.5, [1, 2], [1, 0, 0], {media: face.png}]`), &vals); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Value{Scalar(1.5), Vec2(1, 2), Vec3(1, 0, 0), MediaRef("face.png")}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("value %d: expected %v, got %v", i, want[i], vals[i])
		}
	}

	var bad []Value
	if err := yaml.Unmarshal([]byte(`[[1, 2, 3, 4]]`), &bad); err == nil {
		t.Error("expected error for 4-component vector")
	}
}

func TestValueDistance(t *testing.T) {
	if d := Vec2(0, 0).Distance(Vec2(3, 4)); d != 5 {
		t.Errorf("expected distance 5, got %f", d)
	}
	if d := Scalar(2).Distance(Scalar(-1)); d != 3 {
		t.Errorf("expected distance 3, got %f", d)
	}
}

func TestPropertyTreeArena(t *testing.T) {
	var tree PropertyTree
	data := `
size: 2
color: [1, 0, 0]
shape: circle
gabor:
  frequency: 4
  phase: 0.5
`
	if err := yaml.Unmarshal([]byte(data), &tree); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	idx, ok := tree.Lookup("gabor.frequency")
	if !ok {
		t.Fatal("expected gabor.frequency")
	}
	n := tree.Node(idx)
	if n.Kind != PropScalar || n.Value.X != 4 {
		t.Errorf("unexpected node %+v", n)
	}
	if tree.Path(idx) != "gabor.frequency" {
		t.Errorf("expected path gabor.frequency, got %s", tree.Path(idx))
	}
	parent := tree.Node(n.Parent)
	if parent.Kind != PropComposite || parent.Name != "gabor" || len(parent.Children) != 2 {
		t.Errorf("unexpected parent %+v", parent)
	}

	if c, _ := tree.Lookup("color"); tree.Node(c).Kind != PropVector3 {
		t.Error("expected color to be a vector3")
	}
	if s, _ := tree.Lookup("shape"); tree.Node(s).Kind != PropSelect || tree.Node(s).Choice != "circle" {
		t.Error("expected shape to be a select")
	}
	if _, ok := tree.Lookup("gabor.missing"); ok {
		t.Error("expected missing path to fail")
	}
	if _, ok := tree.Get("gabor"); ok {
		t.Error("expected composite to have no value")
	}
}

func TestPropertyTreeRejectsDuplicate(t *testing.T) {
	var tree PropertyTree
	if _, err := tree.Add(0, PropertyNode{Name: "size", Kind: PropScalar}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tree.Add(0, PropertyNode{Name: "size", Kind: PropScalar}); err == nil {
		t.Error("expected duplicate property error")
	}
	if _, err := tree.Add(1, PropertyNode{Name: "x"}); err == nil {
		t.Error("expected error adding under a scalar")
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	data := `
version: 1
frame_rate: 60
lists:
  - id: mixed
    values: [1, [1, 2]]
  - id: vec
    values: [[1, 2]]
sections:
  - id: s
    alternate: ghost
    response: {scene: nowhere, margin: 1}
    conditions:
      - kind: trials
    scenes:
      - id: a
        duration: {mode: constant, seconds: 1}
        objects:
          - id: dot
            properties: {size: 1}
            variables:
              - id: v1
                property: colour
                list: vec
              - id: v2
                property: size
                list: vec
`
	doc, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	err = Validate(doc)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	wants := []string{
		`list "mixed" mixes`,
		`alternate variable "ghost"`,
		`response scene "nowhere"`,
		`n must be positive`,
		`has no property "colour"`,
		`has 1 components, list "vec" values have 2`,
	}
	msg := ve.Error()
	for _, w := range wants {
		if !strings.Contains(msg, w) {
			t.Errorf("expected problem containing %q in %s", w, msg)
		}
	}
	if len(ve.Problems) != len(wants) {
		t.Errorf("expected %d problems, got %d: %v", len(wants), len(ve.Problems), ve.Problems)
	}
}

func TestValidateBlockLists(t *testing.T) {
	data := `
version: 1
frame_rate: 60
lists:
  - id: a
    values: [1, 2]
    jitter: 0.5
  - id: b
    values: [[1, 2]]
  - id: blocks
    blocks:
      number_of_blocks: 2
      length_of_blocks: 3
      types:
        - {first: a, second: missing}
        - {first: b, second: a, switch_probability: 2}
`
	doc, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	err = Validate(doc)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, w := range []string{"jitter, which is not allowed", `list "missing" not found`, "different dimensions", "switch probability"} {
		if !strings.Contains(err.Error(), w) {
			t.Errorf("expected problem containing %q in %v", w, err)
		}
	}
}

func TestValuePlain(t *testing.T) {
	if got := Scalar(0.5).Plain(); got != 0.5 {
		t.Errorf("expected 0.5, got %v", got)
	}
	if got := MediaRef("beep.wav").Plain(); got != "beep.wav" {
		t.Errorf("expected beep.wav, got %v", got)
	}
	vec, ok := Vec3(1, 2, 3).Plain().([]float64)
	if !ok || len(vec) != 3 || vec[2] != 3 {
		t.Errorf("expected [1 2 3], got %v", Vec3(1, 2, 3).Plain())
	}
}
