// Package design holds the experiment design document: value lists,
// sections, scenes, objects and the variables that bind lists to object
// properties. Documents are authored elsewhere and read-only here.
package design

import "github.com/marinraf/StimuliApp-sub001/internal/staircase"

// Document is the top-level container loaded from YAML or JSON.
type Document struct {
	Version      int         `yaml:"version" json:"version"`
	Name         string      `yaml:"name" json:"name"`
	FrameRate    int         `yaml:"frame_rate" json:"frame_rate"`
	FirstSection string      `yaml:"first_section" json:"first_section"`
	Lists        []ValueList `yaml:"lists" json:"lists"`
	Sections     []Section   `yaml:"sections" json:"sections"`
}

// ValueList is an ordered collection of values. A list with Blocks set is a
// block list whose values come from other lists.
type ValueList struct {
	ID     string      `yaml:"id" json:"id"`
	Name   string      `yaml:"name" json:"name,omitempty"`
	Values []Value     `yaml:"values" json:"values,omitempty"`
	Order  OrderPolicy `yaml:"order" json:"order"`
	Jitter float64     `yaml:"jitter" json:"jitter,omitempty"`
	Seed   *uint64     `yaml:"seed" json:"seed,omitempty"`
	Blocks *BlockSpec  `yaml:"blocks" json:"blocks,omitempty"`
}

// Label is the display name of the list.
func (l *ValueList) Label() string {
	if l.Name != "" {
		return l.Name
	}
	return l.ID
}

// BlockSpec configures a block list. One or two block types; with two
// types the outer Starting/Switch pair selects the active type.
type BlockSpec struct {
	NumberOfBlocks int          `yaml:"number_of_blocks" json:"number_of_blocks"`
	LengthOfBlocks int          `yaml:"length_of_blocks" json:"length_of_blocks"`
	Types          []BlockType  `yaml:"types" json:"types"`
	Starting       StartingList `yaml:"starting" json:"starting"`
	Switch         float64      `yaml:"switch_probability" json:"switch_probability"`
}

// Trials is the length of the stream a block list produces.
func (b *BlockSpec) Trials() int { return b.NumberOfBlocks * b.LengthOfBlocks }

// BlockType is a pair of lists with a starting policy and a switch
// probability applied at block boundaries.
type BlockType struct {
	First    string       `yaml:"first" json:"first"`
	Second   string       `yaml:"second" json:"second"`
	Starting StartingList `yaml:"starting" json:"starting"`
	Switch   float64      `yaml:"switch_probability" json:"switch_probability"`
}

// Selection describes how a variable picks values from its list.
type Selection struct {
	Method   Method     `yaml:"method" json:"method"`
	Priority Priority   `yaml:"priority" json:"priority,omitempty"`
	Random   RandomMode `yaml:"random" json:"random,omitempty"`
	// Position is the 1-based list position for fixed selection and the
	// starting position of correct-dependent selection.
	Position  int       `yaml:"position" json:"position,omitempty"`
	Staircase staircase.Rule `yaml:"staircase" json:"staircase,omitempty"`
}

// Variable binds a value list to a property of its object.
type Variable struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name,omitempty"`
	Property  string    `yaml:"property" json:"property"`
	List      string    `yaml:"list" json:"list"`
	Group     int       `yaml:"group" json:"group,omitempty"`
	Selection Selection `yaml:"selection" json:"selection"`
}

// Label is the display name of the variable.
func (v *Variable) Label() string {
	if v.Name != "" {
		return v.Name
	}
	return v.ID
}

// Object is a stimulus, text, video or audio element of a scene.
type Object struct {
	ID         string       `yaml:"id" json:"id"`
	Name       string       `yaml:"name" json:"name,omitempty"`
	Kind       ObjectKind   `yaml:"kind" json:"kind"`
	Properties PropertyTree `yaml:"properties" json:"-"`
	Variables  []Variable   `yaml:"variables" json:"variables,omitempty"`
}

// Timing property names read by the timeline builder.
const (
	PropStart     = "start"
	PropDuration  = "duration"
	PropActivated = "activated"
)

// SceneDuration decides when a scene ends.
type SceneDuration struct {
	Mode    DurationMode `yaml:"mode" json:"mode"`
	Seconds float64      `yaml:"seconds" json:"seconds,omitempty"`
}

// SceneResponse is the input accepted by a scene.
type SceneResponse struct {
	Type ResponseType `yaml:"type" json:"type"`
	// EndsScene ends the scene as soon as a response arrives.
	EndsScene bool `yaml:"ends_scene" json:"ends_scene,omitempty"`
}

type Scene struct {
	ID       string        `yaml:"id" json:"id"`
	Name     string        `yaml:"name" json:"name,omitempty"`
	Duration SceneDuration `yaml:"duration" json:"duration"`
	Response SceneResponse `yaml:"response" json:"response"`
	Objects  []Object      `yaml:"objects" json:"objects"`
}

// TrialValueBinding names what is logged as the nominal trial value.
type TrialValueBinding struct {
	Variable string         `yaml:"variable" json:"variable"`
	Mode     TrialValueMode `yaml:"mode" json:"mode"`
	// Values holds one value per list value when Mode is other.
	Values []Value `yaml:"values" json:"values,omitempty"`
}

// ResponseBinding names the scored part of a captured response.
type ResponseBinding struct {
	Scene  string       `yaml:"scene" json:"scene"`
	Kind   ResponseKind `yaml:"kind" json:"kind"`
	Margin float64      `yaml:"margin" json:"margin"`
	// Default replaces a missing response when set.
	Default *float64 `yaml:"default" json:"default,omitempty"`
}

// Condition is one end-of-section rule. An empty Next ends the test.
type Condition struct {
	Kind     ConditionKind `yaml:"kind" json:"kind"`
	N        int           `yaml:"n" json:"n,omitempty"`
	Accuracy float64       `yaml:"accuracy" json:"accuracy,omitempty"`
	Next     string        `yaml:"next" json:"next,omitempty"`
}

// Section is the unit of trial repetition.
type Section struct {
	ID          string             `yaml:"id" json:"id"`
	Name        string             `yaml:"name" json:"name,omitempty"`
	Repetitions int                `yaml:"repetitions" json:"repetitions"`
	Seed        *uint64            `yaml:"seed" json:"seed,omitempty"`
	Alternate   string             `yaml:"alternate" json:"alternate,omitempty"`
	Scenes      []Scene            `yaml:"scenes" json:"scenes"`
	TrialValue  *TrialValueBinding `yaml:"trial_value" json:"trial_value,omitempty"`
	Response    *ResponseBinding   `yaml:"response" json:"response,omitempty"`
	Conditions  []Condition        `yaml:"conditions" json:"conditions,omitempty"`
	// Next is taken when no condition matches and no trials remain.
	// Empty ends the test.
	Next string `yaml:"next" json:"next,omitempty"`
}

// Label is the display name of the section.
func (s *Section) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// Reps is the repetition count; zero counts as one.
func (s *Section) Reps() int {
	if s.Repetitions < 1 {
		return 1
	}
	return s.Repetitions
}

// BoundVariable is a variable together with the scene and object that own it.
type BoundVariable struct {
	Variable
	Scene  int
	Object int
}

// Variables flattens the section's variables in declaration order.
func (s *Section) Variables() []BoundVariable {
	var out []BoundVariable
	for si := range s.Scenes {
		for oi := range s.Scenes[si].Objects {
			for _, v := range s.Scenes[si].Objects[oi].Variables {
				out = append(out, BoundVariable{Variable: v, Scene: si, Object: oi})
			}
		}
	}
	return out
}

// SceneIndex returns the index of the scene with the given id.
func (s *Section) SceneIndex(id string) int {
	for i := range s.Scenes {
		if s.Scenes[i].ID == id {
			return i
		}
	}
	return -1
}

// List returns the list with the given id.
func (d *Document) List(id string) (*ValueList, bool) {
	for i := range d.Lists {
		if d.Lists[i].ID == id {
			return &d.Lists[i], true
		}
	}
	return nil, false
}

// Section returns the section with the given id.
func (d *Document) Section(id string) (*Section, bool) {
	for i := range d.Sections {
		if d.Sections[i].ID == id {
			return &d.Sections[i], true
		}
	}
	return nil, false
}
