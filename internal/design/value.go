package design

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindScalar ValueKind = iota
	KindVector2
	KindVector3
	KindMedia
)

var valueKindNames = [...]string{"scalar", "vector2", "vector3", "media"}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is one entry of a value list. Media values carry an opaque
// reference resolved by the renderer; numeric values carry up to three
// components.
type Value struct {
	Kind  ValueKind `json:"kind"`
	X     float64   `json:"x,omitempty"`
	Y     float64   `json:"y,omitempty"`
	Z     float64   `json:"z,omitempty"`
	Media string    `json:"media,omitempty"`
}

func Scalar(x float64) Value { return Value{Kind: KindScalar, X: x} }
func Vec2(x, y float64) Value { return Value{Kind: KindVector2, X: x, Y: y} }
func Vec3(x, y, z float64) Value { return Value{Kind: KindVector3, X: x, Y: y, Z: z} }
func MediaRef(ref string) Value { return Value{Kind: KindMedia, Media: ref} }

// Components is the number of numeric components (0 for media).
func (v Value) Components() int {
	switch v.Kind {
	case KindScalar:
		return 1
	case KindVector2:
		return 2
	case KindVector3:
		return 3
	}
	return 0
}

// Component returns component i (0 = x, 1 = y, 2 = z).
func (v Value) Component(i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	case 2:
		return v.Z
	}
	return 0
}

// WithComponent returns a copy of v with component i replaced.
func (v Value) WithComponent(i int, x float64) Value {
	switch i {
	case 0:
		v.X = x
	case 1:
		v.Y = x
	case 2:
		v.Z = x
	}
	return v
}

// Distance is the Euclidean distance over the numeric components of v.
func (v Value) Distance(o Value) float64 {
	n := v.Components()
	if o.Components() > n {
		n = o.Components()
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := v.Component(i) - o.Component(i)
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Plain converts v to a JSON-friendly form: a number, a list of numbers
// or the media reference.
func (v Value) Plain() interface{} {
	switch v.Kind {
	case KindScalar:
		return v.X
	case KindMedia:
		return v.Media
	}
	out := make([]float64, v.Components())
	for i := range out {
		out[i] = v.Component(i)
	}
	return out
}

func (v Value) String() string {
	switch v.Kind {
	case KindScalar:
		return fmt.Sprintf("%g", v.X)
	case KindVector2:
		return fmt.Sprintf("(%g, %g)", v.X, v.Y)
	case KindVector3:
		return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
	case KindMedia:
		return v.Media
	}
	return "?"
}

// UnmarshalYAML accepts a number, a 2 or 3 element sequence, or a
// mapping with a media key.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var x float64
		if err := node.Decode(&x); err != nil {
			return fmt.Errorf("line %d: value %q is not a number", node.Line, node.Value)
		}
		*v = Scalar(x)
		return nil
	case yaml.SequenceNode:
		var xs []float64
		if err := node.Decode(&xs); err != nil {
			return fmt.Errorf("line %d: vector value: %w", node.Line, err)
		}
		switch len(xs) {
		case 2:
			*v = Vec2(xs[0], xs[1])
		case 3:
			*v = Vec3(xs[0], xs[1], xs[2])
		default:
			return fmt.Errorf("line %d: vector value must have 2 or 3 components, got %d", node.Line, len(xs))
		}
		return nil
	case yaml.MappingNode:
		var m struct {
			Media string `yaml:"media"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		if m.Media == "" {
			return fmt.Errorf("line %d: mapping value needs a media reference", node.Line)
		}
		*v = MediaRef(m.Media)
		return nil
	}
	return fmt.Errorf("line %d: unsupported value", node.Line)
}
