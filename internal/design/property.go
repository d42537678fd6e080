package design

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// PropertyKind tags a node of a PropertyTree.
type PropertyKind int

const (
	PropScalar PropertyKind = iota
	PropVector2
	PropVector3
	PropSelect
	PropComposite
)

var propertyKindNames = []string{"scalar", "vector2", "vector3", "select", "composite"}

func (k PropertyKind) String() string { return nameOf(propertyKindNames, int(k)) }

// Components is the numeric width of a node (0 for select and composite).
func (k PropertyKind) Components() int {
	switch k {
	case PropScalar:
		return 1
	case PropVector2:
		return 2
	case PropVector3:
		return 3
	}
	return 0
}

// PropertyNode is one entry of the arena. Parent and Children are indexes
// into the same tree; the root has Parent -1.
type PropertyNode struct {
	Name     string
	Kind     PropertyKind
	Value    Value
	Choice   string
	Parent   int
	Children []int
}

// PropertyTree stores an object's properties as a flat arena. Index 0 is
// the unnamed composite root once the tree holds anything.
type PropertyTree struct {
	nodes []PropertyNode
}

func (t *PropertyTree) root() int {
	if len(t.nodes) == 0 {
		t.nodes = append(t.nodes, PropertyNode{Kind: PropComposite, Parent: -1})
	}
	return 0
}

// Add appends a child of parent and returns its index. Parent must be a
// composite node.
func (t *PropertyTree) Add(parent int, n PropertyNode) (int, error) {
	if parent == 0 {
		t.root()
	}
	if parent < 0 || parent >= len(t.nodes) || t.nodes[parent].Kind != PropComposite {
		return -1, fmt.Errorf("property %q: parent %d is not a composite", n.Name, parent)
	}
	for _, c := range t.nodes[parent].Children {
		if t.nodes[c].Name == n.Name {
			return -1, fmt.Errorf("property %q declared twice", t.path(parent, n.Name))
		}
	}
	n.Parent = parent
	n.Children = nil
	t.nodes = append(t.nodes, n)
	idx := len(t.nodes) - 1
	t.nodes[parent].Children = append(t.nodes[parent].Children, idx)
	return idx, nil
}

// Len is the number of nodes including the root.
func (t *PropertyTree) Len() int { return len(t.nodes) }

// Node returns node i.
func (t *PropertyTree) Node(i int) PropertyNode { return t.nodes[i] }

// Lookup finds a node by dotted path ("gabor.frequency").
func (t *PropertyTree) Lookup(path string) (int, bool) {
	if len(t.nodes) == 0 || path == "" {
		return -1, false
	}
	cur := 0
	for _, part := range strings.Split(path, ".") {
		next := -1
		for _, c := range t.nodes[cur].Children {
			if t.nodes[c].Name == part {
				next = c
				break
			}
		}
		if next < 0 {
			return -1, false
		}
		cur = next
	}
	return cur, true
}

// Get returns the value at path when it is a numeric leaf.
func (t *PropertyTree) Get(path string) (Value, bool) {
	i, ok := t.Lookup(path)
	if !ok || t.nodes[i].Kind.Components() == 0 {
		return Value{}, false
	}
	return t.nodes[i].Value, true
}

// Path returns the dotted path of node i.
func (t *PropertyTree) Path(i int) string {
	if i <= 0 || i >= len(t.nodes) {
		return ""
	}
	return t.path(t.nodes[i].Parent, t.nodes[i].Name)
}

func (t *PropertyTree) path(parent int, name string) string {
	if parent <= 0 {
		return name
	}
	return t.Path(parent) + "." + name
}

// UnmarshalYAML builds the arena from a mapping, keeping declaration order.
func (t *PropertyTree) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: properties must be a mapping", node.Line)
	}
	*t = PropertyTree{}
	return t.decodeMapping(t.root(), node)
}

func (t *PropertyTree) decodeMapping(parent int, node *yaml.Node) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		val := node.Content[i+1]

		var n PropertyNode
		n.Name = name
		switch val.Kind {
		case yaml.MappingNode:
			n.Kind = PropComposite
			idx, err := t.Add(parent, n)
			if err != nil {
				return err
			}
			if err := t.decodeMapping(idx, val); err != nil {
				return err
			}
			continue
		case yaml.ScalarNode:
			var x float64
			if err := val.Decode(&x); err == nil {
				n.Kind = PropScalar
				n.Value = Scalar(x)
			} else {
				n.Kind = PropSelect
				n.Choice = val.Value
			}
		case yaml.SequenceNode:
			var v Value
			if err := val.Decode(&v); err != nil {
				return fmt.Errorf("property %q: %w", name, err)
			}
			n.Value = v
			if v.Kind == KindVector2 {
				n.Kind = PropVector2
			} else {
				n.Kind = PropVector3
			}
		default:
			return fmt.Errorf("line %d: property %q has an unsupported shape", val.Line, name)
		}
		if _, err := t.Add(parent, n); err != nil {
			return err
		}
	}
	return nil
}
