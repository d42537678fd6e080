package orchestrator

import (
	"fmt"
	"strings"

	"github.com/marinraf/StimuliApp-sub001/internal/design"
)

// ConfigurationError reports dangling section references in a design.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Problems) == 1 {
		return "section graph: " + e.Problems[0]
	}
	return fmt.Sprintf("section graph: %d problems:\n  %s", len(e.Problems), strings.Join(e.Problems, "\n  "))
}

// Edge is one possible transition out of a section. An empty To ends the run.
type Edge struct {
	From      string            `json:"from"`
	To        string            `json:"to"`
	Condition *design.Condition `json:"condition,omitempty"`
}

// SectionGraph indexes the sections of a design and the transitions
// between them.
type SectionGraph struct {
	doc   *design.Document
	first string
	index map[string]int
	edges map[string][]Edge
}

// NewSectionGraph indexes doc. The first section defaults to the first
// declared one. Every reference to a section must resolve.
func NewSectionGraph(doc *design.Document) (*SectionGraph, error) {
	var problems []string
	g := &SectionGraph{
		doc:   doc,
		index: make(map[string]int, len(doc.Sections)),
		edges: make(map[string][]Edge, len(doc.Sections)),
	}
	if len(doc.Sections) == 0 {
		return nil, &ConfigurationError{Problems: []string{"design has no sections"}}
	}
	for i := range doc.Sections {
		id := doc.Sections[i].ID
		if _, dup := g.index[id]; dup {
			problems = append(problems, fmt.Sprintf("duplicate section id %q", id))
			continue
		}
		g.index[id] = i
	}

	g.first = doc.FirstSection
	if g.first == "" {
		g.first = doc.Sections[0].ID
	} else if _, ok := g.index[g.first]; !ok {
		problems = append(problems, fmt.Sprintf("first_section %q not found", g.first))
	}

	for i := range doc.Sections {
		sec := &doc.Sections[i]
		for j := range sec.Conditions {
			c := &sec.Conditions[j]
			if c.Next != "" {
				if _, ok := g.index[c.Next]; !ok {
					problems = append(problems, fmt.Sprintf("section %q condition #%d (%s): target %q not found",
						sec.ID, j+1, c.Kind, c.Next))
				}
			}
			g.edges[sec.ID] = append(g.edges[sec.ID], Edge{From: sec.ID, To: c.Next, Condition: c})
		}
		if sec.Next != "" {
			if _, ok := g.index[sec.Next]; !ok {
				problems = append(problems, fmt.Sprintf("section %q: next %q not found", sec.ID, sec.Next))
			}
		}
		g.edges[sec.ID] = append(g.edges[sec.ID], Edge{From: sec.ID, To: sec.Next})
	}

	if len(problems) > 0 {
		return nil, &ConfigurationError{Problems: problems}
	}
	return g, nil
}

// First is the section a run starts in.
func (g *SectionGraph) First() string { return g.first }

// Section returns the section with the given id.
func (g *SectionGraph) Section(id string) (*design.Section, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return &g.doc.Sections[i], true
}

// Edges returns the transitions out of a section in evaluation order:
// conditions as declared, then the implicit next.
func (g *SectionGraph) Edges(id string) []Edge {
	return g.edges[id]
}

// Reachable returns the ids of the sections reachable from the first
// section, in breadth-first order.
func (g *SectionGraph) Reachable() []string {
	seen := map[string]bool{g.first: true}
	queue := []string{g.first}
	var out []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)
		for _, e := range g.edges[id] {
			if e.To == "" || seen[e.To] {
				continue
			}
			seen[e.To] = true
			queue = append(queue, e.To)
		}
	}
	return out
}
