package rng

import (
	"fmt"
	"sort"
	"sync"
)

// Seeds maps seed keys (see ListKey and SectionKey) to seed values.
type Seeds map[string]uint64

// ListKey is the seed key of a value list.
func ListKey(listID string) string { return "list/" + listID }

// SectionKey is the seed key of a section.
func SectionKey(sectionID string) string { return "section/" + sectionID }

// Book records the seeds used by a run. Seeds that were not authored are
// drawn once and remembered so the run can be reproduced afterwards.
type Book struct {
	mu        sync.Mutex
	seeds     Seeds
	generated map[string]bool
	draw      func() (uint64, error)
}

// NewBook returns an empty book drawing missing seeds from crypto/rand.
func NewBook() *Book {
	return &Book{
		seeds:     make(Seeds),
		generated: make(map[string]bool),
		draw:      NewSeed,
	}
}

// Set records an authored or restored seed.
func (b *Book) Set(key string, seed uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seeds[key] = seed
	delete(b.generated, key)
}

// Ensure draws a seed for every key that has none yet.
func (b *Book) Ensure(keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		if _, ok := b.seeds[k]; ok {
			continue
		}
		s, err := b.draw()
		if err != nil {
			return fmt.Errorf("seed %s: %w", k, err)
		}
		b.seeds[k] = s
		b.generated[k] = true
	}
	return nil
}

// Seeds returns a copy of every recorded seed.
func (b *Book) Seeds() Seeds {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(Seeds, len(b.seeds))
	for k, v := range b.seeds {
		out[k] = v
	}
	return out
}

// Generated returns the keys whose seeds were drawn rather than authored, sorted.
func (b *Book) Generated() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.generated))
	for k := range b.generated {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
