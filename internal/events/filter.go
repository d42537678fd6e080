package events

import "strings"

var levelRank = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

// Filter selects events for a reader of the run log. The zero Filter
// matches every event.
type Filter struct {
	// Prefixes match event names, e.g. "trial." matches trial.completed.
	Prefixes []string
	// Section keeps events about one section. Events that name no section
	// (run.*, system.*) always pass; section.transition matches on either
	// end.
	Section string
	// MinLevel drops events below this level. Checkpoints are debug.
	MinLevel string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	if f.MinLevel != "" && levelRank[e.Level] < levelRank[f.MinLevel] {
		return false
	}
	if len(f.Prefixes) > 0 {
		ok := false
		for _, p := range f.Prefixes {
			if strings.HasPrefix(e.Name, p) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Section != "" {
		return f.inSection(e.Fields)
	}
	return true
}

func (f Filter) inSection(fields map[string]interface{}) bool {
	scoped := false
	for _, key := range []string{"section", "from", "to"} {
		s, ok := fields[key].(string)
		if !ok {
			continue
		}
		if s == f.Section {
			return true
		}
		scoped = true
	}
	return !scoped
}

// ValidLevel reports whether level is one Emit understands.
func ValidLevel(level string) bool {
	_, ok := levelRank[level]
	return ok
}
