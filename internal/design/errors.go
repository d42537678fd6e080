package design

import (
	"fmt"
	"strings"
)

// ValidationError collects every problem found in a design document. A
// document with any problem is never run.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	switch len(e.Problems) {
	case 0:
		return "design invalid"
	case 1:
		return "design invalid: " + e.Problems[0]
	}
	return fmt.Sprintf("design invalid (%d problems): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Problems accumulates validation messages.
type Problems struct {
	list []string
}

// Addf records one problem.
func (p *Problems) Addf(format string, args ...interface{}) {
	p.list = append(p.list, fmt.Sprintf(format, args...))
}

// Merge appends the problems of err when it is a *ValidationError, or its
// message otherwise.
func (p *Problems) Merge(err error) {
	if err == nil {
		return
	}
	if ve, ok := err.(*ValidationError); ok {
		p.list = append(p.list, ve.Problems...)
		return
	}
	p.list = append(p.list, err.Error())
}

// Len is the number of problems recorded.
func (p *Problems) Len() int { return len(p.list) }

// Err returns a *ValidationError, or nil when nothing was recorded.
func (p *Problems) Err() error {
	if len(p.list) == 0 {
		return nil
	}
	return &ValidationError{Problems: append([]string(nil), p.list...)}
}
