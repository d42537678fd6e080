package orchestrator

import (
	"math"
	"strconv"
	"strings"

	"github.com/marinraf/StimuliApp-sub001/internal/design"
)

// Response is what the participant gave for one scene. Position
// responses are Cartesian in the renderer's units.
type Response struct {
	Scene string   `json:"scene,omitempty"`
	Value *float64 `json:"value,omitempty"`
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
	Text  string   `json:"text,omitempty"`
	// InTime is false when the renderer saw the response after the
	// response window closed. Missing means in time.
	InTime *bool `json:"in_time,omitempty"`
}

// OnTime reports whether the response arrived inside its window.
func (r *Response) OnTime() bool {
	return r.InTime == nil || *r.InTime
}

// Fields renders the response for the run log.
func (r *Response) Fields() map[string]interface{} {
	out := map[string]interface{}{"in_time": r.OnTime()}
	if r.Scene != "" {
		out["scene"] = r.Scene
	}
	if r.Value != nil {
		out["value"] = *r.Value
	}
	if r.X != nil {
		out["x"] = *r.X
	}
	if r.Y != nil {
		out["y"] = *r.Y
	}
	if r.Text != "" {
		out["text"] = r.Text
	}
	return out
}

// scalar returns the typed value, falling back to the text entry.
func (r *Response) scalar() (float64, bool) {
	if r.Value != nil {
		return *r.Value, true
	}
	if t := strings.TrimSpace(r.Text); t != "" {
		v, err := strconv.ParseFloat(t, 64)
		return v, err == nil
	}
	return 0, false
}

// Outcome is the scored result of one trial.
type Outcome struct {
	Responded bool          `json:"responded"`
	InTime    bool          `json:"in_time"`
	Correct   bool          `json:"correct"`
	Measured  *design.Value `json:"measured,omitempty"`
	Default   bool          `json:"default,omitempty"`
}

// Measure extracts the scored quantity of kind from r. Radius and angle
// convert the Cartesian position to polar; angles are radians in [0, 2π).
func Measure(kind design.ResponseKind, r *Response) (design.Value, bool) {
	switch kind {
	case design.ResponseValue:
		v, ok := r.scalar()
		return design.Scalar(v), ok
	case design.ResponsePositionX:
		if r.X == nil {
			return design.Value{}, false
		}
		return design.Scalar(*r.X), true
	case design.ResponsePositionY:
		if r.Y == nil {
			return design.Value{}, false
		}
		return design.Scalar(*r.Y), true
	}
	if r.X == nil || r.Y == nil {
		return design.Value{}, false
	}
	x, y := *r.X, *r.Y
	switch kind {
	case design.ResponsePosition:
		return design.Vec2(x, y), true
	case design.ResponseRadius:
		return design.Scalar(math.Hypot(x, y)), true
	case design.ResponseAngle:
		a := math.Atan2(y, x)
		if a < 0 {
			a += 2 * math.Pi
		}
		return design.Scalar(a), true
	}
	return design.Value{}, false
}

// Score compares the response of a trial with its trial value. A missing
// response is replaced by the binding's default when there is one; a late
// response is never replaced and always scores incorrect. Without a
// binding or a trial value nothing can be correct.
func Score(b *design.ResponseBinding, target *design.Value, r *Response) Outcome {
	var o Outcome
	if r != nil {
		o.InTime = r.OnTime()
		o.Responded = o.InTime
	}
	if b == nil || target == nil {
		return o
	}

	var measured design.Value
	ok := false
	switch {
	case o.Responded:
		measured, ok = Measure(b.Kind, r)
	case r == nil && b.Default != nil && b.Kind != design.ResponsePosition:
		measured, ok = design.Scalar(*b.Default), true
		o.Default = true
	}
	if !ok {
		return o
	}
	o.Measured = &measured

	var dist float64
	if b.Kind == design.ResponseAngle {
		dist = angleDistance(measured.X, target.X)
	} else {
		dist = measured.Distance(*target)
	}
	o.Correct = dist < b.Margin
	return o
}

func angleDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 2*math.Pi)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}
