// Package timeline turns one scene of a resolved trial into frame-stamped
// checkpoints and steps through them one render tick at a time.
package timeline

import (
	"fmt"
	"math"
	"sort"

	"github.com/marinraf/StimuliApp-sub001/internal/design"
	"github.com/marinraf/StimuliApp-sub001/internal/resolver"
)

// Action is what a checkpoint does to its object.
type Action int

const (
	StartStimulus Action = iota
	EndStimulus
	StartText
	EndText
	StartAudio
	EndAudio
	StartVideo
	EndVideo
	EndScene
)

var actionNames = [...]string{
	"start_stimulus", "end_stimulus",
	"start_text", "end_text",
	"start_audio", "end_audio",
	"start_video", "end_video",
	"end_scene",
}

func (a Action) String() string {
	if a >= 0 && int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", int(a))
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// Inverse swaps start and end. EndScene is its own inverse.
func (a Action) Inverse() Action {
	switch a {
	case StartStimulus:
		return EndStimulus
	case EndStimulus:
		return StartStimulus
	case StartText:
		return EndText
	case EndText:
		return StartText
	case StartAudio:
		return EndAudio
	case EndAudio:
		return StartAudio
	case StartVideo:
		return EndVideo
	case EndVideo:
		return StartVideo
	}
	return a
}

func actionsFor(k design.ObjectKind) (Action, Action) {
	switch k {
	case design.ObjectText:
		return StartText, EndText
	case design.ObjectAudio:
		return StartAudio, EndAudio
	case design.ObjectVideo:
		return StartVideo, EndVideo
	}
	return StartStimulus, EndStimulus
}

// Checkpoint is one scheduled action. Object is the index of the object in
// its scene, or -1 for EndScene.
type Checkpoint struct {
	Frame  int    `json:"frame"`
	Action Action `json:"action"`
	Object int    `json:"object"`
}

// Binding addresses one property of one object of a scene.
type Binding struct {
	Object   int
	Property string
}

// Overrides are the resolved variable values of one scene.
type Overrides map[Binding]design.Value

// OverridesFor collects the values tr assigns to the objects of scene.
func OverridesFor(res *resolver.Resolution, tr resolver.ResolvedTrial, scene int) Overrides {
	out := make(Overrides)
	for i, v := range res.Variables {
		if v.Scene != scene || i >= len(tr.Values) {
			continue
		}
		out[Binding{Object: v.Object, Property: v.Property}] = tr.Values[i].Value
	}
	return out
}

func frames(seconds float64, frameRate int) int {
	return int(math.Round(seconds * float64(frameRate)))
}

func property(obj *design.Object, idx int, name string, ov Overrides) (float64, bool) {
	if v, ok := ov[Binding{Object: idx, Property: name}]; ok {
		return v.X, true
	}
	if v, ok := obj.Properties.Get(name); ok {
		return v.X, true
	}
	return 0, false
}

// Build derives the checkpoints of scene. Objects without a duration end
// with the scene; with a constant scene duration, objects are cut at the
// scene end and objects starting after it are never shown. The result is
// sorted by frame, ties in declaration order, and always ends with
// EndScene.
func Build(scene *design.Scene, ov Overrides, frameRate int) ([]Checkpoint, error) {
	if frameRate <= 0 {
		return nil, fmt.Errorf("scene %q: frame rate must be positive, got %d", scene.ID, frameRate)
	}

	type span struct {
		obj        int
		start, end int
		open       bool
	}
	var spans []span
	last := 0

	for i := range scene.Objects {
		obj := &scene.Objects[i]
		if a, ok := property(obj, i, design.PropActivated, ov); ok && a == 0 {
			continue
		}
		start, _ := property(obj, i, design.PropStart, ov)
		if start < 0 {
			return nil, fmt.Errorf("scene %q object %q: negative start %g", scene.ID, obj.ID, start)
		}
		sp := span{obj: i, start: frames(start, frameRate), open: true}
		if d, ok := property(obj, i, design.PropDuration, ov); ok {
			if d < 0 {
				return nil, fmt.Errorf("scene %q object %q: negative duration %g", scene.ID, obj.ID, d)
			}
			sp.end = sp.start + frames(d, frameRate)
			sp.open = false
			if sp.end > last {
				last = sp.end
			}
		}
		if sp.start > last {
			last = sp.start
		}
		spans = append(spans, sp)
	}

	endScene := last
	if scene.Duration.Mode == design.DurationConstant {
		endScene = frames(scene.Duration.Seconds, frameRate)
	}

	cps := make([]Checkpoint, 0, 2*len(spans)+1)
	for _, sp := range spans {
		// A zero-length scene still flashes the objects that start with it.
		if scene.Duration.Mode == design.DurationConstant &&
			(sp.start > endScene || sp.start == endScene && endScene > 0) {
			continue
		}
		if sp.open || sp.end > endScene {
			sp.end = endScene
		}
		startAction, endAction := actionsFor(scene.Objects[sp.obj].Kind)
		cps = append(cps,
			Checkpoint{Frame: sp.start, Action: startAction, Object: sp.obj},
			Checkpoint{Frame: sp.end, Action: endAction, Object: sp.obj},
		)
	}
	sort.SliceStable(cps, func(i, j int) bool { return cps[i].Frame < cps[j].Frame })
	cps = append(cps, Checkpoint{Frame: endScene, Action: EndScene, Object: -1})

	return cps, nil
}

// Validate checks that cps is sorted and ends with a single EndScene.
func Validate(cps []Checkpoint) error {
	if len(cps) == 0 || cps[len(cps)-1].Action != EndScene {
		return fmt.Errorf("timeline must end with %s", EndScene)
	}
	for i := range cps {
		if i > 0 && cps[i].Frame < cps[i-1].Frame {
			return fmt.Errorf("checkpoint %d at frame %d precedes frame %d", i, cps[i].Frame, cps[i-1].Frame)
		}
		if cps[i].Action == EndScene && i != len(cps)-1 {
			return fmt.Errorf("checkpoint %d: %s before the end of the timeline", i, EndScene)
		}
		if cps[i].Frame < 0 {
			return fmt.Errorf("checkpoint %d: negative frame", i)
		}
	}
	return nil
}
