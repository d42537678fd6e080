package design

import (
	"fmt"
	"strings"
)

// Enumerations in this package are closed integer sets. Their names are
// used only when a document is read or a value is displayed.

func parseName[T ~int](names []string, text []byte, what string) (T, error) {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range names {
		if n == s {
			return T(i), nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q (want one of %s)", what, s, strings.Join(names, ", "))
}

func nameOf(names []string, i int) string {
	if i >= 0 && i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("unknown(%d)", i)
}

// OrderPolicy controls how a list is materialized for a run.
type OrderPolicy int

const (
	OrderInOrder OrderPolicy = iota
	OrderShuffled
)

var orderPolicyNames = []string{"in_order", "shuffled"}

func (o OrderPolicy) String() string { return nameOf(orderPolicyNames, int(o)) }
func (o OrderPolicy) MarshalText() ([]byte, error) { return []byte(o.String()), nil }
func (o *OrderPolicy) UnmarshalText(b []byte) (err error) {
	*o, err = parseName[OrderPolicy](orderPolicyNames, b, "order policy")
	return err
}

// Method is a variable's selection method.
type Method int

const (
	MethodInOrder Method = iota
	MethodShuffled
	MethodFixed
	MethodRandom
	MethodCorrectDependent
)

var methodNames = []string{"in_order", "shuffled", "fixed", "random", "correct_dependent"}

func (m Method) String() string { return nameOf(methodNames, int(m)) }
func (m Method) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
func (m *Method) UnmarshalText(b []byte) (err error) {
	*m, err = parseName[Method](methodNames, b, "selection method")
	return err
}

// Counterbalanced reports whether the method contributes to the
// combination count of a section.
func (m Method) Counterbalanced() bool {
	return m == MethodInOrder || m == MethodShuffled
}

// Priority sets the loop nesting of in-order groups. High changes fastest.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

var priorityNames = []string{"high", "medium", "low"}

func (p Priority) String() string { return nameOf(priorityNames, int(p)) }
func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }
func (p *Priority) UnmarshalText(b []byte) (err error) {
	*p, err = parseName[Priority](priorityNames, b, "priority")
	return err
}

// RandomMode decides whether grouped random variables share an index
// (equal) or draw distinct indices (different).
type RandomMode int

const (
	RandomEqual RandomMode = iota
	RandomDifferent
)

var randomModeNames = []string{"equal", "different"}

func (r RandomMode) String() string { return nameOf(randomModeNames, int(r)) }
func (r RandomMode) MarshalText() ([]byte, error) { return []byte(r.String()), nil }
func (r *RandomMode) UnmarshalText(b []byte) (err error) {
	*r, err = parseName[RandomMode](randomModeNames, b, "random mode")
	return err
}

// StartingList picks the first active list of a block chain.
type StartingList int

const (
	StartRandom StartingList = iota
	StartFirst
	StartSecond
)

var startingListNames = []string{"random", "first", "second"}

func (s StartingList) String() string { return nameOf(startingListNames, int(s)) }
func (s StartingList) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *StartingList) UnmarshalText(b []byte) (err error) {
	*s, err = parseName[StartingList](startingListNames, b, "starting list")
	return err
}

// ObjectKind selects the checkpoint pair an object produces.
type ObjectKind int

const (
	ObjectStimulus ObjectKind = iota
	ObjectText
	ObjectVideo
	ObjectAudio
)

var objectKindNames = []string{"stimulus", "text", "video", "audio"}

func (k ObjectKind) String() string { return nameOf(objectKindNames, int(k)) }
func (k ObjectKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
func (k *ObjectKind) UnmarshalText(b []byte) (err error) {
	*k, err = parseName[ObjectKind](objectKindNames, b, "object kind")
	return err
}

// DurationMode decides when a scene ends.
type DurationMode int

const (
	// DurationConstant ends the scene after a fixed number of seconds.
	DurationConstant DurationMode = iota
	// DurationStimuli ends the scene when the last activated object ends.
	DurationStimuli
)

var durationModeNames = []string{"constant", "stimuli"}

func (d DurationMode) String() string { return nameOf(durationModeNames, int(d)) }
func (d DurationMode) MarshalText() ([]byte, error) { return []byte(d.String()), nil }
func (d *DurationMode) UnmarshalText(b []byte) (err error) {
	*d, err = parseName[DurationMode](durationModeNames, b, "duration mode")
	return err
}

// ResponseType is the input a scene accepts.
type ResponseType int

const (
	ResponseNone ResponseType = iota
	ResponseTouch
	ResponseKeys
	// ResponseKeyboard is typed manual entry collected after the scene ends.
	ResponseKeyboard
)

var responseTypeNames = []string{"none", "touch", "keys", "keyboard"}

func (r ResponseType) String() string { return nameOf(responseTypeNames, int(r)) }
func (r ResponseType) MarshalText() ([]byte, error) { return []byte(r.String()), nil }
func (r *ResponseType) UnmarshalText(b []byte) (err error) {
	*r, err = parseName[ResponseType](responseTypeNames, b, "response type")
	return err
}

// Deferred reports whether the response is collected after EndScene.
func (r ResponseType) Deferred() bool { return r == ResponseKeyboard }

// TrialValueMode selects where the logged trial value comes from.
type TrialValueMode int

const (
	TrialValueSame TrialValueMode = iota
	TrialValueOther
)

var trialValueModeNames = []string{"same", "other"}

func (m TrialValueMode) String() string { return nameOf(trialValueModeNames, int(m)) }
func (m TrialValueMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
func (m *TrialValueMode) UnmarshalText(b []byte) (err error) {
	*m, err = parseName[TrialValueMode](trialValueModeNames, b, "trial value mode")
	return err
}

// ResponseKind is the part of a captured response that is scored.
type ResponseKind int

const (
	ResponseValue ResponseKind = iota
	ResponsePositionX
	ResponsePositionY
	ResponsePosition
	ResponseRadius
	ResponseAngle
)

var responseKindNames = []string{"value", "position_x", "position_y", "position", "radius", "angle"}

func (k ResponseKind) String() string { return nameOf(responseKindNames, int(k)) }
func (k ResponseKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
func (k *ResponseKind) UnmarshalText(b []byte) (err error) {
	*k, err = parseName[ResponseKind](responseKindNames, b, "response kind")
	return err
}

// ConditionKind is the predicate of an end-of-section condition.
type ConditionKind int

const (
	CondTrials ConditionKind = iota
	CondResponded
	CondNotResponded
	CondCorrect
	CondIncorrect
	CondLastCorrect
	CondLastIncorrect
	CondLastResponded
	CondLastNotResponded
	CondAccuracyAtLeast
	CondAccuracyBelow
)

var conditionKindNames = []string{
	"trials", "responded", "not_responded", "correct", "incorrect",
	"last_correct", "last_incorrect", "last_responded", "last_not_responded",
	"accuracy_at_least", "accuracy_below",
}

func (k ConditionKind) String() string { return nameOf(conditionKindNames, int(k)) }
func (k ConditionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
func (k *ConditionKind) UnmarshalText(b []byte) (err error) {
	*k, err = parseName[ConditionKind](conditionKindNames, b, "condition")
	return err
}

// NeedsCount reports whether the condition uses N.
func (k ConditionKind) NeedsCount() bool {
	switch k {
	case CondTrials, CondResponded, CondNotResponded, CondCorrect, CondIncorrect, CondAccuracyAtLeast, CondAccuracyBelow:
		return true
	}
	return false
}
