package orchestrator

import (
	"github.com/marinraf/StimuliApp-sub001/internal/design"
)

// accuracyEpsilon absorbs float error when comparing accuracy at least.
const accuracyEpsilon = 1e-6

// EvalCondition evaluates an end-of-trial condition against the section
// progress. It is called after the trial at p.Trial has been recorded and
// before the cursor moves.
//
// Count conditions match only when the count equals n exactly, so each
// fires once per section. Accuracy conditions are checked every n trials
// over the last n trials.
func EvalCondition(c design.Condition, p *SectionProgress) bool {
	switch c.Kind {
	case design.CondTrials:
		return p.Trial+1 == c.N
	case design.CondResponded:
		return p.Responded == c.N
	case design.CondNotResponded:
		return p.NotResponded == c.N
	case design.CondCorrect:
		return p.Correct == c.N
	case design.CondIncorrect:
		return p.Incorrect == c.N
	case design.CondLastCorrect:
		return p.LastCorrect
	case design.CondLastIncorrect:
		return !p.LastCorrect
	case design.CondLastResponded:
		return p.LastResponded
	case design.CondLastNotResponded:
		return !p.LastResponded
	case design.CondAccuracyAtLeast:
		if c.N <= 0 || (p.Trial+1)%c.N != 0 {
			return false
		}
		return p.Accuracy(c.N)+accuracyEpsilon >= c.Accuracy
	case design.CondAccuracyBelow:
		if c.N <= 0 || (p.Trial+1)%c.N != 0 {
			return false
		}
		return p.Accuracy(c.N) < c.Accuracy
	}
	return false
}

// NextSection picks where the run goes after the current trial of sec.
// The first matching condition wins. Otherwise the section repeats while
// trials remain, then follows sec.Next. An empty id ends the run; matched
// reports whether a condition decided.
func NextSection(sec *design.Section, p *SectionProgress) (next string, matched bool) {
	for _, c := range sec.Conditions {
		if EvalCondition(c, p) {
			return c.Next, true
		}
	}
	if p.Trial+1 < p.Res.Total {
		return sec.ID, false
	}
	return sec.Next, false
}
