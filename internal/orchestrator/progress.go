package orchestrator

import (
	"fmt"

	"github.com/marinraf/StimuliApp-sub001/internal/resolver"
	"github.com/marinraf/StimuliApp-sub001/internal/staircase"
)

// SectionProgress tracks one section across the run. It is kept when the
// run leaves the section, so a revisit resumes at the trial cursor with
// the counters and staircases it had.
type SectionProgress struct {
	ID  string
	Res *resolver.Resolution

	// Trial is the index of the next trial to run. It wraps to 0 after the
	// last trial.
	Trial     int
	Visits    int
	Completed int

	Responded    int
	NotResponded int
	Correct      int
	Incorrect    int

	LastCorrect   bool
	LastResponded bool

	// History holds the correctness of every completed trial, oldest first.
	History []bool

	// Staircases are aligned with Res.Dependent.
	Staircases []staircase.State
}

// NewSectionProgress starts a section at trial 0 with fresh staircases.
func NewSectionProgress(res *resolver.Resolution) *SectionProgress {
	p := &SectionProgress{
		ID:            res.SectionID,
		Res:           res,
		LastCorrect:   true,
		LastResponded: true,
		Staircases:    make([]staircase.State, len(res.Dependent)),
	}
	for i, d := range res.Dependent {
		p.Staircases[i] = staircase.New(d.Rule, d.Start, d.Length)
	}
	return p
}

// CurrentTrial returns the trial at the cursor with every correct-dependent
// variable placed at its staircase position.
func (p *SectionProgress) CurrentTrial() (resolver.ResolvedTrial, error) {
	if p.Trial < 0 || p.Trial >= len(p.Res.Trials) {
		return resolver.ResolvedTrial{}, fmt.Errorf("section %q: trial %d out of range", p.ID, p.Trial)
	}
	tr := p.Res.Trials[p.Trial]
	for i, d := range p.Res.Dependent {
		var err error
		if tr, err = p.Res.WithPosition(tr, d.Variable, p.Staircases[i].Index); err != nil {
			return tr, err
		}
	}
	return tr, nil
}

// Record folds a scored trial into the counters and steps the staircases.
func (p *SectionProgress) Record(o Outcome) {
	p.Completed++
	if o.Responded {
		p.Responded++
	} else {
		p.NotResponded++
	}
	if o.Correct {
		p.Correct++
	} else {
		p.Incorrect++
	}
	p.LastCorrect = o.Correct
	p.LastResponded = o.Responded
	p.History = append(p.History, o.Correct)
	for i := range p.Staircases {
		p.Staircases[i].Step(o.Correct)
	}
}

// Advance moves the trial cursor forward, wrapping to 0. A wrap puts every
// staircase back on its starting position; streaks carry over.
func (p *SectionProgress) Advance() {
	p.Trial++
	if p.Trial >= p.Res.Total {
		p.Trial = 0
		for i, d := range p.Res.Dependent {
			p.Staircases[i].Index = staircase.New(d.Rule, d.Start, d.Length).Index
		}
	}
}

// Accuracy is the share of correct trials among the last n, or among all
// completed trials when n is 0.
func (p *SectionProgress) Accuracy(n int) float64 {
	h := p.History
	if n > 0 && n < len(h) {
		h = h[len(h)-n:]
	}
	if n <= 0 {
		n = len(h)
	}
	if n == 0 {
		return 0
	}
	correct := 0
	for _, c := range h {
		if c {
			correct++
		}
	}
	return float64(correct) / float64(n)
}

// Status returns the externally visible counters.
func (p *SectionProgress) Status() SectionStatus {
	accuracy := 0.0
	if p.Completed > 0 {
		accuracy = float64(p.Correct) / float64(p.Completed)
	}
	return SectionStatus{
		ID:           p.ID,
		Trial:        p.Trial,
		Total:        p.Res.Total,
		Visits:       p.Visits,
		Completed:    p.Completed,
		Correct:      p.Correct,
		Incorrect:    p.Incorrect,
		Responded:    p.Responded,
		NotResponded: p.NotResponded,
		Accuracy:     accuracy,
	}
}
