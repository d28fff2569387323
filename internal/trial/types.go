package trial

import (
	"context"
	"time"

	"github.com/nik0lai/evidence-priming/internal/staircase"
)

// #region task
// Task is which arrow the participant reports.
type Task string

const (
	TaskPrime Task = "prime"
	TaskMask  Task = "mask"
)

// #endregion task

// #region design
// Design lists the factor levels crossed into a block.
type Design struct {
	PrimeDirections []string  `json:"prime_directions" yaml:"prime_directions"`
	MaskDirections  []string  `json:"mask_directions" yaml:"mask_directions"`
	Positions       []string  `json:"positions" yaml:"positions"`
	SOAs            []float64 `json:"soas" yaml:"soas"` // seconds
}

// DefaultDesign returns the 80 Hz design: SOAs are 1..6 prime frames plus 300 ms.
func DefaultDesign() Design {
	return Design{
		PrimeDirections: []string{"left", "right"},
		MaskDirections:  []string{"left", "right"},
		Positions:       []string{"top", "bottom"},
		SOAs:            []float64{0.0125, 0.025, 0.0375, 0.05, 0.0625, 0.075, 0.3},
	}
}

// Trial is one cell of the design.
type Trial struct {
	PrimeDirection string  `json:"prime_direction"`
	MaskDirection  string  `json:"mask_direction"`
	Position       string  `json:"position"`
	SOA            float64 `json:"soa"`
	Congruent      bool    `json:"congruent"`
}

// CorrectDirection is the direction the participant should report for task.
func (t Trial) CorrectDirection(task Task) string {
	if task == TaskMask {
		return t.MaskDirection
	}
	return t.PrimeDirection
}

// #endregion design

// #region presentation
// Presentation is what the trial loop hands to a Responder.
type Presentation struct {
	Staircase       string
	TrialNumber     int
	Task            Task
	Value           float64
	StimulusPresent bool
	Trial           Trial
}

// Response is a scored keypress.
type Response struct {
	Key     string
	Correct bool
	RT      time.Duration
}

// Responder is the source of trial outcomes.
type Responder interface {
	Respond(ctx context.Context, p Presentation) (Response, error)
}

// #endregion presentation

// #region events
// TrialEvent is emitted to a Sink after every recorded trial.
type TrialEvent struct {
	SessionID    string
	Staircase    string
	Presentation Presentation
	Response     Response
	Result       staircase.TrialResult
	PhaseChanged bool
}

// Sink receives trial events and final results, typically for persistence.
type Sink interface {
	RecordTrial(ctx context.Context, ev TrialEvent) error
}

// #endregion events

// #region runner-config
// RunConfig bounds a run.
type RunConfig struct {
	Task        Task
	MaxTrials   int     // 0 = until every staircase is over
	PresentRate float64 // probability the target is shown; 1 for pure discrimination
	Repeat      int     // design repetitions per block before reshuffling
}

// DefaultRunConfig returns a prime-task run with targets on half the trials.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Task:        TaskPrime,
		MaxTrials:   2000,
		PresentRate: 0.5,
		Repeat:      2,
	}
}

// StaircaseSummary is the final state of one staircase after a run.
type StaircaseSummary struct {
	Name          string
	SessionID     string
	Trials        int
	ReversalCount int
	Over          bool
	Threshold     float64
	Err           error // ErrNotConverged or ErrInsufficientReversals when no threshold
}

// RunSummary aggregates a run.
type RunSummary struct {
	TotalTrials int
	Staircases  []StaircaseSummary
}

// #endregion runner-config
