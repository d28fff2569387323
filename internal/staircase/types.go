package staircase

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// #region errors
var (
	// ErrConfiguration marks a malformed Config. Fatal: fix the config, do not retry.
	ErrConfiguration = errors.New("staircase configuration")
	// ErrNotConverged is returned by Threshold while the staircase is still running.
	ErrNotConverged = errors.New("staircase not converged")
	// ErrInsufficientReversals is returned by Threshold when no reversal was
	// recorded in the final phase.
	ErrInsufficientReversals = errors.New("no reversals recorded in final phase")
)

func configErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// #endregion errors

// #region outcome
// Outcome is the signal-detection category of a single trial.
type Outcome string

const (
	Hit              Outcome = "hit"
	Miss             Outcome = "miss"
	FalseAlarm       Outcome = "fa"
	CorrectRejection Outcome = "cr"
)

// Classify maps correctness and stimulus presence to an Outcome.
func Classify(isCorrect, stimulusPresent bool) Outcome {
	switch {
	case stimulusPresent && isCorrect:
		return Hit
	case stimulusPresent:
		return Miss
	case isCorrect:
		return CorrectRejection
	default:
		return FalseAlarm
	}
}

// #endregion outcome

// #region adjustment-matrix
// AdjustmentMatrix holds the signed step multiplier per outcome.
type AdjustmentMatrix struct {
	Hit              float64 `json:"hit" yaml:"hit"`
	Miss             float64 `json:"miss" yaml:"miss"`
	FalseAlarm       float64 `json:"fa" yaml:"fa"`
	CorrectRejection float64 `json:"cr" yaml:"cr"`
}

// Multiplier returns the step multiplier for an outcome.
func (m AdjustmentMatrix) Multiplier(o Outcome) float64 {
	switch o {
	case Hit:
		return m.Hit
	case Miss:
		return m.Miss
	case FalseAlarm:
		return m.FalseAlarm
	default:
		return m.CorrectRejection
	}
}

// SIAM matrices from Kaernbach (1990), Table 1, keyed by target performance
// percent. Hit and miss signs are inverted: a hit raises the difficulty value.
var siamMatrices = map[string]AdjustmentMatrix{
	"25": {Hit: 3, Miss: -1, FalseAlarm: -4, CorrectRejection: 0}, // 62.5%
	"33": {Hit: 2, Miss: -1, FalseAlarm: -3, CorrectRejection: 0}, // 66.5%
	"50": {Hit: 1, Miss: -1, FalseAlarm: -2, CorrectRejection: 0}, // 75%
	"66": {Hit: 1, Miss: -2, FalseAlarm: -3, CorrectRejection: 0}, // 83%
	"75": {Hit: 1, Miss: -3, FalseAlarm: -4, CorrectRejection: 0}, // 87.5%
}

// SIAMMatrix looks up the canonical matrix for a target performance in (0,1).
func SIAMMatrix(targetPerformance float64) (AdjustmentMatrix, bool) {
	key := strconv.Itoa(int(math.Round(targetPerformance * 100)))
	m, ok := siamMatrices[key]
	return m, ok
}

// ProportionalMatrix derives a matrix proportional to the SIAM one for any
// target in (0,1), without rounding to integer steps.
func ProportionalMatrix(targetPerformance float64) AdjustmentMatrix {
	t := targetPerformance
	return AdjustmentMatrix{
		Hit:              1,
		Miss:             -t / (1 - t),
		FalseAlarm:       -1 / (1 - t),
		CorrectRejection: 0,
	}
}

// #endregion adjustment-matrix

// #region config
// Procedure selects how the adjustment matrix is derived from the target.
type Procedure string

const (
	ProcedureSIAM         Procedure = "siam"
	ProcedureProportional Procedure = "proportional"
)

// Config is the immutable staircase setup.
type Config struct {
	Name              string            `json:"name" yaml:"name"`
	StartValue        float64           `json:"start_value" yaml:"start_value"`
	TargetPerformance float64           `json:"target_performance" yaml:"target_performance"`
	Reversals         []int             `json:"reversals" yaml:"reversals"`   // [phase 0, phase 1]
	StepSizes         []float64         `json:"step_sizes" yaml:"step_sizes"` // one per phase
	PowerLaw          float64           `json:"power_law" yaml:"power_law"`
	MinValue          *float64          `json:"min_value,omitempty" yaml:"min_value,omitempty"`
	MaxValue          *float64          `json:"max_value,omitempty" yaml:"max_value,omitempty"`
	Procedure         Procedure         `json:"procedure,omitempty" yaml:"procedure,omitempty"` // empty means SIAM
	CustomMatrix      *AdjustmentMatrix `json:"custom_matrix,omitempty" yaml:"custom_matrix,omitempty"`
}

// DefaultConfig returns the defaults used by the priming experiment. They are
// a starting point, not values tuned for any particular stimulus.
func DefaultConfig() Config {
	return Config{
		Name:              "staircase",
		StartValue:        0.1,
		TargetPerformance: 0.75,
		Reversals:         []int{5, 15},
		StepSizes:         []float64{1, 0.5},
		PowerLaw:          1,
		Procedure:         ProcedureSIAM,
	}
}

// Bound returns a pointer for use as MinValue or MaxValue.
func Bound(v float64) *float64 {
	return &v
}

// #endregion config

// #region status
// Status is the staircase state-machine position.
type Status string

const (
	Phase0Active Status = "phase0_active"
	Phase1Active Status = "phase1_active"
	Converged    Status = "converged"
)

// #endregion status

// #region trial-result
// TrialResult reports what a single RecordTrial call did.
type TrialResult struct {
	Applied       bool    `json:"applied"` // false when the staircase was already over
	TrialNumber   int     `json:"trial_number"`
	Value         float64 `json:"value"` // value the trial was presented at
	NextValue     float64 `json:"next_value"`
	Outcome       Outcome `json:"outcome,omitempty"`
	Reversal      bool    `json:"reversal"`
	Phase         int     `json:"phase"`
	ReversalCount int     `json:"reversal_count"`
	Over          bool    `json:"over"`
}

// #endregion trial-result

// #region state
// State is a deep copy of the mutable staircase state.
type State struct {
	Name                 string    `json:"name"`
	CurrentValue         float64   `json:"current_value"`
	TrialNumber          int       `json:"trial_number"`
	Phase                int       `json:"phase"`
	CurrentStepSize      float64   `json:"current_step_size"`
	ReversalCount        int       `json:"reversal_count"`
	HistoryValues        []float64 `json:"history_values"`
	Phase1ReversalValues []float64 `json:"phase1_reversal_values"`
	ReversalTrials       []int     `json:"reversal_trials"`
	CorrectHistory       []bool    `json:"correct_history"`
	StimulusHistory      []bool    `json:"stimulus_history"`
	IsOver               bool      `json:"is_over"`
	LastWasReversal      bool      `json:"last_was_reversal"`
	PreviousCorrect      *bool     `json:"previous_correct,omitempty"`
	IsFirstTrial         bool      `json:"is_first_trial"`
	MinValue             *float64  `json:"min_value,omitempty"`
	MaxValue             *float64  `json:"max_value,omitempty"`
}

// #endregion state
