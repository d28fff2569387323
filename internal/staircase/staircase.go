package staircase

import (
	"fmt"
	"math"
	"strings"
)

// #region staircase
// Staircase is an adaptive SIAM staircase. It is owned by a single trial loop
// and is not safe for concurrent use; independent instances share nothing.
type Staircase struct {
	config Config
	matrix AdjustmentMatrix

	value          float64
	trialNumber    int
	phase          int
	stepSize       float64
	revn           int
	values         []float64
	phase1RevVals  []float64
	reversalTrials []int
	correctTrack   []bool
	stimulusTrack  []bool
	over           bool
	lastReversal   bool
	prevCorrect    *bool
	firstTrial     bool
}

// New validates cfg and returns a staircase positioned at cfg.StartValue.
func New(cfg Config) (*Staircase, error) {
	matrix, err := cfg.resolve()
	if err != nil {
		return nil, err
	}
	cfg = cfg.clone()
	return &Staircase{
		config:     cfg,
		matrix:     matrix,
		value:      cfg.StartValue,
		stepSize:   cfg.StepSizes[0],
		firstTrial: true,
	}, nil
}

// clone copies every slice and pointer so the caller cannot reach staircase state.
func (c Config) clone() Config {
	c.Reversals = append([]int(nil), c.Reversals...)
	c.StepSizes = append([]float64(nil), c.StepSizes...)
	if c.MinValue != nil {
		c.MinValue = Bound(*c.MinValue)
	}
	if c.MaxValue != nil {
		c.MaxValue = Bound(*c.MaxValue)
	}
	if c.CustomMatrix != nil {
		m := *c.CustomMatrix
		c.CustomMatrix = &m
	}
	return c
}

// #endregion staircase

// #region validate
// Validate reports whether cfg would be accepted by New.
func (c Config) Validate() error {
	_, err := c.resolve()
	return err
}

// Matrix returns the adjustment matrix cfg resolves to.
func (c Config) Matrix() (AdjustmentMatrix, error) {
	return c.resolve()
}

func (c Config) resolve() (AdjustmentMatrix, error) {
	if len(c.Reversals) != 2 {
		return AdjustmentMatrix{}, configErr("reversals must have 2 entries, got %d", len(c.Reversals))
	}
	if c.Reversals[0] <= 0 {
		return AdjustmentMatrix{}, configErr("phase 0 reversals must be > 0, got %d", c.Reversals[0])
	}
	if c.Reversals[1] < 0 {
		return AdjustmentMatrix{}, configErr("phase 1 reversals must be >= 0, got %d", c.Reversals[1])
	}
	if len(c.StepSizes) != 2 {
		return AdjustmentMatrix{}, configErr("step sizes must have 2 entries, got %d", len(c.StepSizes))
	}
	for i, s := range c.StepSizes {
		if !(s > 0) || math.IsInf(s, 0) {
			return AdjustmentMatrix{}, configErr("step size %d must be a positive number, got %v", i, s)
		}
	}
	if c.PowerLaw == 0 || math.IsNaN(c.PowerLaw) || math.IsInf(c.PowerLaw, 0) {
		return AdjustmentMatrix{}, configErr("power law must be finite and non-zero, got %v", c.PowerLaw)
	}
	// A perceived value floored at 0 maps back to +Inf under a negative exponent.
	if c.PowerLaw < 0 && c.MaxValue == nil {
		return AdjustmentMatrix{}, configErr("negative power law %v requires a max value", c.PowerLaw)
	}
	if !(c.StartValue > 0) || math.IsInf(c.StartValue, 0) {
		return AdjustmentMatrix{}, configErr("start value must be a positive number, got %v", c.StartValue)
	}
	if c.MinValue != nil && c.MaxValue != nil && *c.MinValue > *c.MaxValue {
		return AdjustmentMatrix{}, configErr("min value %v exceeds max value %v", *c.MinValue, *c.MaxValue)
	}
	if c.MinValue != nil && c.StartValue < *c.MinValue {
		return AdjustmentMatrix{}, configErr("start value %v below min value %v", c.StartValue, *c.MinValue)
	}
	if c.MaxValue != nil && c.StartValue > *c.MaxValue {
		return AdjustmentMatrix{}, configErr("start value %v above max value %v", c.StartValue, *c.MaxValue)
	}

	// A custom matrix always wins over the procedure.
	if c.CustomMatrix != nil {
		return *c.CustomMatrix, nil
	}
	if !(c.TargetPerformance > 0 && c.TargetPerformance < 1) {
		return AdjustmentMatrix{}, configErr("target performance must be in (0,1), got %v", c.TargetPerformance)
	}
	switch c.Procedure {
	case "", ProcedureSIAM:
		m, ok := SIAMMatrix(c.TargetPerformance)
		if !ok {
			return AdjustmentMatrix{}, configErr("no SIAM matrix for target performance %v (want 0.25, 0.33, 0.5, 0.66 or 0.75)", c.TargetPerformance)
		}
		return m, nil
	case ProcedureProportional:
		return ProportionalMatrix(c.TargetPerformance), nil
	default:
		return AdjustmentMatrix{}, configErr("unknown procedure %q", c.Procedure)
	}
}

// #endregion validate

// #region record-trial
// RecordTrial feeds one scored trial into the staircase and moves the
// difficulty value. Once the staircase is over the call changes nothing and
// returns a result with Applied=false.
func (s *Staircase) RecordTrial(isCorrect, stimulusPresent bool) TrialResult {
	if s.over {
		return TrialResult{
			TrialNumber:   s.trialNumber,
			Value:         s.value,
			NextValue:     s.value,
			Phase:         s.phase,
			ReversalCount: s.revn,
			Over:          true,
		}
	}

	s.trialNumber++
	presented := s.value
	s.values = append(s.values, presented)
	s.correctTrack = append(s.correctTrack, isCorrect)
	s.stimulusTrack = append(s.stimulusTrack, stimulusPresent)

	// No reversal check on the first trial: there is nothing to compare with.
	s.lastReversal = false
	if !s.firstTrial && isCorrect != *s.prevCorrect {
		s.lastReversal = true
		s.revn++
		s.reversalTrials = append(s.reversalTrials, s.trialNumber)
		if s.phase == 1 {
			s.phase1RevVals = append(s.phase1RevVals, presented)
		}
	}

	outcome := Classify(isCorrect, stimulusPresent)

	perceived := math.Pow(s.value, s.config.PowerLaw)
	perceivedNew := perceived + s.matrix.Multiplier(outcome)*s.stepSize
	// Negative bases with fractional exponents have no real result.
	if perceivedNew < 0 {
		perceivedNew = 0
	}
	s.value = s.clamp(math.Pow(perceivedNew, 1/s.config.PowerLaw))

	if s.revn >= s.config.Reversals[0] {
		s.phase = 1
		s.stepSize = s.config.StepSizes[1]
	}
	if s.revn >= s.config.Reversals[0]+s.config.Reversals[1] {
		s.over = true
	}

	s.firstTrial = false
	prev := isCorrect
	s.prevCorrect = &prev

	return TrialResult{
		Applied:       true,
		TrialNumber:   s.trialNumber,
		Value:         presented,
		NextValue:     s.value,
		Outcome:       outcome,
		Reversal:      s.lastReversal,
		Phase:         s.phase,
		ReversalCount: s.revn,
		Over:          s.over,
	}
}

func (s *Staircase) clamp(v float64) float64 {
	if s.config.MinValue != nil && v < *s.config.MinValue {
		v = *s.config.MinValue
	}
	if s.config.MaxValue != nil && v > *s.config.MaxValue {
		v = *s.config.MaxValue
	}
	return v
}

// #endregion record-trial

// #region accessors
// CurrentDifficulty is the value the next trial should be presented at.
func (s *Staircase) CurrentDifficulty() float64 { return s.value }

// IsOver reports whether the staircase has converged.
func (s *Staircase) IsOver() bool { return s.over }

// Phase is 0 until the first reversal block is done, then 1.
func (s *Staircase) Phase() int { return s.phase }

// ReversalCount is the number of reversals so far.
func (s *Staircase) ReversalCount() int { return s.revn }

// TrialNumber is the number of trials recorded so far.
func (s *Staircase) TrialNumber() int { return s.trialNumber }

// Name is the configured label.
func (s *Staircase) Name() string { return s.config.Name }

// Config returns a copy of the configuration.
func (s *Staircase) Config() Config { return s.config.clone() }

// AdjustmentMatrix returns the resolved matrix.
func (s *Staircase) AdjustmentMatrix() AdjustmentMatrix { return s.matrix }

// Status maps the staircase onto its state machine.
func (s *Staircase) Status() Status {
	switch {
	case s.over:
		return Converged
	case s.phase == 1:
		return Phase1Active
	default:
		return Phase0Active
	}
}

// Clone returns an independent copy that can be advanced without touching s.
func (s *Staircase) Clone() *Staircase {
	c := *s
	c.config = s.config.clone()
	c.values = append([]float64(nil), s.values...)
	c.phase1RevVals = append([]float64(nil), s.phase1RevVals...)
	c.reversalTrials = append([]int(nil), s.reversalTrials...)
	c.correctTrack = append([]bool(nil), s.correctTrack...)
	c.stimulusTrack = append([]bool(nil), s.stimulusTrack...)
	if s.prevCorrect != nil {
		prev := *s.prevCorrect
		c.prevCorrect = &prev
	}
	return &c
}

// Snapshot returns a deep copy of the current state.
func (s *Staircase) Snapshot() State {
	st := State{
		Name:                 s.config.Name,
		CurrentValue:         s.value,
		TrialNumber:          s.trialNumber,
		Phase:                s.phase,
		CurrentStepSize:      s.stepSize,
		ReversalCount:        s.revn,
		HistoryValues:        append([]float64(nil), s.values...),
		Phase1ReversalValues: append([]float64(nil), s.phase1RevVals...),
		ReversalTrials:       append([]int(nil), s.reversalTrials...),
		CorrectHistory:       append([]bool(nil), s.correctTrack...),
		StimulusHistory:      append([]bool(nil), s.stimulusTrack...),
		IsOver:               s.over,
		LastWasReversal:      s.lastReversal,
		IsFirstTrial:         s.firstTrial,
	}
	if s.config.MinValue != nil {
		st.MinValue = Bound(*s.config.MinValue)
	}
	if s.config.MaxValue != nil {
		st.MaxValue = Bound(*s.config.MaxValue)
	}
	if s.prevCorrect != nil {
		prev := *s.prevCorrect
		st.PreviousCorrect = &prev
	}
	return st
}

// #endregion accessors

// #region threshold
// Threshold is the mean of the values recorded at final-phase reversals.
func (s *Staircase) Threshold() (float64, error) {
	if !s.over {
		return 0, fmt.Errorf("%w: %d of %d reversals", ErrNotConverged, s.revn, s.config.Reversals[0]+s.config.Reversals[1])
	}
	if len(s.phase1RevVals) == 0 {
		return 0, ErrInsufficientReversals
	}
	var sum float64
	for _, v := range s.phase1RevVals {
		sum += v
	}
	return sum / float64(len(s.phase1RevVals)), nil
}

// #endregion threshold

// #region summary
// Summary renders the console block printed after each trial.
func (s *Staircase) Summary() string {
	var b strings.Builder
	prev := "none"
	if s.prevCorrect != nil {
		prev = fmt.Sprintf("%v", *s.prevCorrect)
	}
	b.WriteString("\n###############################\n\n")
	fmt.Fprintf(&b, "%s\n", s.config.Name)
	fmt.Fprintf(&b, "Trial number: %d\n", s.trialNumber)
	fmt.Fprintf(&b, "Current trial is correct: %s\n", prev)
	fmt.Fprintf(&b, "Current dv value: %.5f\n", s.value)
	fmt.Fprintf(&b, "Reversal count: %d\n", s.revn)
	fmt.Fprintf(&b, "Phase: %d\n", s.phase)
	fmt.Fprintf(&b, "Staircase over? %v\n", s.over)
	b.WriteString("\n###############################\n")
	return b.String()
}

// #endregion summary
