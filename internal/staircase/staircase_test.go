package staircase

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
)

func baseConfig() Config {
	return Config{
		Name:              "test",
		StartValue:        10,
		TargetPerformance: 0.5,
		Reversals:         []int{1, 2},
		StepSizes:         []float64{1, 1},
		PowerLaw:          1,
	}
}

func mustNew(t *testing.T, cfg Config) *Staircase {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// #region construction-tests
func TestNewStartsAtStartValue(t *testing.T) {
	s := mustNew(t, baseConfig())

	if s.CurrentDifficulty() != 10 {
		t.Fatalf("expected 10, got %f", s.CurrentDifficulty())
	}
	if s.Phase() != 0 || s.ReversalCount() != 0 || s.TrialNumber() != 0 || s.IsOver() {
		t.Fatalf("unexpected initial state: %+v", s.Snapshot())
	}
	if s.Status() != Phase0Active {
		t.Fatalf("expected %s, got %s", Phase0Active, s.Status())
	}
	if !s.Snapshot().IsFirstTrial {
		t.Fatal("expected first trial flag")
	}
}

func TestNewRejectsNonCanonicalTarget(t *testing.T) {
	cfg := baseConfig()
	cfg.TargetPerformance = 0.4

	s, err := New(cfg)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if s != nil {
		t.Fatal("expected nil staircase on error")
	}
}

func TestNewRejectsMalformedConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"one reversal entry":     func(c *Config) { c.Reversals = []int{3} },
		"three reversal entries": func(c *Config) { c.Reversals = []int{1, 2, 3} },
		"zero phase 0 reversals": func(c *Config) { c.Reversals = []int{0, 2} },
		"negative reversals":     func(c *Config) { c.Reversals = []int{2, -1} },
		"one step size":          func(c *Config) { c.StepSizes = []float64{1} },
		"zero step size":         func(c *Config) { c.StepSizes = []float64{1, 0} },
		"negative step size":     func(c *Config) { c.StepSizes = []float64{-1, 1} },
		"zero power law":         func(c *Config) { c.PowerLaw = 0 },
		"unbounded negative law": func(c *Config) { c.PowerLaw = -1 },
		"zero start value":       func(c *Config) { c.StartValue = 0 },
		"NaN start value":        func(c *Config) { c.StartValue = math.NaN() },
		"min above max":          func(c *Config) { c.MinValue, c.MaxValue = Bound(5), Bound(1) },
		"start below min":        func(c *Config) { c.MinValue = Bound(11) },
		"start above max":        func(c *Config) { c.MaxValue = Bound(9) },
		"target out of range":    func(c *Config) { c.TargetPerformance = 1.2 },
		"unknown procedure":      func(c *Config) { c.Procedure = "bisection" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := baseConfig()
			mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestSIAMMatrixLookup(t *testing.T) {
	tests := []struct {
		target float64
		want   AdjustmentMatrix
	}{
		{0.25, AdjustmentMatrix{3, -1, -4, 0}},
		{0.33, AdjustmentMatrix{2, -1, -3, 0}},
		{0.5, AdjustmentMatrix{1, -1, -2, 0}},
		{0.66, AdjustmentMatrix{1, -2, -3, 0}},
		{0.75, AdjustmentMatrix{1, -3, -4, 0}},
	}
	for _, tt := range tests {
		got, ok := SIAMMatrix(tt.target)
		if !ok {
			t.Fatalf("SIAMMatrix(%v): not found", tt.target)
		}
		if got != tt.want {
			t.Errorf("SIAMMatrix(%v) = %+v, want %+v", tt.target, got, tt.want)
		}
	}
	if _, ok := SIAMMatrix(0.4); ok {
		t.Error("expected no matrix for 0.4")
	}
}

func TestCustomMatrixOverridesTarget(t *testing.T) {
	cfg := baseConfig()
	cfg.TargetPerformance = 0.4 // would be rejected without the custom matrix
	cfg.CustomMatrix = &AdjustmentMatrix{Hit: -1, Miss: 4, FalseAlarm: 5, CorrectRejection: 0}
	s := mustNew(t, cfg)

	if s.AdjustmentMatrix() != *cfg.CustomMatrix {
		t.Fatalf("expected custom matrix, got %+v", s.AdjustmentMatrix())
	}
	s.RecordTrial(true, true)
	if s.CurrentDifficulty() != 9 {
		t.Fatalf("expected 9 after custom hit step, got %f", s.CurrentDifficulty())
	}
}

func TestProportionalMatrixMatchesSIAMAtHalf(t *testing.T) {
	cfg := baseConfig()
	cfg.Procedure = ProcedureProportional
	m, err := cfg.Matrix()
	if err != nil {
		t.Fatalf("Matrix: %v", err)
	}
	siam, _ := SIAMMatrix(0.5)
	if m != siam {
		t.Fatalf("expected %+v, got %+v", siam, m)
	}

	cfg.TargetPerformance = 0.4
	if err := cfg.Validate(); err != nil {
		t.Fatalf("proportional procedure should accept 0.4: %v", err)
	}
}

func TestNewCopiesConfigSlices(t *testing.T) {
	cfg := baseConfig()
	s := mustNew(t, cfg)
	cfg.Reversals[0] = 99
	cfg.StepSizes[1] = 99

	if s.Config().Reversals[0] != 1 || s.Config().StepSizes[1] != 1 {
		t.Fatal("staircase config aliased caller slices")
	}
}

// #endregion construction-tests

// #region classify-tests
func TestClassify(t *testing.T) {
	tests := []struct {
		correct, present bool
		want             Outcome
	}{
		{true, true, Hit},
		{false, true, Miss},
		{false, false, FalseAlarm},
		{true, false, CorrectRejection},
	}
	for _, tt := range tests {
		if got := Classify(tt.correct, tt.present); got != tt.want {
			t.Errorf("Classify(%v, %v) = %s, want %s", tt.correct, tt.present, got, tt.want)
		}
	}
}

// #endregion classify-tests

// #region record-trial-tests
func TestThresholdWorkedExample(t *testing.T) {
	s := mustNew(t, baseConfig())

	wantValues := []float64{11, 10, 11, 10}
	wantPhase := []int{0, 1, 1, 1}
	wantRevs := []int{0, 1, 2, 3}
	for i, correct := range []bool{true, false, true, false} {
		r := s.RecordTrial(correct, true)
		if !r.Applied {
			t.Fatalf("trial %d not applied", i+1)
		}
		if r.NextValue != wantValues[i] {
			t.Fatalf("trial %d: expected value %f, got %f", i+1, wantValues[i], r.NextValue)
		}
		if r.Phase != wantPhase[i] {
			t.Fatalf("trial %d: expected phase %d, got %d", i+1, wantPhase[i], r.Phase)
		}
		if r.ReversalCount != wantRevs[i] {
			t.Fatalf("trial %d: expected %d reversals, got %d", i+1, wantRevs[i], r.ReversalCount)
		}
	}

	if !s.IsOver() {
		t.Fatal("expected staircase to be over")
	}
	st := s.Snapshot()
	if len(st.Phase1ReversalValues) != 2 || st.Phase1ReversalValues[0] != 10 || st.Phase1ReversalValues[1] != 11 {
		t.Fatalf("expected phase 1 reversal values [10 11], got %v", st.Phase1ReversalValues)
	}
	got, err := s.Threshold()
	if err != nil {
		t.Fatalf("Threshold: %v", err)
	}
	if got != 10.5 {
		t.Fatalf("expected threshold 10.5, got %f", got)
	}
}

func TestReversalCountMatchesSignChanges(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 50; run++ {
		cfg := baseConfig()
		cfg.Reversals = []int{500, 500}
		s := mustNew(t, cfg)

		n := 1 + rng.Intn(60)
		seq := make([]bool, n)
		changes := 0
		for i := range seq {
			seq[i] = rng.Intn(2) == 0
			if i > 0 && seq[i] != seq[i-1] {
				changes++
			}
			s.RecordTrial(seq[i], rng.Intn(2) == 0)
		}

		if s.ReversalCount() != changes {
			t.Fatalf("run %d: expected %d reversals, got %d (seq %v)", run, changes, s.ReversalCount(), seq)
		}
		if len(s.Snapshot().ReversalTrials) != changes {
			t.Fatalf("run %d: reversal trial log has %d entries, want %d", run, len(s.Snapshot().ReversalTrials), changes)
		}
	}
}

func TestFirstTrialIsNeverAReversal(t *testing.T) {
	s := mustNew(t, baseConfig())
	r := s.RecordTrial(false, true)
	if r.Reversal || s.ReversalCount() != 0 {
		t.Fatal("first trial counted as reversal")
	}
}

func TestPhaseTransitionExactness(t *testing.T) {
	cfg := baseConfig()
	cfg.Reversals = []int{3, 4}
	cfg.StepSizes = []float64{2, 0.5}
	s := mustNew(t, cfg)

	// Alternating correctness: trial k has k-1 reversals.
	correct := true
	for trial := 1; trial <= 3; trial++ {
		s.RecordTrial(correct, true)
		correct = !correct
		if s.Phase() != 0 {
			t.Fatalf("phase changed early at trial %d (reversals %d)", trial, s.ReversalCount())
		}
	}
	s.RecordTrial(correct, true)
	correct = !correct
	if s.ReversalCount() != 3 || s.Phase() != 1 {
		t.Fatalf("expected phase 1 at 3 reversals, got phase %d at %d", s.Phase(), s.ReversalCount())
	}
	if s.Snapshot().CurrentStepSize != 0.5 {
		t.Fatalf("expected phase 1 step size 0.5, got %f", s.Snapshot().CurrentStepSize)
	}
	if s.Status() != Phase1Active {
		t.Fatalf("expected %s, got %s", Phase1Active, s.Status())
	}

	for trial := 5; trial <= 7; trial++ {
		s.RecordTrial(correct, true)
		correct = !correct
		if s.IsOver() {
			t.Fatalf("converged early at trial %d (reversals %d)", trial, s.ReversalCount())
		}
	}
	s.RecordTrial(correct, true)
	if !s.IsOver() || s.ReversalCount() != 7 {
		t.Fatalf("expected convergence at 7 reversals, over=%v reversals=%d", s.IsOver(), s.ReversalCount())
	}
	if s.Status() != Converged {
		t.Fatalf("expected %s, got %s", Converged, s.Status())
	}
}

func TestStepSizeAppliesFromTrialAfterTransition(t *testing.T) {
	cfg := baseConfig()
	cfg.Reversals = []int{1, 5}
	cfg.StepSizes = []float64{2, 0.5}
	s := mustNew(t, cfg)

	s.RecordTrial(true, true)  // 10 + 2 = 12
	s.RecordTrial(false, true) // reversal; 12 - 2 = 10, then phase 1
	if s.CurrentDifficulty() != 10 {
		t.Fatalf("expected 10, got %f", s.CurrentDifficulty())
	}
	s.RecordTrial(false, true) // 10 - 0.5
	if s.CurrentDifficulty() != 9.5 {
		t.Fatalf("expected 9.5, got %f", s.CurrentDifficulty())
	}
}

func TestPostConvergenceIsNoOp(t *testing.T) {
	s := mustNew(t, baseConfig())
	for _, c := range []bool{true, false, true, false} {
		s.RecordTrial(c, true)
	}
	before := s.Snapshot()

	for i := 0; i < 10; i++ {
		r := s.RecordTrial(i%2 == 0, i%3 == 0)
		if r.Applied {
			t.Fatal("post-convergence trial applied")
		}
		if !r.Over {
			t.Fatal("expected Over on post-convergence result")
		}
	}

	after := s.Snapshot()
	if after.CurrentValue != before.CurrentValue || after.TrialNumber != before.TrialNumber ||
		after.ReversalCount != before.ReversalCount || len(after.HistoryValues) != len(before.HistoryValues) ||
		len(after.Phase1ReversalValues) != len(before.Phase1ReversalValues) {
		t.Fatalf("state mutated after convergence: before %+v after %+v", before, after)
	}
}

func TestClampingKeepsValueInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 20; run++ {
		cfg := Config{
			StartValue:        0.5,
			TargetPerformance: 0.25,
			Reversals:         []int{1000, 1000},
			StepSizes:         []float64{0.2, 0.1},
			PowerLaw:          1,
			MinValue:          Bound(0.05),
			MaxValue:          Bound(0.95),
		}
		if run%2 == 1 {
			cfg.PowerLaw = 0.5
		}
		s := mustNew(t, cfg)
		for i := 0; i < 300; i++ {
			s.RecordTrial(rng.Intn(2) == 0, rng.Intn(2) == 0)
			v := s.CurrentDifficulty()
			if v < 0.05 || v > 0.95 {
				t.Fatalf("run %d trial %d: value %f out of bounds", run, i+1, v)
			}
		}
		for _, v := range s.Snapshot().HistoryValues {
			if v < 0.05 || v > 0.95 {
				t.Fatalf("run %d: history value %f out of bounds", run, v)
			}
		}
	}
}

func TestLinearPowerLawIsAdditive(t *testing.T) {
	cfg := baseConfig()
	cfg.TargetPerformance = 0.75 // {1,-3,-4,0}
	cfg.Reversals = []int{100, 100}
	cfg.StepSizes = []float64{0.25, 0.25}
	cfg.StartValue = 5
	cfg.MinValue = Bound(1)
	cfg.MaxValue = Bound(6)
	s := mustNew(t, cfg)
	m := s.AdjustmentMatrix()

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		correct, present := rng.Intn(2) == 0, rng.Intn(2) == 0
		prev := s.CurrentDifficulty()
		s.RecordTrial(correct, present)
		want := math.Min(math.Max(prev+m.Multiplier(Classify(correct, present))*0.25, 1), 6)
		if s.CurrentDifficulty() != want {
			t.Fatalf("trial %d: expected %v, got %v", i+1, want, s.CurrentDifficulty())
		}
	}
}

func TestPowerLawAdjustsOnPerceivedScale(t *testing.T) {
	cfg := baseConfig()
	cfg.StartValue = 0.5
	cfg.PowerLaw = 2
	cfg.StepSizes = []float64{0.1, 0.1}
	s := mustNew(t, cfg)

	s.RecordTrial(true, true) // 0.25 + 0.1 on the perceived scale
	if !approx(s.CurrentDifficulty(), math.Sqrt(0.35)) {
		t.Fatalf("expected %f, got %f", math.Sqrt(0.35), s.CurrentDifficulty())
	}
}

func TestPerceivedValueFloorsAtZero(t *testing.T) {
	cfg := baseConfig()
	cfg.StartValue = 0.5
	cfg.PowerLaw = 0.5
	s := mustNew(t, cfg)

	s.RecordTrial(false, false) // false alarm: -2 on the perceived scale
	if s.CurrentDifficulty() != 0 {
		t.Fatalf("expected 0, got %f", s.CurrentDifficulty())
	}
	if math.IsNaN(s.CurrentDifficulty()) {
		t.Fatal("value became NaN")
	}
}

func TestCorrectRejectionLeavesValue(t *testing.T) {
	s := mustNew(t, baseConfig())
	s.RecordTrial(true, false)
	if s.CurrentDifficulty() != 10 {
		t.Fatalf("expected unchanged value, got %f", s.CurrentDifficulty())
	}
}

// #endregion record-trial-tests

// #region threshold-tests
func TestThresholdBeforeConvergence(t *testing.T) {
	s := mustNew(t, baseConfig())
	s.RecordTrial(true, true)

	before := s.Snapshot()
	_, err := s.Threshold()
	if !errors.Is(err, ErrNotConverged) {
		t.Fatalf("expected ErrNotConverged, got %v", err)
	}
	if len(s.Snapshot().HistoryValues) != len(before.HistoryValues) {
		t.Fatal("failed threshold read changed history")
	}
}

func TestThresholdEmptyFinalPhase(t *testing.T) {
	cfg := baseConfig()
	cfg.Reversals = []int{5, 0}
	s := mustNew(t, cfg)

	correct := true
	for !s.IsOver() {
		s.RecordTrial(correct, true)
		correct = !correct
	}
	if s.ReversalCount() != 5 || s.Phase() != 1 {
		t.Fatalf("expected converged at 5 reversals in phase 1, got %d in phase %d", s.ReversalCount(), s.Phase())
	}

	_, err := s.Threshold()
	if !errors.Is(err, ErrInsufficientReversals) {
		t.Fatalf("expected ErrInsufficientReversals, got %v", err)
	}
}

// #endregion threshold-tests

// #region independence-tests
func TestInterleavedInstancesAreIndependent(t *testing.T) {
	a := mustNew(t, baseConfig())
	b := mustNew(t, baseConfig())

	a.RecordTrial(true, true)
	a.RecordTrial(false, true)
	b.RecordTrial(true, false)

	if b.ReversalCount() != 0 || b.CurrentDifficulty() != 10 || b.TrialNumber() != 1 {
		t.Fatalf("instance b affected by a: %+v", b.Snapshot())
	}
	if a.ReversalCount() != 1 || a.TrialNumber() != 2 {
		t.Fatalf("instance a affected by b: %+v", a.Snapshot())
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := mustNew(t, baseConfig())
	s.RecordTrial(true, true)
	st := s.Snapshot()
	st.HistoryValues[0] = -1
	*st.PreviousCorrect = false

	again := s.Snapshot()
	if again.HistoryValues[0] != 10 || !*again.PreviousCorrect {
		t.Fatal("snapshot shares memory with staircase")
	}
}

func TestNegativePowerLawStaysFinite(t *testing.T) {
	cfg := baseConfig()
	cfg.StartValue = 1
	cfg.PowerLaw = -1
	cfg.MaxValue = Bound(50)
	s := mustNew(t, cfg)

	// Miss: perceived 1 - 1 floors at 0, whose inverse is +Inf before clamping.
	res := s.RecordTrial(false, true)
	if math.IsInf(res.NextValue, 0) || res.NextValue != 50 {
		t.Fatalf("expected value clamped to 50, got %v", res.NextValue)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := mustNew(t, baseConfig())
	s.RecordTrial(true, true)

	c := s.Clone()
	c.RecordTrial(false, true)
	c.RecordTrial(true, true)

	if s.TrialNumber() != 1 || s.CurrentDifficulty() != 11 || s.ReversalCount() != 0 {
		t.Fatalf("source staircase moved: trial=%d value=%v revs=%d", s.TrialNumber(), s.CurrentDifficulty(), s.ReversalCount())
	}
	if c.TrialNumber() != 3 || c.ReversalCount() != 2 {
		t.Fatalf("clone did not advance: trial=%d revs=%d", c.TrialNumber(), c.ReversalCount())
	}
	if len(s.Snapshot().HistoryValues) != 1 {
		t.Fatal("clone shares history with its source")
	}
}

func TestSummaryMentionsState(t *testing.T) {
	s := mustNew(t, baseConfig())
	s.RecordTrial(true, true)
	out := s.Summary()
	for _, want := range []string{"test", "Trial number: 1", "Current dv value: 11.00000", "Phase: 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

// #endregion independence-tests
