package trial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/nik0lai/evidence-priming/internal/staircase"
)

// #region design-tests
func TestUniqueTrialsCrossesFactors(t *testing.T) {
	d := DefaultDesign()
	trials := UniqueTrials(d)

	if len(trials) != 2*2*2*7 {
		t.Fatalf("expected 56 unique trials, got %d", len(trials))
	}
	congruent := 0
	for _, tr := range trials {
		if tr.Congruent != (tr.PrimeDirection == tr.MaskDirection) {
			t.Fatalf("wrong congruent flag on %+v", tr)
		}
		if tr.Congruent {
			congruent++
		}
	}
	if congruent != len(trials)/2 {
		t.Fatalf("expected half congruent, got %d", congruent)
	}
}

func TestBlockTrialsRepeatsAndShuffles(t *testing.T) {
	d := DefaultDesign()
	block := BlockTrials(d, 2, rand.New(rand.NewSource(1)))

	if len(block) != 112 {
		t.Fatalf("expected 112 trials, got %d", len(block))
	}
	counts := map[Trial]int{}
	for _, tr := range block {
		counts[tr]++
	}
	for tr, n := range counts {
		if n != 2 {
			t.Fatalf("trial %+v appears %d times", tr, n)
		}
	}

	again := BlockTrials(d, 2, rand.New(rand.NewSource(1)))
	for i := range block {
		if block[i] != again[i] {
			t.Fatal("same seed produced a different order")
		}
	}
}

func TestCorrectDirection(t *testing.T) {
	tr := Trial{PrimeDirection: "left", MaskDirection: "right"}
	if tr.CorrectDirection(TaskPrime) != "left" {
		t.Error("prime task should report the prime direction")
	}
	if tr.CorrectDirection(TaskMask) != "right" {
		t.Error("mask task should report the mask direction")
	}
}

// #endregion design-tests

// #region observer-tests
func TestObserverPCorrectDecreasesWithValue(t *testing.T) {
	o := NewObserver(DefaultObserverConfig(), rand.New(rand.NewSource(1)))

	prev := math.Inf(1)
	for v := 0.0; v <= 1.0; v += 0.05 {
		p := o.PCorrect(v)
		if p > prev {
			t.Fatalf("PCorrect not decreasing at %f", v)
		}
		if p < 0.5 || p > 0.98 {
			t.Fatalf("PCorrect(%f) = %f outside [guess, 1-lapse]", v, p)
		}
		prev = p
	}
}

func TestObserverRespondKeys(t *testing.T) {
	o := NewObserver(DefaultObserverConfig(), rand.New(rand.NewSource(5)))
	p := Presentation{Task: TaskPrime, Value: 0, StimulusPresent: true, Trial: Trial{PrimeDirection: "right", MaskDirection: "left"}}

	for i := 0; i < 50; i++ {
		r, err := o.Respond(context.Background(), p)
		if err != nil {
			t.Fatalf("Respond: %v", err)
		}
		if r.Correct && r.Key != "l" {
			t.Fatalf("correct response should press right key, got %q", r.Key)
		}
		if !r.Correct && r.Key != "a" {
			t.Fatalf("incorrect response should press left key, got %q", r.Key)
		}
		if r.RT < 0 {
			t.Fatalf("negative RT %v", r.RT)
		}
	}
}

func TestObserverRespondCancelled(t *testing.T) {
	o := NewObserver(DefaultObserverConfig(), rand.New(rand.NewSource(5)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.Respond(ctx, Presentation{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// #endregion observer-tests

// #region runner-tests
type memorySink struct {
	events []TrialEvent
}

func (m *memorySink) RecordTrial(_ context.Context, ev TrialEvent) error {
	m.events = append(m.events, ev)
	return nil
}

type failingSink struct{}

func (failingSink) RecordTrial(context.Context, TrialEvent) error {
	return errors.New("disk full")
}

func simConfig(name string) staircase.Config {
	return staircase.Config{
		Name:              name,
		StartValue:        0.1,
		TargetPerformance: 0.5,
		Reversals:         []int{3, 6},
		StepSizes:         []float64{0.1, 0.05},
		PowerLaw:          1,
		MinValue:          staircase.Bound(0.01),
		MaxValue:          staircase.Bound(1.5),
	}
}

func newTrack(t *testing.T, id string) Track {
	t.Helper()
	sc, err := staircase.New(simConfig(id))
	if err != nil {
		t.Fatalf("staircase.New: %v", err)
	}
	return Track{SessionID: id, Staircase: sc}
}

func TestRunnerConvergesInterleaved(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	sink := &memorySink{}
	runner := NewRunner(DefaultRunConfig(), DefaultDesign(), NewObserver(DefaultObserverConfig(), rng), sink, rng)

	tracks := []Track{newTrack(t, "contrast"), newTrack(t, "duration")}
	summary, err := runner.Run(context.Background(), tracks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.events) != summary.TotalTrials {
		t.Fatalf("sink saw %d events for %d trials", len(sink.events), summary.TotalTrials)
	}
	perStaircase := map[string]int{}
	phaseChanges := map[string]int{}
	for _, ev := range sink.events {
		perStaircase[ev.Staircase]++
		if ev.PhaseChanged {
			phaseChanges[ev.Staircase]++
		}
		if !ev.Result.Applied {
			t.Fatal("runner presented a trial to a converged staircase")
		}
	}

	for _, s := range summary.Staircases {
		if !s.Over {
			t.Fatalf("%s did not converge in %d trials", s.Name, summary.TotalTrials)
		}
		if s.Err != nil {
			t.Fatalf("%s threshold error: %v", s.Name, s.Err)
		}
		if s.Threshold < 0.01 || s.Threshold > 1.5 {
			t.Fatalf("%s threshold %f outside bounds", s.Name, s.Threshold)
		}
		if perStaircase[s.Name] != s.Trials {
			t.Fatalf("%s: %d events vs %d trials", s.Name, perStaircase[s.Name], s.Trials)
		}
		if phaseChanges[s.Name] != 1 {
			t.Fatalf("%s: expected exactly one phase change, got %d", s.Name, phaseChanges[s.Name])
		}
	}
}

func TestRunnerStopsAtMaxTrials(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	cfg := DefaultRunConfig()
	cfg.MaxTrials = 5
	runner := NewRunner(cfg, DefaultDesign(), NewObserver(DefaultObserverConfig(), rng), nil, rng)

	summary, err := runner.Run(context.Background(), []Track{newTrack(t, "a")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.TotalTrials != 5 {
		t.Fatalf("expected 5 trials, got %d", summary.TotalTrials)
	}
	if !errors.Is(summary.Staircases[0].Err, staircase.ErrNotConverged) {
		t.Fatalf("expected ErrNotConverged, got %v", summary.Staircases[0].Err)
	}
}

func TestRunnerCancelled(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	runner := NewRunner(DefaultRunConfig(), DefaultDesign(), NewObserver(DefaultObserverConfig(), rng), nil, rng)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := runner.Run(ctx, []Track{newTrack(t, "a")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary.TotalTrials != 0 {
		t.Fatalf("expected no trials, got %d", summary.TotalTrials)
	}
}

func TestRunnerSinkError(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	runner := NewRunner(DefaultRunConfig(), DefaultDesign(), NewObserver(DefaultObserverConfig(), rng), failingSink{}, rng)

	summary, err := runner.Run(context.Background(), []Track{newTrack(t, "a")})
	if err == nil {
		t.Fatal("expected sink error")
	}
	if summary.TotalTrials != 1 {
		t.Fatalf("expected stop after first trial, got %d", summary.TotalTrials)
	}
}

func TestRunnerEmptyDesign(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	runner := NewRunner(DefaultRunConfig(), Design{}, NewObserver(DefaultObserverConfig(), rng), nil, rng)
	if _, err := runner.Run(context.Background(), []Track{newTrack(t, "a")}); err == nil {
		t.Fatal("expected error for empty design")
	}
}

// #endregion runner-tests

// #region console-tests
func TestConsoleResponder(t *testing.T) {
	in := strings.NewReader("what\nc\ni\nquit\n")
	var out bytes.Buffer
	c := NewConsoleResponder(in, &out)
	p := Presentation{Staircase: "s", TrialNumber: 1, Value: 0.5, StimulusPresent: true}

	r, err := c.Respond(context.Background(), p)
	if err != nil || !r.Correct {
		t.Fatalf("expected correct, got %+v %v", r, err)
	}
	if !strings.Contains(out.String(), "enter c (correct)") {
		t.Fatalf("expected help line for invalid input, got %q", out.String())
	}

	r, err = c.Respond(context.Background(), p)
	if err != nil || r.Correct {
		t.Fatalf("expected incorrect, got %+v %v", r, err)
	}

	if _, err := c.Respond(context.Background(), p); !errors.Is(err, ErrQuit) {
		t.Fatalf("expected ErrQuit, got %v", err)
	}
	if _, err := c.Respond(context.Background(), p); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

// #endregion console-tests
