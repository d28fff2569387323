package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nik0lai/evidence-priming/internal/trial"
)

// Validate parses the raw list fields and checks every section.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Mode) {
	case "dev", "development", "prod", "production":
	default:
		return fmt.Errorf("log.mode must be dev or prod (got %q)", c.Log.Mode)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if err := c.Staircase.validate(); err != nil {
		return fmt.Errorf("staircase: %w", err)
	}
	if err := c.Simulation.validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	return nil
}

func (s *StaircaseConfig) validate() error {
	s.Names = splitList(s.NamesRaw)
	if len(s.Names) == 0 {
		return fmt.Errorf("names must list at least one staircase")
	}
	seen := make(map[string]bool, len(s.Names))
	for _, n := range s.Names {
		if seen[n] {
			return fmt.Errorf("duplicate staircase name %q", n)
		}
		seen[n] = true
	}

	var err error
	if s.Reversals, err = ParseInts(s.ReversalsRaw); err != nil {
		return fmt.Errorf("reversals: %w", err)
	}
	if s.StepSizes, err = ParseFloats(s.StepSizesRaw); err != nil {
		return fmt.Errorf("step_sizes: %w", err)
	}
	if s.MinValue, err = parseBound(s.MinValueRaw); err != nil {
		return fmt.Errorf("min_value: %w", err)
	}
	if s.MaxValue, err = parseBound(s.MaxValueRaw); err != nil {
		return fmt.Errorf("max_value: %w", err)
	}

	return s.toStaircase(s.Names[0]).Validate()
}

func (s *SimulationConfig) validate() error {
	switch trial.Task(s.Task) {
	case trial.TaskPrime, trial.TaskMask:
	default:
		return fmt.Errorf("task must be prime or mask (got %q)", s.Task)
	}
	if s.MaxTrials < 0 {
		return fmt.Errorf("max_trials must be >= 0 (got %d)", s.MaxTrials)
	}
	if s.Repeat < 1 {
		return fmt.Errorf("repeat must be >= 1 (got %d)", s.Repeat)
	}
	for name, p := range map[string]float64{
		"present_rate":     s.PresentRate,
		"guess":            s.Guess,
		"lapse":            s.Lapse,
		"false_alarm_rate": s.FalseAlarmRate,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s must be within [0, 1] (got %v)", name, p)
		}
	}
	if s.Guess+s.Lapse > 1 {
		return fmt.Errorf("guess + lapse must be <= 1 (got %v)", s.Guess+s.Lapse)
	}
	// Absent trials without a false alarm never move the staircase.
	if s.MaxTrials == 0 && s.PresentRate == 0 && s.FalseAlarmRate == 0 {
		return fmt.Errorf("max_trials must be > 0 when present_rate and false_alarm_rate are both 0")
	}
	return nil
}

// ParseInts parses a comma-separated list of integers (e.g. "5,15").
// An empty string returns a nil slice.
func ParseInts(raw string) ([]int, error) {
	parts := splitList(raw)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// ParseFloats parses a comma-separated list of numbers (e.g. "1,0.5").
// An empty string returns a nil slice.
func ParseFloats(raw string) ([]float64, error) {
	parts := splitList(raw)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", p, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func parseBound(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", raw, err)
	}
	return &f, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
