package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nik0lai/evidence-priming/internal/staircase"
	"github.com/nik0lai/evidence-priming/internal/store"
)

// #region fixture-types

// Fixture is a recorded trial sequence plus what replaying it must produce.
type Fixture struct {
	Description string           `json:"description" yaml:"description"`
	Config      staircase.Config `json:"config" yaml:"config"`
	Trials      []FixtureTrial   `json:"trials" yaml:"trials"`
	Expected    FixtureExpected  `json:"expected" yaml:"expected"`
}

// FixtureTrial is one scored trial.
type FixtureTrial struct {
	IsCorrect       bool `json:"is_correct" yaml:"is_correct"`
	StimulusPresent bool `json:"stimulus_present" yaml:"stimulus_present"`
}

// FixtureExpected lists the checks Compare runs. Unset fields are skipped.
type FixtureExpected struct {
	Values         []float64 `json:"values,omitempty" yaml:"values,omitempty"` // presented value per applied trial
	ReversalCount  *int      `json:"reversal_count,omitempty" yaml:"reversal_count,omitempty"`
	Over           *bool     `json:"over,omitempty" yaml:"over,omitempty"`
	Threshold      *float64  `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	ThresholdError string    `json:"threshold_error,omitempty" yaml:"threshold_error,omitempty"` // not_converged | insufficient_reversals
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads a fixture file. .yaml and .yml files are parsed as YAML,
// everything else as JSON.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// TrialsFromRecords converts stored trial rows to fixture trials.
func TrialsFromRecords(records []store.TrialRecord) []FixtureTrial {
	out := make([]FixtureTrial, len(records))
	for i, r := range records {
		out[i] = FixtureTrial{IsCorrect: r.IsCorrect, StimulusPresent: r.StimulusPresent}
	}
	return out
}

// BuildFixture turns a stored session into a fixture whose expectations are
// the values and result that were recorded.
func BuildFixture(description string, sess store.SessionRecord, records []store.TrialRecord) Fixture {
	f := Fixture{
		Description: description,
		Config:      sess.Config,
		Trials:      TrialsFromRecords(records),
	}

	values := make([]float64, len(records))
	over := false
	for i, r := range records {
		values[i] = r.Value
		over = r.Over
	}
	f.Expected.Values = values
	f.Expected.Over = &over
	if len(records) > 0 {
		revs := records[len(records)-1].ReversalCount
		f.Expected.ReversalCount = &revs
	}

	switch {
	case sess.Threshold != nil:
		th := *sess.Threshold
		f.Expected.Threshold = &th
	case over:
		f.Expected.ThresholdError = ErrorKindInsufficientReversals
	default:
		f.Expected.ThresholdError = ErrorKindNotConverged
	}
	return f
}

// #endregion fixture-loader
