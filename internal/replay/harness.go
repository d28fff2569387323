package replay

import (
	"errors"
	"fmt"
	"math"

	"github.com/nik0lai/evidence-priming/internal/staircase"
)

const (
	ErrorKindNotConverged          = "not_converged"
	ErrorKindInsufficientReversals = "insufficient_reversals"
)

// Tolerance is the absolute difference accepted between expected and replayed values.
const Tolerance = 1e-9

// #region types
// Result is the outcome of replaying a trial sequence on a fresh staircase.
type Result struct {
	Trials       []staircase.TrialResult
	State        staircase.State
	Threshold    float64
	ThresholdErr error
}

// Mismatch is one failed check.
type Mismatch struct {
	Check string
	Want  string
	Got   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: want %s, got %s", m.Check, m.Want, m.Got)
}

// Summary counts outcomes across a replay.
type Summary struct {
	TotalTrials       int
	Applied           int
	Reversals         int
	Hits              int
	Misses            int
	FalseAlarms       int
	CorrectRejections int
}

// #endregion types

// #region replay
// Replay runs trials through a new staircase built from cfg. Trials after
// convergence are kept in the result with Applied=false. The only error is a
// configuration error.
func Replay(cfg staircase.Config, trials []FixtureTrial) (Result, error) {
	sc, err := staircase.New(cfg)
	if err != nil {
		return Result{}, err
	}

	res := Result{Trials: make([]staircase.TrialResult, 0, len(trials))}
	for _, tr := range trials {
		res.Trials = append(res.Trials, sc.RecordTrial(tr.IsCorrect, tr.StimulusPresent))
	}
	res.State = sc.Snapshot()
	res.Threshold, res.ThresholdErr = sc.Threshold()
	return res, nil
}

// Compare checks res against every expectation that is set.
func Compare(res Result, exp FixtureExpected) []Mismatch {
	var out []Mismatch

	if exp.Values != nil {
		var got []float64
		for _, tr := range res.Trials {
			if tr.Applied {
				got = append(got, tr.Value)
			}
		}
		if len(got) != len(exp.Values) {
			out = append(out, Mismatch{Check: "applied trials", Want: fmt.Sprint(len(exp.Values)), Got: fmt.Sprint(len(got))})
		} else {
			for i := range got {
				if math.Abs(got[i]-exp.Values[i]) > Tolerance {
					out = append(out, Mismatch{
						Check: fmt.Sprintf("value[%d]", i+1),
						Want:  fmt.Sprintf("%.6f", exp.Values[i]),
						Got:   fmt.Sprintf("%.6f", got[i]),
					})
				}
			}
		}
	}

	if exp.ReversalCount != nil && *exp.ReversalCount != res.State.ReversalCount {
		out = append(out, Mismatch{Check: "reversal_count", Want: fmt.Sprint(*exp.ReversalCount), Got: fmt.Sprint(res.State.ReversalCount)})
	}
	if exp.Over != nil && *exp.Over != res.State.IsOver {
		out = append(out, Mismatch{Check: "over", Want: fmt.Sprint(*exp.Over), Got: fmt.Sprint(res.State.IsOver)})
	}

	gotKind := ErrorKind(res.ThresholdErr)
	if exp.Threshold != nil {
		switch {
		case res.ThresholdErr != nil:
			out = append(out, Mismatch{Check: "threshold", Want: fmt.Sprintf("%.6f", *exp.Threshold), Got: gotKind})
		case math.Abs(res.Threshold-*exp.Threshold) > Tolerance:
			out = append(out, Mismatch{Check: "threshold", Want: fmt.Sprintf("%.6f", *exp.Threshold), Got: fmt.Sprintf("%.6f", res.Threshold)})
		}
	}
	if exp.ThresholdError != "" && exp.ThresholdError != gotKind {
		got := gotKind
		if got == "" {
			got = fmt.Sprintf("%.6f", res.Threshold)
		}
		out = append(out, Mismatch{Check: "threshold_error", Want: exp.ThresholdError, Got: got})
	}
	return out
}

// ErrorKind names a threshold error for fixtures. It returns "" for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, staircase.ErrNotConverged):
		return ErrorKindNotConverged
	case errors.Is(err, staircase.ErrInsufficientReversals):
		return ErrorKindInsufficientReversals
	default:
		return err.Error()
	}
}

// Summarize computes aggregate stats from replay results.
func Summarize(res Result) Summary {
	s := Summary{TotalTrials: len(res.Trials)}
	for _, tr := range res.Trials {
		if !tr.Applied {
			continue
		}
		s.Applied++
		if tr.Reversal {
			s.Reversals++
		}
		switch tr.Outcome {
		case staircase.Hit:
			s.Hits++
		case staircase.Miss:
			s.Misses++
		case staircase.FalseAlarm:
			s.FalseAlarms++
		case staircase.CorrectRejection:
			s.CorrectRejections++
		}
	}
	return s
}

// #endregion replay
