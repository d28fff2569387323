package eval

import (
	"fmt"
	"math"

	"github.com/nik0lai/evidence-priming/internal/staircase"
)

// #region eval-harness
// EvalHarness checks whether a finished staircase produced a usable threshold.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run evaluates a staircase snapshot. Accuracy is reported but never fails.
func (h *EvalHarness) Run(st staircase.State) EvalResult {
	var metrics []EvalMetric
	var failReasons []string

	// 1. Convergence
	metrics = append(metrics, EvalMetric{Name: "converged", Value: boolValue(st.IsOver), Pass: st.IsOver})
	if !st.IsOver {
		failReasons = append(failReasons, fmt.Sprintf("not converged after %d trials (%d reversals)", st.TrialNumber, st.ReversalCount))
	}

	// 2. Enough final-phase reversals to average
	n := len(st.Phase1ReversalValues)
	revPass := n >= h.config.MinFinalReversals && n > 0
	metrics = append(metrics, EvalMetric{Name: "final_reversals", Value: float64(n), Pass: revPass})
	if !revPass {
		failReasons = append(failReasons, fmt.Sprintf("%d final-phase reversals, need %d", n, max(h.config.MinFinalReversals, 1)))
	}

	// 3. Spread of the values the threshold is averaged over
	spread := relativeSpread(st.Phase1ReversalValues)
	spreadPass := spread <= h.config.MaxSpread
	metrics = append(metrics, EvalMetric{Name: "reversal_spread", Value: spread, Pass: spreadPass})
	if !spreadPass {
		failReasons = append(failReasons, fmt.Sprintf("reversal spread %.4f exceeds %.4f", spread, h.config.MaxSpread))
	}

	// 4. Time spent pinned at a bound
	frac := boundFraction(st)
	boundPass := frac <= h.config.MaxBoundFraction
	metrics = append(metrics, EvalMetric{Name: "bound_fraction", Value: frac, Pass: boundPass})
	if !boundPass {
		failReasons = append(failReasons, fmt.Sprintf("%.0f%% of trials at a bound, limit %.0f%%", frac*100, h.config.MaxBoundFraction*100))
	}

	// 5. Observed accuracy: informational only
	metrics = append(metrics, EvalMetric{Name: "accuracy", Value: accuracy(st.CorrectHistory), Pass: true})

	passed := len(failReasons) == 0
	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
// relativeSpread is the population SD over |mean|; 0 for fewer than two values.
// Values scattered around a zero mean report math.MaxFloat64, which fails any
// limit and still encodes as JSON.
func relativeSpread(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var ss float64
	for _, v := range vals {
		ss += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(ss / float64(len(vals)))
	if mean == 0 {
		if sd == 0 {
			return 0
		}
		return math.MaxFloat64
	}
	return math.Min(sd/math.Abs(mean), math.MaxFloat64)
}

func boundFraction(st staircase.State) float64 {
	if len(st.HistoryValues) == 0 || (st.MinValue == nil && st.MaxValue == nil) {
		return 0
	}
	at := 0
	for _, v := range st.HistoryValues {
		if (st.MinValue != nil && v <= *st.MinValue) || (st.MaxValue != nil && v >= *st.MaxValue) {
			at++
		}
	}
	return float64(at) / float64(len(st.HistoryValues))
}

func accuracy(correct []bool) float64 {
	if len(correct) == 0 {
		return 0
	}
	n := 0
	for _, c := range correct {
		if c {
			n++
		}
	}
	return float64(n) / float64(len(correct))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
