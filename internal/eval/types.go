package eval

// #region eval-config
// EvalConfig holds the data-quality limits for a finished staircase.
type EvalConfig struct {
	MinFinalReversals int     // final-phase reversals the threshold is averaged over
	MaxSpread         float64 // SD/|mean| of final-phase reversal values
	MaxBoundFraction  float64 // share of trials presented at min or max
}

// DefaultEvalConfig returns limits suited to the default [5,15] schedule.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MinFinalReversals: 4,
		MaxSpread:         0.5,
		MaxBoundFraction:  0.2,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of a data-quality evaluation.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// Metric returns the named metric, if present.
func (r EvalResult) Metric(name string) (EvalMetric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return EvalMetric{}, false
}

// #endregion eval-result
