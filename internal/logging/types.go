package logging

import (
	"time"

	"github.com/nik0lai/evidence-priming/internal/staircase"
)

// #region event-kind
// EventKind labels a provenance row.
type EventKind string

const (
	EventPhaseChange    EventKind = "phase_change"
	EventConverged      EventKind = "converged"
	EventThreshold      EventKind = "threshold"
	EventThresholdFault EventKind = "threshold_fault"
)

// #endregion event-kind

// #region event-entry
// EventEntry is a single row in the provenance_log table.
type EventEntry struct {
	ID          int64
	SessionID   string
	TrialNumber int
	Kind        EventKind
	DetailJSON  string
	Reason      string
	CreatedAt   time.Time
}

// #endregion event-entry

// #region event-record
// EventRecord captures the staircase state at the moment of an event.
// Serialized as JSON into provenance_log.detail_json.
type EventRecord struct {
	Staircase     string  `json:"staircase"`
	TrialNumber   int     `json:"trial_number"`
	Value         float64 `json:"value"`
	NextValue     float64 `json:"next_value"`
	Outcome       string  `json:"outcome"`
	Phase         int     `json:"phase"`
	ReversalCount int     `json:"reversal_count"`

	// Set on threshold events only
	Threshold *float64 `json:"threshold,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// NewEventRecord builds a record from the result of a trial.
func NewEventRecord(name string, res staircase.TrialResult) EventRecord {
	return EventRecord{
		Staircase:     name,
		TrialNumber:   res.TrialNumber,
		Value:         res.Value,
		NextValue:     res.NextValue,
		Outcome:       string(res.Outcome),
		Phase:         res.Phase,
		ReversalCount: res.ReversalCount,
	}
}

// #endregion event-record
