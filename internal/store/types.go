package store

import (
	"time"

	"github.com/nik0lai/evidence-priming/internal/staircase"
)

// #region session-status
// SessionStatus is the lifecycle state of a stored session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusConverged SessionStatus = "converged"
	StatusAborted   SessionStatus = "aborted"
)

// #endregion session-status

// #region session-record
// SessionRecord is one staircase run, keyed by a uuid.
type SessionRecord struct {
	SessionID  string
	Name       string
	Config     staircase.Config
	Status     SessionStatus
	Threshold  *float64 // set only when a threshold could be computed
	Fault      string   // threshold error text when it could not
	State      *staircase.State
	CreatedAt  time.Time
	FinishedAt time.Time // zero while active
}

// #endregion session-record

// #region trial-record
// TrialRecord is one row of the trials table.
type TrialRecord struct {
	SessionID       string
	TrialNumber     int
	Value           float64
	NextValue       float64
	IsCorrect       bool
	StimulusPresent bool
	Outcome         staircase.Outcome
	Reversal        bool
	Phase           int
	ReversalCount   int
	Over            bool
	Key             string
	RT              time.Duration
	CreatedAt       time.Time
}

// #endregion trial-record

// #region finish
// Finish carries the terminal result written by FinishSession.
type Finish struct {
	Status    SessionStatus
	Threshold *float64
	Fault     string
	State     *staircase.State
}

// #endregion finish
