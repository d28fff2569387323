package server

import (
	"context"
	"errors"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nik0lai/evidence-priming/internal/staircase"
	"github.com/nik0lai/evidence-priming/internal/store"
	"github.com/nik0lai/evidence-priming/internal/trial"
)

var (
	// ErrSessionNotFound is returned for an unknown or closed session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidRequest marks a payload that does not decode into its request type.
	ErrInvalidRequest = errors.New("invalid request")
)

// #region service
const serviceName = "staircase.v1.StaircaseService"

// StaircaseServer is the server API of the staircase service. Every message is
// a google.protobuf.Struct carrying one of the JSON payloads below.
type StaircaseServer interface {
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Record(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Current(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Threshold(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Close(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Recorder persists sessions and trials. *store.Store satisfies it.
type Recorder interface {
	CreateSession(cfg staircase.Config) (store.SessionRecord, error)
	RecordTrial(ctx context.Context, ev trial.TrialEvent) error
	FinishSession(id string, f store.Finish) error
}

// #endregion service

// #region payloads
// CreateRequest starts a staircase.
type CreateRequest struct {
	Config staircase.Config `json:"config"`
}

// CreateResponse identifies the new staircase.
type CreateResponse struct {
	SessionID string                     `json:"session_id"`
	Value     float64                    `json:"value"`
	Matrix    staircase.AdjustmentMatrix `json:"matrix"`
}

// RecordRequest is one scored trial.
type RecordRequest struct {
	SessionID       string `json:"session_id"`
	IsCorrect       bool   `json:"is_correct"`
	StimulusPresent bool   `json:"stimulus_present"`
}

// RecordResponse reports what the trial did.
type RecordResponse struct {
	Result staircase.TrialResult `json:"result"`
}

// SessionRequest addresses an existing staircase.
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// CurrentResponse is the live state of a staircase.
type CurrentResponse struct {
	SessionID     string           `json:"session_id"`
	Name          string           `json:"name"`
	Value         float64          `json:"value"`
	TrialNumber   int              `json:"trial_number"`
	Phase         int              `json:"phase"`
	ReversalCount int              `json:"reversal_count"`
	Over          bool             `json:"over"`
	Status        staircase.Status `json:"status"`
}

// ThresholdResponse carries a converged threshold.
type ThresholdResponse struct {
	SessionID string  `json:"session_id"`
	Threshold float64 `json:"threshold"`
}

// CloseResponse confirms a session was dropped from the server.
type CloseResponse struct {
	SessionID string `json:"session_id"`
	Over      bool   `json:"over"`
}

// #endregion payloads
