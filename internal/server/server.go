package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nik0lai/evidence-priming/internal/staircase"
	"github.com/nik0lai/evidence-priming/internal/store"
	"github.com/nik0lai/evidence-priming/internal/trial"
)

// #region server-struct
// Server owns a set of independent staircases. Each staircase is only touched
// while its session mutex is held.
type Server struct {
	mu       sync.RWMutex
	sessions map[string]*session
	recorder Recorder
	logger   *zap.SugaredLogger
}

type session struct {
	mu       sync.Mutex
	sc       *staircase.Staircase
	finished bool // terminal result written to the recorder
	closed   bool
}

// NewServer creates a server. recorder may be nil for an in-memory service.
func NewServer(logger *zap.Logger, recorder Recorder) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		sessions: make(map[string]*session),
		recorder: recorder,
		logger:   logger.Sugar(),
	}
}

// Register attaches the service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// #endregion server-struct

// #region create
// Create validates the config and starts a staircase.
func (s *Server) Create(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req CreateRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(fmt.Errorf("%w: %v", staircase.ErrConfiguration, err))
	}
	sc, err := staircase.New(req.Config)
	if err != nil {
		return nil, toStatus(err)
	}

	id := uuid.New().String()
	if s.recorder != nil {
		rec, err := s.recorder.CreateSession(req.Config)
		if err != nil {
			s.logger.Errorw("create session failed", "error", err)
			return nil, toStatus(err)
		}
		id = rec.SessionID
	}

	s.mu.Lock()
	s.sessions[id] = &session{sc: sc}
	s.mu.Unlock()

	s.logger.Infow("staircase created",
		"session_id", id,
		"name", req.Config.Name,
		"start", req.Config.StartValue,
		"target", req.Config.TargetPerformance,
	)
	return toStruct(CreateResponse{SessionID: id, Value: sc.CurrentDifficulty(), Matrix: sc.AdjustmentMatrix()})
}

// #endregion create

// #region record
// Record feeds one scored trial into a staircase. The trial is applied to a
// copy and only kept once the recorder has stored it, so a failed call can be
// retried without counting the trial twice.
func (s *Server) Record(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req RecordRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, toStatus(err)
	}
	sess, err := s.lookup(req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil, toStatus(fmt.Errorf("%w: %q", ErrSessionNotFound, req.SessionID))
	}

	next := sess.sc.Clone()
	phaseBefore := next.Phase()
	res := next.RecordTrial(req.IsCorrect, req.StimulusPresent)
	if res.Applied {
		if err := s.persist(ctx, req, next, res, res.Phase != phaseBefore); err != nil {
			s.logger.Errorw("persist trial failed", "session_id", req.SessionID, "trial", res.TrialNumber, "error", err)
			return nil, toStatus(err)
		}
		sess.sc = next
		if res.Phase != phaseBefore {
			s.logger.Infow("phase change", "session_id", req.SessionID, "trial", res.TrialNumber, "reversals", res.ReversalCount)
		}
		if res.Over {
			s.logger.Infow("staircase converged", "session_id", req.SessionID, "trials", res.TrialNumber)
		}
	}

	// Also reached by calls after convergence, which retries a failed finish.
	if sess.sc.IsOver() {
		if err := s.finish(req.SessionID, sess); err != nil {
			s.logger.Errorw("finish session failed", "session_id", req.SessionID, "error", err)
			return nil, toStatus(err)
		}
	}

	return toStruct(RecordResponse{Result: res})
}

func (s *Server) persist(ctx context.Context, req RecordRequest, sc *staircase.Staircase, res staircase.TrialResult, phaseChanged bool) error {
	if s.recorder == nil {
		return nil
	}
	return s.recorder.RecordTrial(ctx, trial.TrialEvent{
		SessionID: req.SessionID,
		Staircase: sc.Name(),
		Presentation: trial.Presentation{
			Staircase:       sc.Name(),
			TrialNumber:     res.TrialNumber,
			Value:           res.Value,
			StimulusPresent: req.StimulusPresent,
		},
		Response:     trial.Response{Correct: req.IsCorrect},
		Result:       res,
		PhaseChanged: phaseChanged,
	})
}

// finish writes the terminal result once. Callers hold sess.mu.
func (s *Server) finish(id string, sess *session) error {
	if s.recorder == nil || sess.finished {
		return nil
	}
	if err := s.recorder.FinishSession(id, store.FinishFor(sess.sc)); err != nil {
		return err
	}
	sess.finished = true
	return nil
}

// #endregion record

// #region queries
// Current reports the live state of a staircase.
func (s *Server) Current(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SessionRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, toStatus(err)
	}
	sess, err := s.lookup(req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}

	sess.mu.Lock()
	resp := CurrentResponse{
		SessionID:     req.SessionID,
		Name:          sess.sc.Name(),
		Value:         sess.sc.CurrentDifficulty(),
		TrialNumber:   sess.sc.TrialNumber(),
		Phase:         sess.sc.Phase(),
		ReversalCount: sess.sc.ReversalCount(),
		Over:          sess.sc.IsOver(),
		Status:        sess.sc.Status(),
	}
	sess.mu.Unlock()

	return toStruct(resp)
}

// Threshold returns the threshold of a converged staircase.
func (s *Server) Threshold(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SessionRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, toStatus(err)
	}
	sess, err := s.lookup(req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}

	sess.mu.Lock()
	th, err := sess.sc.Threshold()
	sess.mu.Unlock()
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(ThresholdResponse{SessionID: req.SessionID, Threshold: th})
}

// Close drops a session. A session that was never finished in the recorder
// is finished first, as aborted when it had not converged.
func (s *Server) Close(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SessionRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, toStatus(err)
	}
	sess, err := s.lookup(req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil, toStatus(fmt.Errorf("%w: %q", ErrSessionNotFound, req.SessionID))
	}
	if err := s.finish(req.SessionID, sess); err != nil {
		s.logger.Errorw("finish session failed", "session_id", req.SessionID, "error", err)
		return nil, toStatus(err)
	}
	sess.closed = true

	s.mu.Lock()
	delete(s.sessions, req.SessionID)
	s.mu.Unlock()

	s.logger.Infow("staircase closed", "session_id", req.SessionID, "over", sess.sc.IsOver())
	return toStruct(CloseResponse{SessionID: req.SessionID, Over: sess.sc.IsOver()})
}

// Len is the number of open sessions.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) lookup(id string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return sess, nil
}

// #endregion queries
