package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nik0lai/evidence-priming/internal/logging"
	"github.com/nik0lai/evidence-priming/internal/staircase"
	"github.com/nik0lai/evidence-priming/internal/trial"
)

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("session not found")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id   TEXT PRIMARY KEY,
	name         TEXT,
	config_json  TEXT NOT NULL,
	status       TEXT NOT NULL,
	threshold    REAL,
	fault        TEXT,
	state_json   TEXT,
	created_at   TEXT NOT NULL,
	finished_at  TEXT
);

CREATE TABLE IF NOT EXISTS trials (
	session_id       TEXT NOT NULL,
	trial_number     INTEGER NOT NULL,
	value            REAL NOT NULL,
	next_value       REAL NOT NULL,
	is_correct       INTEGER NOT NULL,
	stimulus_present INTEGER NOT NULL,
	outcome          TEXT NOT NULL,
	reversal         INTEGER NOT NULL,
	phase            INTEGER NOT NULL,
	reversal_count   INTEGER NOT NULL,
	is_over          INTEGER NOT NULL,
	response_key     TEXT,
	rt_ms            INTEGER,
	created_at       TEXT NOT NULL,
	PRIMARY KEY (session_id, trial_number),
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL,
	trial_number INTEGER,
	event        TEXT NOT NULL,
	detail_json  TEXT,
	reason       TEXT,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);
`

// #endregion schema

// #region store-struct
// Store persists staircase sessions in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #region create-session
// CreateSession inserts an active session for cfg under a fresh uuid.
func (s *Store) CreateSession(cfg staircase.Config) (SessionRecord, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("marshal config: %w", err)
	}

	rec := SessionRecord{
		SessionID: uuid.New().String(),
		Name:      cfg.Name,
		Config:    cfg,
		Status:    StatusActive,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.Exec(
		`INSERT INTO sessions (session_id, name, config_json, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, nullIfEmpty(rec.Name), string(cfgJSON), string(rec.Status),
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("insert session: %w", err)
	}
	return rec, nil
}

// #endregion create-session

// #region get-session
const sessionColumns = `session_id, name, config_json, status, threshold, fault, state_json, created_at, finished_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (SessionRecord, error) {
	var rec SessionRecord
	var name, fault, stateJSON, finishedStr sql.NullString
	var threshold sql.NullFloat64
	var cfgJSON, status, createdStr string

	if err := row.Scan(&rec.SessionID, &name, &cfgJSON, &status, &threshold, &fault, &stateJSON, &createdStr, &finishedStr); err != nil {
		return SessionRecord{}, err
	}
	rec.Name = name.String
	rec.Status = SessionStatus(status)
	rec.Fault = fault.String
	if threshold.Valid {
		th := threshold.Float64
		rec.Threshold = &th
	}
	if err := json.Unmarshal([]byte(cfgJSON), &rec.Config); err != nil {
		return SessionRecord{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if stateJSON.Valid {
		var st staircase.State
		if err := json.Unmarshal([]byte(stateJSON.String), &st); err != nil {
			return SessionRecord{}, fmt.Errorf("unmarshal state: %w", err)
		}
		rec.State = &st
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	if finishedStr.Valid {
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedStr.String)
	}
	return rec, nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(id string) (SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("get session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return rec, nil
}

// #endregion get-session

// #region list-sessions
// ListSessions returns the most recent sessions.
func (s *Store) ListSessions(limit int) ([]SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM sessions ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-sessions

// #region append-trial
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// AppendTrial inserts one trial row.
func (s *Store) AppendTrial(ctx context.Context, rec TrialRecord) error {
	return insertTrial(ctx, s.db, rec)
}

func insertTrial(ctx context.Context, db execer, rec TrialRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var rtPtr interface{}
	if rec.RT > 0 {
		rtPtr = rec.RT.Milliseconds()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO trials (session_id, trial_number, value, next_value, is_correct, stimulus_present,
		 outcome, reversal, phase, reversal_count, is_over, response_key, rt_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.TrialNumber, rec.Value, rec.NextValue,
		boolInt(rec.IsCorrect), boolInt(rec.StimulusPresent), string(rec.Outcome),
		boolInt(rec.Reversal), rec.Phase, rec.ReversalCount, boolInt(rec.Over),
		nullIfEmpty(rec.Key), rtPtr, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert trial %d: %w", rec.TrialNumber, err)
	}
	return nil
}

// #endregion append-trial

// #region list-trials
// ListTrials returns a session's trials in presentation order.
func (s *Store) ListTrials(sessionID string) ([]TrialRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, trial_number, value, next_value, is_correct, stimulus_present,
		 outcome, reversal, phase, reversal_count, is_over, response_key, rt_ms, created_at
		 FROM trials WHERE session_id = ? ORDER BY trial_number`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()

	var records []TrialRecord
	for rows.Next() {
		var rec TrialRecord
		var correct, present, reversal, over int
		var outcome, createdStr string
		var key sql.NullString
		var rtMS sql.NullInt64

		if err := rows.Scan(&rec.SessionID, &rec.TrialNumber, &rec.Value, &rec.NextValue,
			&correct, &present, &outcome, &reversal, &rec.Phase, &rec.ReversalCount, &over,
			&key, &rtMS, &createdStr); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		rec.IsCorrect = correct != 0
		rec.StimulusPresent = present != 0
		rec.Reversal = reversal != 0
		rec.Over = over != 0
		rec.Outcome = staircase.Outcome(outcome)
		rec.Key = key.String
		rec.RT = time.Duration(rtMS.Int64) * time.Millisecond
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-trials

// #region finish-session
// FinishSession records the terminal status of a session and logs a threshold
// or threshold_fault event.
func (s *Store) FinishSession(id string, f Finish) error {
	var stateJSON interface{}
	var trialNumber int
	if f.State != nil {
		b, err := json.Marshal(f.State)
		if err != nil {
			return fmt.Errorf("marshal state: %w", err)
		}
		stateJSON = string(b)
		trialNumber = f.State.TrialNumber
	}

	var thresholdPtr interface{}
	if f.Threshold != nil {
		thresholdPtr = *f.Threshold
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE sessions SET status = ?, threshold = ?, fault = ?, state_json = ?, finished_at = ?
		 WHERE session_id = ?`,
		string(f.Status), thresholdPtr, nullIfEmpty(f.Fault), stateJSON,
		time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish session %s: %w", id, ErrSessionNotFound)
	}

	rec := logging.EventRecord{TrialNumber: trialNumber, Threshold: f.Threshold, Error: f.Fault}
	if f.State != nil {
		rec.Staircase = f.State.Name
		rec.Value = f.State.CurrentValue
		rec.NextValue = f.State.CurrentValue
		rec.Phase = f.State.Phase
		rec.ReversalCount = f.State.ReversalCount
	}
	kind := logging.EventThreshold
	if f.Threshold == nil {
		kind = logging.EventThresholdFault
	}
	if err := logging.LogRecord(tx, id, kind, rec, string(f.Status)); err != nil {
		return err
	}
	return tx.Commit()
}

// FinishFor derives the terminal result of sc.
func FinishFor(sc *staircase.Staircase) Finish {
	st := sc.Snapshot()
	f := Finish{Status: StatusAborted, State: &st}
	if sc.IsOver() {
		f.Status = StatusConverged
	}
	th, err := sc.Threshold()
	if err != nil {
		f.Fault = err.Error()
	} else {
		f.Threshold = &th
	}
	return f
}

// #endregion finish-session

// #region sink
// RecordTrial implements trial.Sink: it appends the trial and logs phase
// changes and convergence in one transaction.
func (s *Store) RecordTrial(ctx context.Context, ev trial.TrialEvent) error {
	res := ev.Result
	if !res.Applied {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = insertTrial(ctx, tx, TrialRecord{
		SessionID:       ev.SessionID,
		TrialNumber:     res.TrialNumber,
		Value:           res.Value,
		NextValue:       res.NextValue,
		IsCorrect:       ev.Response.Correct,
		StimulusPresent: ev.Presentation.StimulusPresent,
		Outcome:         res.Outcome,
		Reversal:        res.Reversal,
		Phase:           res.Phase,
		ReversalCount:   res.ReversalCount,
		Over:            res.Over,
		Key:             ev.Response.Key,
		RT:              ev.Response.RT,
	})
	if err != nil {
		return err
	}

	rec := logging.NewEventRecord(ev.Staircase, res)
	if ev.PhaseChanged {
		if err := logging.LogRecord(tx, ev.SessionID, logging.EventPhaseChange, rec, ""); err != nil {
			return err
		}
	}
	if res.Over {
		if err := logging.LogRecord(tx, ev.SessionID, logging.EventConverged, rec, ""); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// #endregion sink

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
