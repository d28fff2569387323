package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region log-event
// Execer is satisfied by *sql.DB and *sql.Tx, so events can join a caller's transaction.
type Execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// LogEvent writes an event entry to the provenance_log table.
func LogEvent(db Execer, entry EventEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var trialPtr interface{}
	if entry.TrialNumber > 0 {
		trialPtr = entry.TrialNumber
	}

	_, err := db.Exec(
		`INSERT INTO provenance_log (session_id, trial_number, event, detail_json, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.SessionID,
		trialPtr,
		string(entry.Kind),
		nullIfEmpty(entry.DetailJSON),
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// LogRecord marshals rec as the entry detail and writes it.
func LogRecord(db Execer, sessionID string, kind EventKind, rec EventRecord, reason string) error {
	detail, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event record: %w", err)
	}
	return LogEvent(db, EventEntry{
		SessionID:   sessionID,
		TrialNumber: rec.TrialNumber,
		Kind:        kind,
		DetailJSON:  string(detail),
		Reason:      reason,
	})
}

// #endregion log-event

// #region list-events
// ListEvents returns a session's provenance rows in insertion order.
func ListEvents(db *sql.DB, sessionID string) ([]EventEntry, error) {
	rows, err := db.Query(
		`SELECT id, session_id, trial_number, event, detail_json, reason, created_at
		 FROM provenance_log WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var entries []EventEntry
	for rows.Next() {
		var e EventEntry
		var trialNumber sql.NullInt64
		var kind, createdStr string
		var detail, reason sql.NullString

		if err := rows.Scan(&e.ID, &e.SessionID, &trialNumber, &kind, &detail, &reason, &createdStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.TrialNumber = int(trialNumber.Int64)
		e.Kind = EventKind(kind)
		e.DetailJSON = detail.String
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion list-events

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
