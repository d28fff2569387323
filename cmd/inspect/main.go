package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nik0lai/evidence-priming/internal/eval"
	"github.com/nik0lai/evidence-priming/internal/logging"
	"github.com/nik0lai/evidence-priming/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to evidence-priming.db")
	last := flag.Int("last", 20, "show N most recent sessions")
	session := flag.String("session", "", "show single session detail")
	events := flag.Bool("events", false, "include provenance events in session detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/evidence-priming.db [--last N] [--session id [--events]] [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if *session != "" {
		err = runDetailMode(st, *session, *events, *jsonOut)
	} else {
		err = runListMode(st, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	SessionID  string   `json:"session_id"`
	Name       string   `json:"name"`
	Status     string   `json:"status"`
	Threshold  *float64 `json:"threshold,omitempty"`
	Fault      string   `json:"fault,omitempty"`
	Trials     int      `json:"trials"`
	Reversals  int      `json:"reversals"`
	CreatedAt  string   `json:"created_at"`
	FinishedAt string   `json:"finished_at,omitempty"`
}

func runListMode(st *store.Store, last int, jsonOut bool) error {
	sessions, err := st.ListSessions(last)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(os.Stderr, "no sessions found")
		return nil
	}

	// store returns newest first, reverse for chronological
	rows := make([]listRow, len(sessions))
	for i, s := range sessions {
		lr := listRow{
			SessionID: s.SessionID,
			Name:      s.Name,
			Status:    string(s.Status),
			Threshold: s.Threshold,
			Fault:     s.Fault,
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
		}
		if s.State != nil {
			lr.Trials = s.State.TrialNumber
			lr.Reversals = s.State.ReversalCount
		}
		if !s.FinishedAt.IsZero() {
			lr.FinishedAt = s.FinishedAt.Format(time.RFC3339)
		}
		rows[len(sessions)-1-i] = lr
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-10s  %-14s  %-10s  %6s  %5s  %-12s  %s\n",
		"Session", "Name", "Status", "Trials", "Revs", "Threshold", "Created")
	fmt.Printf("%-10s+-%-14s+-%-10s+-%6s+-%5s+-%-12s+-%s\n",
		"----------", "--------------", "----------", "------", "-----", "------------", "--------------------")
	for _, r := range rows {
		th := "-"
		if r.Threshold != nil {
			th = fmt.Sprintf("%.6f", *r.Threshold)
		} else if r.Fault != "" {
			th = "fault"
		}
		fmt.Printf("%-10s  %-14s  %-10s  %6d  %5d  %-12s  %s\n",
			shortID(r.SessionID), r.Name, r.Status, r.Trials, r.Reversals, th, r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type trialRow struct {
	TrialNumber     int     `json:"trial_number"`
	Value           float64 `json:"value"`
	NextValue       float64 `json:"next_value"`
	IsCorrect       bool    `json:"is_correct"`
	StimulusPresent bool    `json:"stimulus_present"`
	Outcome         string  `json:"outcome"`
	Reversal        bool    `json:"reversal"`
	Phase           int     `json:"phase"`
	ReversalCount   int     `json:"reversal_count"`
	Key             string  `json:"key,omitempty"`
	RTMillis        int64   `json:"rt_ms,omitempty"`
}

type eventRow struct {
	TrialNumber int    `json:"trial_number,omitempty"`
	Kind        string `json:"kind"`
	Detail      string `json:"detail,omitempty"`
	Reason      string `json:"reason,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type detailOutput struct {
	Session listRow          `json:"session"`
	Eval    *eval.EvalResult `json:"eval,omitempty"`
	Trials  []trialRow       `json:"trials"`
	Events  []eventRow       `json:"events,omitempty"`
	Config  json.RawMessage  `json:"config"`
}

func runDetailMode(st *store.Store, sessionID string, withEvents, jsonOut bool) error {
	s, err := st.GetSession(sessionID)
	if err != nil {
		return err
	}
	trials, err := st.ListTrials(sessionID)
	if err != nil {
		return err
	}

	cfgJSON, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	out := detailOutput{
		Session: listRow{
			SessionID: s.SessionID,
			Name:      s.Name,
			Status:    string(s.Status),
			Threshold: s.Threshold,
			Fault:     s.Fault,
			Trials:    len(trials),
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
		},
		Config: cfgJSON,
	}
	if !s.FinishedAt.IsZero() {
		out.Session.FinishedAt = s.FinishedAt.Format(time.RFC3339)
	}
	if s.State != nil {
		out.Session.Reversals = s.State.ReversalCount
		res := eval.NewEvalHarness(eval.DefaultEvalConfig()).Run(*s.State)
		out.Eval = &res
	}
	for _, t := range trials {
		out.Trials = append(out.Trials, trialRow{
			TrialNumber:     t.TrialNumber,
			Value:           t.Value,
			NextValue:       t.NextValue,
			IsCorrect:       t.IsCorrect,
			StimulusPresent: t.StimulusPresent,
			Outcome:         string(t.Outcome),
			Reversal:        t.Reversal,
			Phase:           t.Phase,
			ReversalCount:   t.ReversalCount,
			Key:             t.Key,
			RTMillis:        t.RT.Milliseconds(),
		})
	}
	if withEvents {
		entries, err := logging.ListEvents(st.DB(), sessionID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			out.Events = append(out.Events, eventRow{
				TrialNumber: e.TrialNumber,
				Kind:        string(e.Kind),
				Detail:      e.DetailJSON,
				Reason:      e.Reason,
				CreatedAt:   e.CreatedAt.Format(time.RFC3339Nano),
			})
		}
	}

	if jsonOut {
		return printJSON(out)
	}
	printDetail(out)
	return nil
}

func printDetail(out detailOutput) {
	s := out.Session
	fmt.Printf("Session:   %s\n", s.SessionID)
	fmt.Printf("Name:      %s\n", s.Name)
	fmt.Printf("Status:    %s\n", s.Status)
	fmt.Printf("Config:    %s\n", out.Config)
	switch {
	case s.Threshold != nil:
		fmt.Printf("Threshold: %.6f\n", *s.Threshold)
	case s.Fault != "":
		fmt.Printf("Threshold: %s\n", s.Fault)
	}
	fmt.Printf("Created:   %s\n", s.CreatedAt)
	if s.FinishedAt != "" {
		fmt.Printf("Finished:  %s\n", s.FinishedAt)
	}

	if out.Eval != nil {
		fmt.Printf("\nEval passed: %t\n", out.Eval.Passed)
		for _, m := range out.Eval.Metrics {
			fmt.Printf("  %-16s %8.4f  %t\n", m.Name, m.Value, m.Pass)
		}
		if out.Eval.Reason != "" {
			fmt.Printf("  %s\n", out.Eval.Reason)
		}
	}

	fmt.Printf("\n%-6s  %10s  %10s  %-4s  %5s  %4s  %3s\n", "Trial", "Value", "Next", "Out", "Phase", "Revs", "Rev")
	for _, t := range out.Trials {
		rev := ""
		if t.Reversal {
			rev = "*"
		}
		fmt.Printf("%-6d  %10.5f  %10.5f  %-4s  %5d  %4d  %3s\n",
			t.TrialNumber, t.Value, t.NextValue, t.Outcome, t.Phase, t.ReversalCount, rev)
	}

	if len(out.Events) > 0 {
		fmt.Println("\nEvents:")
		for _, e := range out.Events {
			fmt.Printf("  #%-5d %-16s %s %s\n", e.TrialNumber, e.Kind, e.Reason, e.Detail)
		}
	}
}

// #endregion detail-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
