package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nik0lai/evidence-priming/internal/replay"
	"github.com/nik0lai/evidence-priming/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to evidence-priming.db (DB mode)")
	sessionID := flag.String("session", "", "session id to replay (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON or YAML (fixture mode)")
	flag.Parse()

	dbMode := *dbPath != "" && *sessionID != ""
	if dbMode == (*fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/evidence-priming.db --session id")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var f *replay.Fixture
	var err error
	if dbMode {
		f, err = loadSession(*dbPath, *sessionID)
	} else {
		f, err = replay.LoadFixture(*fixturePath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	os.Exit(runFixture(f))
}

// #endregion main

// #region db-extract

func loadSession(dbPath, sessionID string) (*replay.Fixture, error) {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	sess, err := st.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	trials, err := st.ListTrials(sessionID)
	if err != nil {
		return nil, err
	}
	if len(trials) == 0 {
		return nil, fmt.Errorf("session %s has no trials", sessionID)
	}
	f := replay.BuildFixture("session "+sessionID, sess, trials)
	return &f, nil
}

// #endregion db-extract

// #region output

func runFixture(f *replay.Fixture) int {
	res, err := replay.Replay(f.Config, f.Trials)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}
	if f.Description != "" {
		fmt.Println(f.Description)
	}
	printTrials(res, f.Expected.Values)

	s := replay.Summarize(res)
	fmt.Printf("\nSummary: %d trials, %d applied, %d reversals (hit %d, miss %d, fa %d, cr %d)\n",
		s.TotalTrials, s.Applied, s.Reversals, s.Hits, s.Misses, s.FalseAlarms, s.CorrectRejections)
	if res.ThresholdErr != nil {
		fmt.Printf("Threshold: %s\n", replay.ErrorKind(res.ThresholdErr))
	} else {
		fmt.Printf("Threshold: %.6f\n", res.Threshold)
	}

	mismatches := replay.Compare(res, f.Expected)
	if len(mismatches) == 0 {
		fmt.Println("Result: OK")
		return 0
	}
	fmt.Printf("Result: %d mismatches\n", len(mismatches))
	for _, m := range mismatches {
		fmt.Printf("  %s\n", m)
	}
	return 1
}

// printTrials outputs one row per applied trial next to the expected value.
func printTrials(res replay.Result, expected []float64) {
	fmt.Printf("%-6s| %-12s| %-12s| %-4s| %-5s| %-6s| %s\n", "Trial", "Expected", "Replayed", "Out", "Phase", "Revs", "Match")
	fmt.Printf("%-6s+%-13s+%-13s+%-5s+%-6s+%-7s+%s\n",
		"------", "-------------", "-------------", "-----", "------", "-------", "------")

	i := 0
	for _, tr := range res.Trials {
		if !tr.Applied {
			continue
		}
		exp, match := "-", "-"
		if i < len(expected) {
			exp = fmt.Sprintf("%.6f", expected[i])
			match = "DIFF"
			if d := expected[i] - tr.Value; d <= replay.Tolerance && d >= -replay.Tolerance {
				match = "OK"
			}
		}
		fmt.Printf("%-6d| %-12s| %-12.6f| %-4s| %-5d| %-6d| %s\n",
			tr.TrialNumber, exp, tr.Value, tr.Outcome, tr.Phase, tr.ReversalCount, match)
		i++
	}
}

// #endregion output
