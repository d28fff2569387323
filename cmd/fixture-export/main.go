package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/nik0lai/evidence-priming/internal/replay"
	"github.com/nik0lai/evidence-priming/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to evidence-priming.db")
	sessionID := flag.String("session", "", "session id to export (default: most recent)")
	outPath := flag.String("out", "", "output fixture JSON path")
	desc := flag.String("desc", "", "fixture description")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --out path/to/fixture.json [--session id] [--desc text]")
		os.Exit(2)
	}

	if err := run(*dbPath, *sessionID, *outPath, *desc); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath, sessionID, outPath, desc string) error {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	if sessionID == "" {
		recent, err := st.ListSessions(1)
		if err != nil {
			return err
		}
		if len(recent) == 0 {
			return fmt.Errorf("no sessions in %s", dbPath)
		}
		sessionID = recent[0].SessionID
	}

	sess, err := st.GetSession(sessionID)
	if err != nil {
		return err
	}
	trials, err := st.ListTrials(sessionID)
	if err != nil {
		return err
	}
	if len(trials) == 0 {
		return fmt.Errorf("session %s has no trials", sessionID)
	}

	if desc == "" {
		desc = fmt.Sprintf("%s (%s, %d trials, %s)", sess.Name, sessionID, len(trials), sess.Status)
	}
	f := replay.BuildFixture(desc, sess, trials)

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	fmt.Printf("Wrote %d trials from session %s to %s\n", len(trials), sessionID, outPath)
	return nil
}

// #endregion export
