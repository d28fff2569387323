package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nik0lai/evidence-priming/internal/config"
	"github.com/nik0lai/evidence-priming/internal/eval"
	"github.com/nik0lai/evidence-priming/internal/logging"
	"github.com/nik0lai/evidence-priming/internal/staircase"
	"github.com/nik0lai/evidence-priming/internal/store"
	"github.com/nik0lai/evidence-priming/internal/trial"
)

// #region main
func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: $CONFIG_PATH or ./config.yaml)")
	interactive := flag.Bool("interactive", false, "score trials from stdin instead of the simulated observer")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.NewLogger(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *interactive); err != nil {
		logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

// #endregion main

// #region run
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, interactive bool) error {
	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var tracks []trial.Track
	for _, scCfg := range cfg.StaircaseConfigs() {
		sc, err := staircase.New(scCfg)
		if err != nil {
			return err
		}
		sess, err := st.CreateSession(scCfg)
		if err != nil {
			return err
		}
		tracks = append(tracks, trial.Track{SessionID: sess.SessionID, Staircase: sc})
		logger.Info("staircase started",
			zap.String("session_id", sess.SessionID),
			zap.String("name", scCfg.Name),
			zap.Float64("start", scCfg.StartValue),
			zap.Float64("target", scCfg.TargetPerformance),
		)
	}

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	var responder trial.Responder
	if interactive {
		responder = trial.NewConsoleResponder(os.Stdin, os.Stdout)
	} else {
		responder = trial.NewObserver(cfg.ObserverConfig(), rand.New(rand.NewSource(seed+1)))
		logger.Info("simulated observer", zap.Int64("seed", seed))
	}

	runner := trial.NewRunner(cfg.RunConfig(), trial.DefaultDesign(), responder, st, rng)
	summary, runErr := runner.Run(ctx, tracks)
	switch {
	case runErr == nil:
	case errors.Is(runErr, trial.ErrQuit), errors.Is(runErr, io.EOF), errors.Is(runErr, context.Canceled):
		logger.Warn("run stopped early", zap.Error(runErr))
		runErr = nil
	}

	harness := eval.NewEvalHarness(eval.DefaultEvalConfig())
	for _, tr := range tracks {
		if err := st.FinishSession(tr.SessionID, store.FinishFor(tr.Staircase)); err != nil {
			return err
		}
		res := harness.Run(tr.Staircase.Snapshot())
		fields := []zap.Field{zap.String("name", tr.Staircase.Name()), zap.Bool("passed", res.Passed)}
		for _, m := range res.Metrics {
			fields = append(fields, zap.Float64(m.Name, m.Value))
		}
		if res.Passed {
			logger.Info("staircase eval", fields...)
		} else {
			logger.Warn("staircase eval", append(fields, zap.String("reason", res.Reason))...)
		}
	}

	printSummary(summary)
	return runErr
}

// #endregion run

// #region output
func printSummary(s trial.RunSummary) {
	fmt.Printf("\n%-16s| %-8s| %-10s| %-6s| %s\n", "Staircase", "Trials", "Reversals", "Over", "Threshold")
	fmt.Printf("%-16s+%-9s+%-11s+%-7s+%s\n", "----------------", "---------", "-----------", "-------", "----------")
	for _, sc := range s.Staircases {
		th := fmt.Sprintf("%.5f", sc.Threshold)
		if sc.Err != nil {
			th = sc.Err.Error()
		}
		fmt.Printf("%-16s| %-8d| %-10d| %-6t| %s\n", sc.Name, sc.Trials, sc.ReversalCount, sc.Over, th)
	}
	fmt.Printf("\nTotal trials: %d\n", s.TotalTrials)
}

// #endregion output
