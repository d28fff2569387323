package trial

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/nik0lai/evidence-priming/internal/staircase"
)

// #region track
// Track binds a staircase to the session it is persisted under.
type Track struct {
	SessionID string
	Staircase *staircase.Staircase
}

// #endregion track

// #region runner
// Runner is the trial loop: it interleaves one or more staircases over a
// shuffled block of design trials. It runs on the caller's goroutine.
type Runner struct {
	config    RunConfig
	design    Design
	responder Responder
	sink      Sink
	rng       *rand.Rand
}

// NewRunner wires a runner. sink may be nil.
func NewRunner(config RunConfig, design Design, responder Responder, sink Sink, rng *rand.Rand) *Runner {
	return &Runner{
		config:    config,
		design:    design,
		responder: responder,
		sink:      sink,
		rng:       rng,
	}
}

// Run presents trials until every staircase is over, MaxTrials is reached or
// ctx is cancelled. The summary is valid even when an error is returned.
func (r *Runner) Run(ctx context.Context, tracks []Track) (RunSummary, error) {
	if len(UniqueTrials(r.design)) == 0 {
		return RunSummary{}, errors.New("run: design has no trials")
	}

	var queue []Trial
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return summarize(total, tracks), err
		}
		active := activeTracks(tracks)
		if len(active) == 0 {
			break
		}
		if r.config.MaxTrials > 0 && total >= r.config.MaxTrials {
			break
		}
		if len(queue) == 0 {
			queue = BlockTrials(r.design, r.config.Repeat, r.rng)
		}
		tr := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		track := active[r.rng.Intn(len(active))]
		sc := track.Staircase
		p := Presentation{
			Staircase:       sc.Name(),
			TrialNumber:     sc.TrialNumber() + 1,
			Task:            r.config.Task,
			Value:           sc.CurrentDifficulty(),
			StimulusPresent: r.rng.Float64() < r.config.PresentRate,
			Trial:           tr,
		}

		resp, err := r.responder.Respond(ctx, p)
		if err != nil {
			return summarize(total, tracks), fmt.Errorf("respond trial %d: %w", total+1, err)
		}

		phaseBefore := sc.Phase()
		res := sc.RecordTrial(resp.Correct, p.StimulusPresent)
		total++

		if r.sink != nil {
			ev := TrialEvent{
				SessionID:    track.SessionID,
				Staircase:    sc.Name(),
				Presentation: p,
				Response:     resp,
				Result:       res,
				PhaseChanged: res.Phase != phaseBefore,
			}
			if err := r.sink.RecordTrial(ctx, ev); err != nil {
				return summarize(total, tracks), fmt.Errorf("record trial %d: %w", total, err)
			}
		}
	}
	return summarize(total, tracks), nil
}

// #endregion runner

// #region helpers
func activeTracks(tracks []Track) []Track {
	active := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if !t.Staircase.IsOver() {
			active = append(active, t)
		}
	}
	return active
}

func summarize(total int, tracks []Track) RunSummary {
	s := RunSummary{TotalTrials: total}
	for _, t := range tracks {
		sc := t.Staircase
		th, err := sc.Threshold()
		s.Staircases = append(s.Staircases, StaircaseSummary{
			Name:          sc.Name(),
			SessionID:     t.SessionID,
			Trials:        sc.TrialNumber(),
			ReversalCount: sc.ReversalCount(),
			Over:          sc.IsOver(),
			Threshold:     th,
			Err:           err,
		})
	}
	return s
}

// #endregion helpers
