package trial

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// #region observer-config
// ObserverConfig parameterises a simulated participant.
type ObserverConfig struct {
	Threshold      float64 // value where accuracy is halfway between guess and 1-lapse
	Slope          float64 // logistic slope; higher values are harder
	Guess          float64 // chance accuracy, 0.5 for left/right
	Lapse          float64
	FalseAlarmRate float64 // p(report on an absent target)
	RTMean         time.Duration
	RTSD           time.Duration
	KeyLeft        string
	KeyRight       string
}

// DefaultObserverConfig mirrors the dry-run settings of the lab code.
func DefaultObserverConfig() ObserverConfig {
	return ObserverConfig{
		Threshold:      0.5,
		Slope:          10,
		Guess:          0.5,
		Lapse:          0.02,
		FalseAlarmRate: 0.1,
		RTMean:         700 * time.Millisecond,
		RTSD:           100 * time.Millisecond,
		KeyLeft:        "a",
		KeyRight:       "l",
	}
}

// #endregion observer-config

// #region observer
// Observer is a simulated participant. All randomness comes from the injected
// rng, so a seeded run is reproducible and never touches staircase state.
type Observer struct {
	config ObserverConfig
	rng    *rand.Rand
}

// NewObserver creates an observer drawing from rng.
func NewObserver(config ObserverConfig, rng *rand.Rand) *Observer {
	return &Observer{config: config, rng: rng}
}

// PCorrect is the probability of a correct report at value.
func (o *Observer) PCorrect(value float64) float64 {
	c := o.config
	f := 1 / (1 + math.Exp(c.Slope*(value-c.Threshold)))
	return c.Guess + (1-c.Guess-c.Lapse)*f
}

// Respond simulates a keypress for p.
func (o *Observer) Respond(ctx context.Context, p Presentation) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	var correct bool
	if p.StimulusPresent {
		correct = o.rng.Float64() < o.PCorrect(p.Value)
	} else {
		correct = o.rng.Float64() >= o.config.FalseAlarmRate
	}

	want := p.Trial.CorrectDirection(p.Task)
	key := o.keyFor(want)
	if !correct {
		key = o.keyFor(opposite(want))
	}

	rt := time.Duration(o.rng.NormFloat64()*float64(o.config.RTSD)) + o.config.RTMean
	if rt < 0 {
		rt = 0
	}

	return Response{Key: key, Correct: correct, RT: rt}, nil
}

func (o *Observer) keyFor(direction string) string {
	if direction == "right" {
		return o.config.KeyRight
	}
	return o.config.KeyLeft
}

func opposite(direction string) string {
	if direction == "right" {
		return "left"
	}
	return "right"
}

// #endregion observer
