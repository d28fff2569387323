package config

import (
	"time"

	"github.com/nik0lai/evidence-priming/internal/staircase"
	"github.com/nik0lai/evidence-priming/internal/trial"
)

// Config is the root configuration shared by the binaries.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	Server     ServerConfig     `yaml:"server"`
	Staircase  StaircaseConfig  `yaml:"staircase"`
	Simulation SimulationConfig `yaml:"simulation"`
}

// LogConfig holds zap logger settings.
type LogConfig struct {
	Mode  string `yaml:"mode"  env:"LOG_MODE"  env-default:"dev"`
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// StoreConfig holds the SQLite location.
type StoreConfig struct {
	Path string `yaml:"path" env:"STORE_PATH" env-default:"evidence-priming.db"`
}

// ServerConfig holds gRPC server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"SERVER_ADDR"             env-default:":50051"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	MemoryOnly      bool          `yaml:"memory_only"      env:"SERVER_MEMORY_ONLY"` // skip the store
}

// StaircaseConfig holds the staircase parameters. One staircase is created per
// entry in Names, all with the same parameters.
type StaircaseConfig struct {
	NamesRaw          string  `yaml:"names"              env:"STAIRCASE_NAMES"      env-default:"staircase"`
	StartValue        float64 `yaml:"start_value"        env:"STAIRCASE_START"      env-default:"0.1"`
	TargetPerformance float64 `yaml:"target_performance" env:"STAIRCASE_TARGET"     env-default:"0.75"`
	ReversalsRaw      string  `yaml:"reversals"          env:"STAIRCASE_REVERSALS"  env-default:"5,15"`
	StepSizesRaw      string  `yaml:"step_sizes"         env:"STAIRCASE_STEP_SIZES" env-default:"1,0.5"`
	PowerLaw          float64 `yaml:"power_law"          env:"STAIRCASE_POWER_LAW"  env-default:"1"`
	MinValueRaw       string  `yaml:"min_value"          env:"STAIRCASE_MIN"`
	MaxValueRaw       string  `yaml:"max_value"          env:"STAIRCASE_MAX"`
	Procedure         string  `yaml:"procedure"          env:"STAIRCASE_PROCEDURE"  env-default:"siam"`

	// Parsed from the raw fields during validation.
	Names     []string  `yaml:"-" env:"-"`
	Reversals []int     `yaml:"-" env:"-"`
	StepSizes []float64 `yaml:"-" env:"-"`
	MinValue  *float64  `yaml:"-" env:"-"`
	MaxValue  *float64  `yaml:"-" env:"-"`
}

// SimulationConfig holds the simulated observer and run settings.
type SimulationConfig struct {
	Seed           int64   `yaml:"seed"             env:"SIM_SEED"             env-default:"0"`
	Task           string  `yaml:"task"             env:"SIM_TASK"             env-default:"prime"`
	MaxTrials      int     `yaml:"max_trials"       env:"SIM_MAX_TRIALS"       env-default:"2000"`
	PresentRate    float64 `yaml:"present_rate"     env:"SIM_PRESENT_RATE"     env-default:"0.5"`
	Repeat         int     `yaml:"repeat"           env:"SIM_REPEAT"           env-default:"2"`
	Threshold      float64 `yaml:"threshold"        env:"SIM_THRESHOLD"        env-default:"0.5"`
	Slope          float64 `yaml:"slope"            env:"SIM_SLOPE"            env-default:"10"`
	Guess          float64 `yaml:"guess"            env:"SIM_GUESS"            env-default:"0.5"`
	Lapse          float64 `yaml:"lapse"            env:"SIM_LAPSE"            env-default:"0.02"`
	FalseAlarmRate float64 `yaml:"false_alarm_rate" env:"SIM_FALSE_ALARM_RATE" env-default:"0.1"`
}

// StaircaseConfigs returns one staircase.Config per configured name.
// Validate must have run first.
func (c *Config) StaircaseConfigs() []staircase.Config {
	out := make([]staircase.Config, 0, len(c.Staircase.Names))
	for _, name := range c.Staircase.Names {
		out = append(out, c.Staircase.toStaircase(name))
	}
	return out
}

func (s *StaircaseConfig) toStaircase(name string) staircase.Config {
	cfg := staircase.Config{
		Name:              name,
		StartValue:        s.StartValue,
		TargetPerformance: s.TargetPerformance,
		Reversals:         append([]int(nil), s.Reversals...),
		StepSizes:         append([]float64(nil), s.StepSizes...),
		PowerLaw:          s.PowerLaw,
		Procedure:         staircase.Procedure(s.Procedure),
	}
	if s.MinValue != nil {
		cfg.MinValue = staircase.Bound(*s.MinValue)
	}
	if s.MaxValue != nil {
		cfg.MaxValue = staircase.Bound(*s.MaxValue)
	}
	return cfg
}

// RunConfig returns the trial loop settings.
func (c *Config) RunConfig() trial.RunConfig {
	return trial.RunConfig{
		Task:        trial.Task(c.Simulation.Task),
		MaxTrials:   c.Simulation.MaxTrials,
		PresentRate: c.Simulation.PresentRate,
		Repeat:      c.Simulation.Repeat,
	}
}

// ObserverConfig returns the simulated participant settings.
func (c *Config) ObserverConfig() trial.ObserverConfig {
	oc := trial.DefaultObserverConfig()
	oc.Threshold = c.Simulation.Threshold
	oc.Slope = c.Simulation.Slope
	oc.Guess = c.Simulation.Guess
	oc.Lapse = c.Simulation.Lapse
	oc.FalseAlarmRate = c.Simulation.FalseAlarmRate
	return oc
}
