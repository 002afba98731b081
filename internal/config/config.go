package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/chainbench/internal/param"
	"github.com/san-kum/chainbench/internal/problem"
)

const (
	DefaultRuns       = 30
	DefaultEps        = 1e-6
	DefaultSeed       = 42
	DefaultResultsDir = "results"
	DefaultProblem    = "chain_mass_ocp"

	DefaultDt       = 0.01
	DefaultHold     = 0.5
	DefaultDuration = 30.0
	DefaultMasses   = 5
	DefaultHorizon  = 15
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// SweepConfig describes one benchmark sweep. The order of Axes defines
// the combination keys.
type SweepConfig struct {
	Problem    string     `yaml:"problem"`
	Name       string     `yaml:"name"`
	Axes       param.Axes `yaml:"parameters"`
	Runs       int        `yaml:"runs"`
	Eps        float64    `yaml:"eps"`
	Seed       int64      `yaml:"seed"`
	MaxIter    int        `yaml:"max_iter,omitempty"`
	WarmStart  bool       `yaml:"warm_start,omitempty"`
	Solvers    []string   `yaml:"solvers,omitempty"`
	ResultsDir string     `yaml:"results_dir"`
}

func DefaultConfig() *SweepConfig {
	return &SweepConfig{
		Problem:    DefaultProblem,
		Name:       "default",
		Runs:       DefaultRuns,
		Eps:        DefaultEps,
		Seed:       DefaultSeed,
		ResultsDir: DefaultResultsDir,
	}
}

func Load(path string) (*SweepConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *SweepConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the sweep against the problem registry.
func (c *SweepConfig) Validate() error {
	known, err := problem.Parameters(c.Problem)
	if err != nil {
		return err
	}
	if err := c.Axes.Validate(); err != nil {
		return err
	}
	if len(c.Axes) == 0 {
		return fmt.Errorf("%w: no parameters to sweep", ErrInvalidConfig)
	}
	for _, name := range c.Axes.Names() {
		ok := false
		for _, k := range known {
			ok = ok || k == name
		}
		if !ok {
			return fmt.Errorf("%w: %s does not take %q", ErrInvalidConfig, c.Problem, name)
		}
	}
	if c.Runs < 1 {
		return fmt.Errorf("%w: runs=%d", ErrInvalidConfig, c.Runs)
	}
	if c.Eps <= 0 {
		return fmt.Errorf("%w: eps=%g", ErrInvalidConfig, c.Eps)
	}
	return nil
}

func (c *SweepConfig) Clone() *SweepConfig {
	out := *c
	out.Axes = make(param.Axes, len(c.Axes))
	for i, ax := range c.Axes {
		out.Axes[i] = param.Axis{Name: ax.Name, Values: append([]any(nil), ax.Values...)}
	}
	out.Solvers = append([]string(nil), c.Solvers...)
	return &out
}

// RolloutConfig drives one closed-loop simulation of the chain.
type RolloutConfig struct {
	Masses     int     `yaml:"masses"`
	Inputs     int     `yaml:"inputs"`
	Integrator string  `yaml:"integrator"`
	Controller string  `yaml:"controller"`
	Solver     string  `yaml:"solver"`
	Horizon    int     `yaml:"horizon"`
	Dt         float64 `yaml:"dt"`
	Hold       float64 `yaml:"hold"`
	Duration   float64 `yaml:"duration"`
	Seed       int64   `yaml:"seed"`
}

func DefaultRollout() *RolloutConfig {
	return &RolloutConfig{
		Masses:     DefaultMasses,
		Integrator: "rk4",
		Controller: "lqr",
		Solver:     "riccati",
		Horizon:    DefaultHorizon,
		Dt:         DefaultDt,
		Hold:       DefaultHold,
		Duration:   DefaultDuration,
		Seed:       DefaultSeed,
	}
}

func LoadRollout(path string) (*RolloutConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultRollout()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}
