package sim

import (
	"context"
	"fmt"
	"math"
)

type Simulator struct {
	dyn        Dynamics
	integrator Integrator
	controller Controller
	metrics    []Metric
}

func New(dyn Dynamics, integrator Integrator, controller Controller) *Simulator {
	return &Simulator{
		dyn:        dyn,
		integrator: integrator,
		controller: controller,
		metrics:    make([]Metric, 0),
	}
}

func (s *Simulator) AddMetric(m Metric) { s.metrics = append(s.metrics, m) }

func (s *Simulator) Run(ctx context.Context, x0 State, cfg Config) (*Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	steps := int(math.Round(cfg.Duration / cfg.Dt))
	perSample := 1
	if cfg.Hold > 0 {
		perSample = max(1, int(math.Round(cfg.Hold/cfg.Dt)))
	}

	result := &Result{
		States:   make([]State, 0, steps+1),
		Controls: make([]Control, 0, steps),
		Times:    make([]float64, 0, steps+1),
		Metrics:  make(map[string]float64),
	}
	for _, m := range s.metrics {
		m.Reset()
	}

	x := x0.Clone()
	t := 0.0
	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	var u Control
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if i%perSample == 0 {
			next, err := s.controller.Compute(x, t)
			if err != nil {
				return result, fmt.Errorf("sim: controller at t=%.4f: %w", t, err)
			}
			u = next
			for _, m := range s.metrics {
				m.Observe(x, u, t)
			}
		}

		x = s.integrator.Step(s.dyn, x, u, t, cfg.Dt)
		t = float64(i+1) * cfg.Dt
		if !x.IsValid() {
			return result, fmt.Errorf("%w at t=%.4f", ErrDiverged, t)
		}

		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, u)
		result.Times = append(result.Times, t)
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, nil
}

func validateConfig(cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %f", ErrInvalidConfig, cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %f", ErrInvalidConfig, cfg.Duration)
	}
	if cfg.Hold < 0 {
		return fmt.Errorf("%w: hold must not be negative, got %f", ErrInvalidConfig, cfg.Hold)
	}
	return nil
}
