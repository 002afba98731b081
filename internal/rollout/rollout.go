package rollout

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/san-kum/chainbench/internal/config"
	"github.com/san-kum/chainbench/internal/control"
	"github.com/san-kum/chainbench/internal/integrators"
	"github.com/san-kum/chainbench/internal/metrics"
	"github.com/san-kum/chainbench/internal/physics"
	"github.com/san-kum/chainbench/internal/problem"
	"github.com/san-kum/chainbench/internal/sim"
	"github.com/san-kum/chainbench/internal/solver"
)

var Controllers = []string{"lqr", "mpc", "none"}

type Result struct {
	*sim.Result
	X0  []float64
	MPC *MPC
}

// Series returns states and inputs as plain rows.
func (r *Result) Series() (states, controls [][]float64) {
	states = make([][]float64, len(r.States))
	for i, x := range r.States {
		states[i] = x
	}
	controls = make([][]float64, len(r.Controls))
	for i, u := range r.Controls {
		controls[i] = u
	}
	return states, controls
}

// Run simulates the chain from a random initial state drawn with
// cfg.Seed.
func Run(ctx context.Context, cfg *config.RolloutConfig, log *slog.Logger) (*Result, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	params := physics.DefaultParams(cfg.Masses, cfg.Horizon)
	params.Nu = cfg.Inputs
	model, err := physics.NewChainMass(params)
	if err != nil {
		return nil, err
	}
	integ, err := integrators.ByName(cfg.Integrator)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	out := &Result{}
	var ctrl sim.Controller
	switch cfg.Controller {
	case "none":
		ctrl = control.NewNone(model.Nu)
	case "lqr":
		lqr, err := control.NewDiscreteLQR(model.Ad, model.Bd, model.Q, model.R)
		if err != nil {
			return nil, err
		}
		lqr.Limit = model.UMax
		ctrl = lqr
	case "mpc":
		prob, err := problem.NewChainMassOCP(problem.OCPOptions{Params: params}, rand.New(rand.NewSource(cfg.Seed)))
		if err != nil {
			return nil, err
		}
		s, err := solver.New(cfg.Solver, solver.Options{Eps: config.DefaultEps, Log: log})
		if err != nil {
			return nil, err
		}
		mpc, err := NewMPC(prob, s)
		if err != nil {
			return nil, err
		}
		out.MPC = mpc
		ctrl = mpc
	default:
		return nil, fmt.Errorf("rollout: unknown controller %q (want one of %v)", cfg.Controller, Controllers)
	}

	s := sim.New(model, integ, ctrl)
	s.AddMetric(metrics.NewControlEffort(model.R))
	s.AddMetric(metrics.NewSaturation(model.UMax))
	s.AddMetric(metrics.NewStageCost(model))
	s.AddMetric(metrics.NewBoundViolation(model.XMax, model.UMax))
	s.AddMetric(metrics.NewOscillation(0))

	out.X0 = problem.RandomX0(rng, model.Nx)
	log.Info("rollout started",
		"masses", cfg.Masses,
		"controller", cfg.Controller,
		"integrator", cfg.Integrator,
		"duration", cfg.Duration,
	)
	res, err := s.Run(ctx, sim.State(out.X0), sim.Config{Dt: cfg.Dt, Duration: cfg.Duration, Hold: cfg.Hold})
	out.Result = res
	if err != nil {
		return out, err
	}
	log.Info("rollout finished",
		"final_norm", res.States[len(res.States)-1].Norm(),
		"stage_cost", res.Metrics["stage_cost"],
	)
	return out, nil
}
