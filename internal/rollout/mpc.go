package rollout

import (
	"errors"
	"fmt"
	"time"

	"github.com/san-kum/chainbench/internal/problem"
	"github.com/san-kum/chainbench/internal/sim"
	"github.com/san-kum/chainbench/internal/solver"
)

var ErrEmptyPlan = errors.New("rollout: solver returned no input")

// MPC applies the first input of the OCP solved from the current state.
// The solver is set up on the first sample and re-solved afterwards.
type MPC struct {
	prob   *problem.ChainMassOCP
	solver solver.Solver
	ready  bool

	Solves     int
	Iterations int
	SolveTime  time.Duration
}

func NewMPC(prob *problem.ChainMassOCP, s solver.Solver) (*MPC, error) {
	if !prob.Shapes().Has(s.Accepts()) || !s.Supports(prob) {
		return nil, fmt.Errorf("%w: %s cannot solve %s", solver.ErrUnsupportedShape, s.Name(), prob.Name())
	}
	return &MPC{prob: prob, solver: s}, nil
}

func (m *MPC) Compute(x sim.State, t float64) (sim.Control, error) {
	if err := m.prob.SetX0(x); err != nil {
		return nil, err
	}
	if !m.ready {
		if err := m.solver.Setup(m.prob); err != nil {
			return nil, err
		}
		m.ready = true
	}
	if err := m.solver.Solve(); err != nil {
		return nil, err
	}
	st := m.solver.Stats()
	m.Solves++
	m.Iterations += st.Iterations
	m.SolveTime += st.SolveTime

	sol, err := m.solver.Solution()
	if err != nil {
		return nil, err
	}
	if len(sol.Trajectories) == 0 || len(sol.Trajectories[0].U) == 0 {
		return nil, ErrEmptyPlan
	}
	return sim.Control(append([]float64(nil), sol.Trajectories[0].U[0]...)), nil
}
