package solver

import (
	"fmt"
	"time"

	"github.com/san-kum/chainbench/internal/backend"
	"github.com/san-kum/chainbench/internal/problem"
)

// Riccati solves the dense OCP stage-wise. Every solve starts from the
// zero-input rollout of the current x0, so WarmStart changes nothing.
type Riccati struct {
	opts   Options
	prob   problem.OCPProblem
	be     *backend.Riccati
	solved bool
	stats  Stats
}

func NewRiccati(opts Options) Solver {
	return &Riccati{opts: opts, stats: Stats{Variant: ISAGeneric}}
}

func (r *Riccati) Name() string           { return "riccati" }
func (r *Riccati) Accepts() problem.Shape { return problem.ShapeOCP }
func (r *Riccati) Stats() Stats           { return r.stats }

func (r *Riccati) Supports(p problem.Problem) bool {
	_, ok := p.(problem.OCPProblem)
	return ok && p.Shapes().Has(problem.ShapeOCP)
}

func (r *Riccati) Setup(p problem.Problem) error {
	r.be = nil
	r.solved = false
	o, ok := p.(problem.OCPProblem)
	if !ok || !p.Shapes().Has(problem.ShapeOCP) {
		return fmt.Errorf("%w: riccati takes %s, %s offers %s", ErrUnsupportedShape, problem.ShapeOCP, p.Name(), p.Shapes())
	}
	r.prob = o
	r.stats = Stats{Variant: ISAGeneric}

	start := time.Now()
	be := backend.NewRiccati(r.opts.settings())
	if err := be.Setup(o.OCP()); err != nil {
		return fmt.Errorf("solver: riccati setup: %w", err)
	}
	r.stats.SetupTime = time.Since(start)
	r.be = be
	return nil
}

func (r *Riccati) Solve() error {
	if r.be == nil {
		return ErrNotSetUp
	}
	r.solved = false
	start := time.Now()
	res, err := r.be.Solve()
	r.stats.SolveTime = time.Since(start)
	r.stats.Iterations = res.Iterations
	if err != nil {
		return solveError("riccati", err)
	}
	r.solved = true
	return nil
}

func (r *Riccati) Solution() (problem.Solution, error) {
	if !r.solved {
		return problem.Solution{}, ErrNoSolution
	}
	xs, us := r.be.Trajectory()
	return r.prob.RecoverOCP(xs, us)
}
