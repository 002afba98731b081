package solver

import (
	"fmt"
	"time"

	"github.com/san-kum/chainbench/internal/backend"
	"github.com/san-kum/chainbench/internal/problem"
)

// ADMM runs the operator splitting backend. The KKT matrix is factorized
// at setup; solves only refresh the bounds.
type ADMM struct {
	qpBase
	be *backend.ADMM
}

func NewADMM(opts Options) Solver {
	return &ADMM{qpBase: qpBase{name: "admm", opts: opts, stats: Stats{Variant: ISAGeneric}}}
}

func (s *ADMM) Setup(p problem.Problem) error {
	s.be = nil
	if err := s.bind(p); err != nil {
		return err
	}
	start := time.Now()
	be := backend.NewADMM(s.opts.settings())
	if err := be.Setup(s.prob.QP()); err != nil {
		return fmt.Errorf("solver: admm setup: %w", err)
	}
	s.stats.SetupTime = time.Since(start)
	s.be = be
	return nil
}

func (s *ADMM) Solve() error {
	if s.be == nil {
		return ErrNotSetUp
	}
	s.x = nil
	guess := s.guess()
	start := time.Now()
	res, err := s.be.Solve(guess)
	s.stats.SolveTime = time.Since(start)
	s.stats.Iterations = res.Iterations
	if err != nil {
		return solveError("admm", err)
	}
	s.x = res.X
	return nil
}
