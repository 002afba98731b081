package solver

import (
	"fmt"
	"time"

	"github.com/san-kum/chainbench/internal/backend"
	"github.com/san-kum/chainbench/internal/problem"
)

// LSEIMaxDim caps the decision vector the dense least squares backend
// takes; its workspace grows with the square of the dimension.
const LSEIMaxDim = 1200

type LSEI struct {
	qpBase
	be *backend.LSEI
}

func NewLSEI(opts Options) Solver {
	return &LSEI{qpBase: qpBase{name: "lsei", opts: opts, stats: Stats{Variant: ISAGeneric}}}
}

func (s *LSEI) Supports(p problem.Problem) bool {
	if !s.qpBase.Supports(p) {
		return false
	}
	return p.(problem.QPProblem).QP().Dim() <= LSEIMaxDim
}

func (s *LSEI) Setup(p problem.Problem) error {
	s.be = nil
	if err := s.bind(p); err != nil {
		return err
	}
	if dim := s.prob.QP().Dim(); dim > LSEIMaxDim {
		return fmt.Errorf("%w: lsei takes at most %d variables, got %d", ErrUnsupportedShape, LSEIMaxDim, dim)
	}
	start := time.Now()
	be := backend.NewLSEI(s.opts.MaxIter)
	if err := be.Setup(s.prob.QP()); err != nil {
		return fmt.Errorf("solver: lsei setup: %w", err)
	}
	s.stats.SetupTime = time.Since(start)
	s.be = be
	return nil
}

func (s *LSEI) Solve() error {
	if s.be == nil {
		return ErrNotSetUp
	}
	s.x = nil
	start := time.Now()
	res, err := s.be.Solve()
	s.stats.SolveTime = time.Since(start)
	s.stats.Iterations = res.Iterations
	if err != nil {
		return solveError("lsei", err)
	}
	s.x = res.X
	return nil
}
