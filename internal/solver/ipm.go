package solver

import (
	"fmt"
	"time"

	"github.com/san-kum/chainbench/internal/backend"
	"github.com/san-kum/chainbench/internal/problem"
)

// IPM runs the sparse interior point backend on the condensed QP. The
// instruction set named in Options.ISA labels the variant; when the CPU
// lacks it the generic kernels run and Stats.Variant says so.
type IPM struct {
	qpBase
	isa string
	be  *backend.IPM
}

func NewIPM(opts Options) Solver {
	isa := opts.ISA
	if isa == "" {
		isa = ISAGeneric
	}
	name := "ipm_sparse"
	if isa != ISAGeneric {
		name = "ipm_" + isa
	}
	s := &IPM{qpBase: qpBase{name: name, opts: opts}, isa: isa}
	s.stats.Variant = s.variant()
	return s
}

func (s *IPM) variant() string {
	v := ResolveISA(s.isa)
	if v != s.isa {
		s.opts.logger().Warn("isa variant unavailable, using fallback",
			"solver", s.name, "requested", s.isa, "variant", v)
	}
	return v
}

func (s *IPM) Setup(p problem.Problem) error {
	s.be = nil
	if err := s.bind(p); err != nil {
		return err
	}
	start := time.Now()
	be := backend.NewIPM(s.opts.settings())
	if err := be.Setup(s.prob.QP()); err != nil {
		return fmt.Errorf("solver: %s setup: %w", s.name, err)
	}
	s.stats.SetupTime = time.Since(start)
	s.be = be
	return nil
}

func (s *IPM) Solve() error {
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
		return solveError(s.name, err)
	}
	s.x = res.X
	return nil
}
