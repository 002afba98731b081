package solver

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/chainbench/internal/backend"
	"github.com/san-kum/chainbench/internal/problem"
)

var (
	ErrUnsupportedShape = errors.New("solver: problem shape not accepted")
	ErrNotConverged     = errors.New("solver: solve did not converge")
	ErrNotSetUp         = errors.New("solver: solve called before setup")
	ErrNoSolution       = errors.New("solver: no solution available")
	ErrUnknownSolver    = errors.New("solver: unknown solver")
)

type Solver interface {
	Name() string
	Accepts() problem.Shape
	// Supports reports whether the solver can take p, beyond its shape.
	Supports(p problem.Problem) bool
	Setup(p problem.Problem) error
	Solve() error
	Solution() (problem.Solution, error)
	Stats() Stats
}

// Stats of the last setup and solve.
type Stats struct {
	SetupTime  time.Duration
	SolveTime  time.Duration
	Iterations int
	// Variant is the instruction set variant that actually ran.
	Variant string
}

type Options struct {
	Eps       float64
	MaxIter   int
	Verbose   bool
	WarmStart bool
	ISA       string
	Log       *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Log
}

func (o Options) settings() backend.Settings {
	s := backend.Settings{Eps: o.Eps, MaxIter: o.MaxIter}
	if o.Verbose {
		s.Log = o.logger()
	}
	return s
}

func solveError(name string, err error) error {
	if errors.Is(err, backend.ErrMaxIter) {
		return fmt.Errorf("%w: %s: %w", ErrNotConverged, name, err)
	}
	return fmt.Errorf("solver: %s: %w", name, err)
}

// qpBase holds what every QP adapter shares.
type qpBase struct {
	name  string
	opts  Options
	prob  problem.QPProblem
	x     []float64
	stats Stats
}

func (b *qpBase) Name() string           { return b.name }
func (b *qpBase) Accepts() problem.Shape { return problem.ShapeQP }
func (b *qpBase) Stats() Stats           { return b.stats }

func (b *qpBase) Supports(p problem.Problem) bool {
	_, ok := p.(problem.QPProblem)
	return ok && p.Shapes().Has(problem.ShapeQP)
}

func (b *qpBase) bind(p problem.Problem) error {
	b.x = nil
	q, ok := p.(problem.QPProblem)
	if !ok || !p.Shapes().Has(problem.ShapeQP) {
		return fmt.Errorf("%w: %s takes %s, %s offers %s", ErrUnsupportedShape, b.name, problem.ShapeQP, p.Name(), p.Shapes())
	}
	b.prob = q
	b.stats = Stats{Variant: b.stats.Variant}
	return nil
}

// guess returns the zero-input rollout when warm starting an OCP-shaped
// problem, nil otherwise.
func (b *qpBase) guess() []float64 {
	if !b.opts.WarmStart || !b.prob.Shapes().Has(problem.ShapeOCP) {
		return nil
	}
	if g, ok := b.prob.(problem.PrimalGuesser); ok {
		return g.PrimalGuess()
	}
	return nil
}

func (b *qpBase) Solution() (problem.Solution, error) {
	if b.x == nil {
		return problem.Solution{}, ErrNoSolution
	}
	return b.prob.RecoverQP(b.x)
}
