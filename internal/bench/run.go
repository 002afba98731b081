package bench

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/san-kum/chainbench/internal/problem"
	"github.com/san-kum/chainbench/internal/solver"
)

// DefaultSeed reseeds x0 randomization before the timed runs.
const DefaultSeed = 42

var (
	ErrNoCompatibleSolver = errors.New("bench: no solver accepts the problem")
	ErrInvalidRuns        = errors.New("bench: runs must be positive")
)

type Stage string

const (
	StageSetup Stage = "setup"
	StageSolve Stage = "solve"
)

// CellError is a failure confined to one (combination, solver) cell.
type CellError struct {
	Solver string
	Stage  Stage
	Err    error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("bench: %s %s: %v", e.Solver, e.Stage, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

// Run sets the solver up once, solves once to warm up, then randomizes x0
// and solves runs times from a generator seeded with seed. The context is
// checked between solves.
func Run(ctx context.Context, p problem.Problem, s solver.Solver, runs int, seed int64) (CellResult, error) {
	cell := CellResult{SolverName: s.Name()}
	if runs < 1 {
		return cell, fmt.Errorf("%w: %d", ErrInvalidRuns, runs)
	}
	if err := s.Setup(p); err != nil {
		return cell, &CellError{Solver: s.Name(), Stage: StageSetup, Err: err}
	}
	st := s.Stats()
	cell.SetupTime = st.SetupTime.Seconds()
	cell.Variant = st.Variant

	if err := s.Solve(); err != nil {
		return cell, &CellError{Solver: s.Name(), Stage: StageSolve, Err: err}
	}

	rng := rand.New(rand.NewSource(seed))
	times := make([]float64, 0, runs)
	iters := make([]float64, 0, runs)
	for i := 0; i < runs; i++ {
		if err := ctx.Err(); err != nil {
			return cell, err
		}
		p.RandomizeX0(rng)
		if err := s.Solve(); err != nil {
			return cell, &CellError{Solver: s.Name(), Stage: StageSolve, Err: err}
		}
		st := s.Stats()
		times = append(times, st.SolveTime.Seconds())
		iters = append(iters, float64(st.Iterations))
	}
	cell.SolveTimes = Summarize(times)
	cell.Iterations = Summarize(iters)
	return cell, nil
}
