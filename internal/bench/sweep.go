package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/san-kum/chainbench/internal/param"
	"github.com/san-kum/chainbench/internal/problem"
	"github.com/san-kum/chainbench/internal/solver"
)

// Builder constructs the problem of one parameter combination.
type Builder func(c param.Combination, rng *rand.Rand) (problem.Problem, error)

// ClassBuilder builds from the problem registry.
func ClassBuilder(class string) Builder {
	return func(c param.Combination, rng *rand.Rand) (problem.Problem, error) {
		return problem.Build(class, c, rng)
	}
}

// Sweep runs every compatible solver on every parameter combination.
type Sweep struct {
	Class   string
	Name    string
	Axes    param.Axes
	Runs    int
	Seed    int64
	Eps     float64
	Build   Builder
	Solvers []solver.Solver
	Log     *slog.Logger
	// OnCell, when set, is called after every cell, skipped ones included.
	OnCell func(CellEvent)
}

// CellEvent reports the progress of a running sweep.
type CellEvent struct {
	Key     string
	Solver  string
	Cell    CellResult
	Skipped bool
	Done    int
	Total   int
}

func (sw *Sweep) notify(e CellEvent) {
	if sw.OnCell != nil {
		sw.OnCell(e)
	}
}

func (sw *Sweep) logger() *slog.Logger {
	if sw.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return sw.Log
}

func (sw *Sweep) build(c param.Combination) (problem.Problem, error) {
	b := sw.Build
	if b == nil {
		b = ClassBuilder(sw.Class)
	}
	p, err := b(c, rand.New(rand.NewSource(sw.Seed)))
	if err != nil {
		return nil, fmt.Errorf("bench: build %s: %w", param.Key(c), err)
	}
	return p, nil
}

// Compatible builds the first combination and keeps the solvers whose
// predicate accepts it.
func (sw *Sweep) Compatible() ([]solver.Solver, error) {
	if err := sw.Axes.Validate(); err != nil {
		return nil, err
	}
	combos := sw.Axes.Combinations()
	if len(combos) == 0 {
		return nil, fmt.Errorf("bench: sweep has no parameter combinations")
	}
	p, err := sw.build(combos[0])
	if err != nil {
		return nil, err
	}
	var out []solver.Solver
	for _, s := range sw.Solvers {
		if s.Supports(p) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCompatibleSolver, p.Name())
	}
	return out, nil
}

// Run executes the sweep. A failing cell is recorded and the sweep goes
// on; construction errors and cancellation stop it and return the
// partial report.
func (sw *Sweep) Run(ctx context.Context) (*Report, error) {
	if sw.Runs < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRuns, sw.Runs)
	}
	solvers, err := sw.Compatible()
	if err != nil {
		return nil, err
	}
	log := sw.logger()

	names := make([]string, len(solvers))
	for i, s := range solvers {
		names[i] = s.Name()
	}
	rep := NewReport(Metadata{
		ProblemClass: sw.Class,
		Name:         sw.Name,
		Runs:         sw.Runs,
		Eps:          sw.Eps,
		Seed:         sw.Seed,
		Parameters:   sw.Axes,
		Solvers:      names,
	})

	combos := sw.Axes.Combinations()
	total := len(combos) * len(solvers)
	done := 0
	for _, c := range combos {
		p, err := sw.build(c)
		if err != nil {
			return rep, err
		}
		key := param.Key(c)
		for _, s := range solvers {
			done++
			if !s.Supports(p) {
				log.Info("solver skipped", "problem", p.Name(), "key", key, "solver", s.Name())
				sw.notify(CellEvent{Key: key, Solver: s.Name(), Skipped: true, Done: done, Total: total})
				continue
			}
			cell, err := Run(ctx, p, s, sw.Runs, sw.Seed)
			var ce *CellError
			switch {
			case err == nil:
				log.Info("cell done", "problem", p.Name(), "key", key, "solver", s.Name(),
					"status", "ok", "mean", cell.SolveTimes.Mean, "progress", fmt.Sprintf("%d/%d", done, total))
			case errors.As(err, &ce):
				cell.Failed = true
				cell.Stage = ce.Stage
				cell.Error = ce.Err.Error()
				log.Warn("cell failed", "problem", p.Name(), "key", key, "solver", s.Name(),
					"status", "failed", "stage", ce.Stage, "err", ce.Err)
			default:
				return rep, err
			}
			rep.Add(key, cell)
			sw.notify(CellEvent{Key: key, Solver: s.Name(), Cell: cell, Done: done, Total: total})
		}
	}
	return rep, nil
}
