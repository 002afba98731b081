package bench

import (
	"context"
	"errors"
	"math/rand"
	"time"

	g "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/chainbench/internal/param"
	"github.com/san-kum/chainbench/internal/problem"
	"github.com/san-kum/chainbench/internal/solver"
)

// fakeSolver records calls and fails on demand.
type fakeSolver struct {
	name     string
	shape    problem.Shape
	reject   func(problem.Problem) bool
	setupErr error
	solveErr error
	failOn   int

	solves int
	x0s    [][]float64
	prob   problem.Problem
}

func (f *fakeSolver) Name() string           { return f.name }
func (f *fakeSolver) Accepts() problem.Shape { return f.shape }

func (f *fakeSolver) Supports(p problem.Problem) bool {
	if !p.Shapes().Overlaps(f.shape) {
		return false
	}
	return f.reject == nil || !f.reject(p)
}

func (f *fakeSolver) Setup(p problem.Problem) error {
	f.prob = p
	return f.setupErr
}

func (f *fakeSolver) Solve() error {
	f.solves++
	f.x0s = append(f.x0s, append([]float64(nil), f.prob.X0()...))
	if f.failOn > 0 && f.solves == f.failOn {
		return f.solveErr
	}
	return nil
}

func (f *fakeSolver) Solution() (problem.Solution, error) { return problem.Solution{}, nil }

func (f *fakeSolver) Stats() solver.Stats {
	return solver.Stats{SetupTime: time.Millisecond, SolveTime: time.Duration(f.solves) * time.Microsecond, Iterations: f.solves, Variant: "generic"}
}

func axes(pairs ...any) param.Axes {
	var a param.Axes
	for i := 0; i+1 < len(pairs); i += 2 {
		a = append(a, param.Axis{Name: pairs[i].(string), Values: pairs[i+1].([]any)})
	}
	return a
}

var _ = g.Describe("Run", func() {
	var p problem.Problem

	g.BeforeEach(func() {
		var err error
		p, err = problem.Build("chain_mass_ocp", param.Combination{{Name: "M", Value: 2}, {Name: "N", Value: 4}}, rand.New(rand.NewSource(1)))
		Expect(err).NotTo(HaveOccurred())
	})

	g.It("warms up once and then solves runs times", func() {
		f := &fakeSolver{name: "fake", shape: problem.ShapeQP}
		cell, err := Run(context.Background(), p, f, 5, DefaultSeed)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.solves).To(Equal(6))
		Expect(cell.SolverName).To(Equal("fake"))
		Expect(cell.Variant).To(Equal("generic"))
		Expect(cell.SetupTime).To(BeNumerically("~", 1e-3, 1e-12))
		Expect(cell.Iterations.Samples).To(Equal([]float64{2, 3, 4, 5, 6}))
		Expect(cell.SolveTimes.Samples).To(HaveLen(5))
	})

	g.It("reproduces the x0 sequence for a seed", func() {
		a := &fakeSolver{name: "a", shape: problem.ShapeQP}
		b := &fakeSolver{name: "b", shape: problem.ShapeQP}
		_, err := Run(context.Background(), p, a, 3, 7)
		Expect(err).NotTo(HaveOccurred())
		_, err = Run(context.Background(), p, b, 3, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.x0s[1:]).To(Equal(b.x0s[1:]))

		rng := rand.New(rand.NewSource(7))
		Expect(a.x0s[1]).To(Equal(problem.RandomX0(rng, len(p.X0()))))
	})

	g.It("reports the failing stage", func() {
		boom := errors.New("boom")
		f := &fakeSolver{name: "fake", shape: problem.ShapeQP, setupErr: boom}
		_, err := Run(context.Background(), p, f, 3, 1)
		var ce *CellError
		Expect(errors.As(err, &ce)).To(BeTrue())
		Expect(ce.Stage).To(Equal(StageSetup))
		Expect(errors.Is(err, boom)).To(BeTrue())

		f = &fakeSolver{name: "fake", shape: problem.ShapeQP, solveErr: boom, failOn: 3}
		_, err = Run(context.Background(), p, f, 3, 1)
		Expect(errors.As(err, &ce)).To(BeTrue())
		Expect(ce.Stage).To(Equal(StageSolve))
	})

	g.It("stops when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		f := &fakeSolver{name: "fake", shape: problem.ShapeQP}
		_, err := Run(ctx, p, f, 3, 1)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(f.solves).To(Equal(1))
	})

	g.It("rejects non-positive runs", func() {
		_, err := Run(context.Background(), p, &fakeSolver{name: "fake", shape: problem.ShapeQP}, 0, 1)
		Expect(errors.Is(err, ErrInvalidRuns)).To(BeTrue())
	})
})

var _ = g.Describe("Sweep", func() {
	g.It("covers every combination and solver under canonical keys", func() {
		a := &fakeSolver{name: "a", shape: problem.ShapeQP}
		b := &fakeSolver{name: "b", shape: problem.ShapeOCP}
		sw := &Sweep{
			Class:   "chain_mass_ocp",
			Name:    "test",
			Axes:    axes("M", []any{2, 3}, "N", []any{4}),
			Runs:    2,
			Seed:    DefaultSeed,
			Solvers: []solver.Solver{a, b},
		}
		rep, err := sw.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Keys()).To(Equal([]string{"M2_N4", "M3_N4"}))
		Expect(rep.Results["M2_N4"]).To(HaveKey("a"))
		Expect(rep.Results["M3_N4"]).To(HaveKey("b"))
		Expect(rep.Metadata.Solvers).To(Equal([]string{"a", "b"}))
		Expect(rep.Metadata.ProblemClass).To(Equal("chain_mass_ocp"))
		Expect(rep.Metadata.Timestamp).NotTo(BeEmpty())
	})

	g.It("fails before solving when no solver fits", func() {
		f := &fakeSolver{name: "ocp_only", shape: problem.ShapeOCP}
		sw := &Sweep{
			Class:   "chain_mass_scenario",
			Axes:    axes("M", []any{2}, "N", []any{3}, "Ns", []any{2}),
			Runs:    1,
			Solvers: []solver.Solver{f},
		}
		_, err := sw.Run(context.Background())
		Expect(errors.Is(err, ErrNoCompatibleSolver)).To(BeTrue())
		Expect(f.solves).To(BeZero())
	})

	g.It("records failed cells and carries on", func() {
		bad := &fakeSolver{name: "bad", shape: problem.ShapeQP, setupErr: errors.New("rejected")}
		good := &fakeSolver{name: "good", shape: problem.ShapeQP}
		sw := &Sweep{
			Class:   "chain_mass_ocp",
			Axes:    axes("M", []any{2, 3}),
			Runs:    1,
			Solvers: []solver.Solver{bad, good},
		}
		rep, err := sw.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		for _, key := range []string{"M2", "M3"} {
			Expect(rep.Results[key]["bad"].Failed).To(BeTrue())
			Expect(rep.Results[key]["bad"].Stage).To(Equal(StageSetup))
			Expect(rep.Results[key]["bad"].Error).To(ContainSubstring("rejected"))
			Expect(rep.Results[key]["good"].Failed).To(BeFalse())
		}
	})

	g.It("skips solvers whose predicate rejects a combination", func() {
		picky := &fakeSolver{name: "picky", shape: problem.ShapeQP, reject: func(p problem.Problem) bool {
			return len(p.X0()) > 4
		}}
		sw := &Sweep{
			Class:   "chain_mass_ocp",
			Axes:    axes("M", []any{2, 3}),
			Runs:    1,
			Solvers: []solver.Solver{picky},
		}
		var events []CellEvent
		sw.OnCell = func(e CellEvent) { events = append(events, e) }
		rep, err := sw.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Results).To(HaveKey("M2"))
		Expect(rep.Results).NotTo(HaveKey("M3"))
		Expect(events).To(HaveLen(2))
		Expect(events[0].Skipped).To(BeFalse())
		Expect(events[1].Skipped).To(BeTrue())
		Expect(events[1].Key).To(Equal("M3"))
		Expect(events[1].Done).To(Equal(events[1].Total))
	})

	g.It("aborts on construction errors", func() {
		sw := &Sweep{
			Class:   "chain_mass_ocp",
			Axes:    axes("M", []any{2, 3}, "nu", []any{3}),
			Runs:    1,
			Solvers: []solver.Solver{&fakeSolver{name: "a", shape: problem.ShapeQP}},
		}
		rep, err := sw.Run(context.Background())
		Expect(err).To(HaveOccurred())
		Expect(rep).To(BeNil())

		sw.Axes = axes("M", []any{3, 1}, "nu", []any{2})
		rep, err = sw.Run(context.Background())
		Expect(err).To(HaveOccurred())
		Expect(rep.Results).To(HaveKey("M3_nu2"))
	})

	g.It("runs the real solvers end to end", func() {
		solvers, err := solver.Build([]string{"riccati", "ipm_sparse", "lsei"}, solver.Options{Eps: 1e-8})
		Expect(err).NotTo(HaveOccurred())
		sw := &Sweep{
			Class:   "chain_mass_ocp",
			Axes:    axes("M", []any{2}, "N", []any{5}, "use_u_diff_cost", []any{true}),
			Runs:    3,
			Seed:    DefaultSeed,
			Solvers: solvers,
		}
		rep, err := sw.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		cells := rep.Results["M2_N5_use_u_diff_costTrue"]
		Expect(cells).To(HaveLen(3))
		for name, cell := range cells {
			Expect(cell.Failed).To(BeFalse(), name)
			Expect(cell.Iterations.Samples).To(HaveLen(3))
			Expect(cell.SolveTimes.Min).To(BeNumerically("<=", cell.SolveTimes.Max))
		}
	})
})
