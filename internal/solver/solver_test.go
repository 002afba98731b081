package solver

import (
	"errors"
	"math/rand"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/chainbench/internal/physics"
	"github.com/san-kum/chainbench/internal/problem"
)

func chainOCP(t *testing.T, m, n int, cost, constr bool) *problem.ChainMassOCP {
	t.Helper()
	p, err := problem.NewChainMassOCP(problem.OCPOptions{
		Params:        physics.DefaultParams(m, n),
		UseRateCost:   cost,
		UseRateConstr: constr,
	}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("build problem: %v", err)
	}
	return p
}

func solve(t *testing.T, s Solver, p problem.Problem) problem.Trajectory {
	t.Helper()
	if err := s.Setup(p); err != nil {
		t.Fatalf("%s setup: %v", s.Name(), err)
	}
	if err := s.Solve(); err != nil {
		t.Fatalf("%s solve: %v", s.Name(), err)
	}
	sol, err := s.Solution()
	if err != nil {
		t.Fatalf("%s solution: %v", s.Name(), err)
	}
	if len(sol.Trajectories) != 1 {
		t.Fatalf("%s: expected one trajectory, got %d", s.Name(), len(sol.Trajectories))
	}
	return sol.Trajectories[0]
}

func expectSameTrajectory(g *WithT, a, b problem.Trajectory, tol float64) {
	g.Expect(a.X).To(HaveLen(len(b.X)))
	g.Expect(a.U).To(HaveLen(len(b.U)))
	for k := range a.X {
		for i := range a.X[k] {
			g.Expect(a.X[k][i]).To(BeNumerically("~", b.X[k][i], tol), "x[%d][%d]", k, i)
		}
	}
	for k := range a.U {
		for i := range a.U[k] {
			g.Expect(a.U[k][i]).To(BeNumerically("~", b.U[k][i], tol), "u[%d][%d]", k, i)
		}
	}
}

func TestOCPAndQPAgree(t *testing.T) {
	tests := []struct {
		name         string
		cost, constr bool
		tol          float64
	}{
		{"base", false, false, 1e-5},
		{"rate cost", true, false, 1e-3},
		{"rate constraint", false, true, 1e-3},
		{"rate cost and constraint", true, true, 1e-3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			p := chainOCP(t, 5, 10, tt.cost, tt.constr)
			opts := Options{Eps: 1e-9}
			ocp := solve(t, NewRiccati(opts), p)
			qp := solve(t, NewIPM(opts), p)
			g.Expect(ocp.X).To(HaveLen(11))
			g.Expect(ocp.X[0]).To(HaveLen(10))
			g.Expect(ocp.U[0]).To(HaveLen(4))
			expectSameTrajectory(g, ocp, qp, tt.tol)
		})
	}
}

func TestSolversAgree(t *testing.T) {
	g := NewWithT(t)
	p := chainOCP(t, 3, 8, true, true)
	ref := solve(t, NewIPM(Options{Eps: 1e-9}), p)

	others := []Solver{
		NewRiccati(Options{Eps: 1e-9}),
		NewADMM(Options{Eps: 1e-8, MaxIter: 100000}),
		NewLSEI(Options{}),
	}
	for _, s := range others {
		expectSameTrajectory(g, solve(t, s, p), ref, 1e-3)
	}
}

func TestResolveAfterRandomize(t *testing.T) {
	g := NewWithT(t)
	p := chainOCP(t, 3, 6, false, false)
	s := NewIPM(Options{Eps: 1e-9})
	first := solve(t, s, p)

	p.RandomizeX0(rand.New(rand.NewSource(42)))
	g.Expect(s.Solve()).To(Succeed())
	sol, err := s.Solution()
	g.Expect(err).NotTo(HaveOccurred())
	second := sol.Trajectories[0]

	for i, v := range p.X0() {
		g.Expect(second.X[0][i]).To(BeNumerically("~", v, 1e-8))
	}
	g.Expect(second.X[0]).NotTo(Equal(first.X[0]))
}

func TestWarmStartSameSolution(t *testing.T) {
	g := NewWithT(t)
	p := chainOCP(t, 3, 6, false, false)
	cold := solve(t, NewIPM(Options{Eps: 1e-9}), p)
	warm := solve(t, NewIPM(Options{Eps: 1e-9, WarmStart: true}), p)
	expectSameTrajectory(g, warm, cold, 1e-6)
}

func TestScenarioSharesFirstStage(t *testing.T) {
	g := NewWithT(t)
	sc, err := problem.NewChainMassScenario(problem.ScenarioOptions{
		Params: physics.DefaultParams(3, 6),
		Ns:     3,
	}, rand.New(rand.NewSource(7)))
	g.Expect(err).NotTo(HaveOccurred())

	s := NewIPM(Options{Eps: 1e-9})
	g.Expect(s.Setup(sc)).To(Succeed())
	g.Expect(s.Solve()).To(Succeed())
	sol, err := s.Solution()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(sol.Trajectories).To(HaveLen(3))
	for _, tr := range sol.Trajectories[1:] {
		g.Expect(tr.X[0]).To(Equal(sol.Trajectories[0].X[0]))
		g.Expect(tr.U[0]).To(Equal(sol.Trajectories[0].U[0]))
	}
	for i, v := range sc.X0() {
		g.Expect(sol.Trajectories[0].X[0][i]).To(BeNumerically("~", v, 1e-8))
	}
}

func solveScenario(t *testing.T, s Solver, p problem.Problem) []problem.Trajectory {
	t.Helper()
	if err := s.Setup(p); err != nil {
		t.Fatalf("%s setup: %v", s.Name(), err)
	}
	if err := s.Solve(); err != nil {
		t.Fatalf("%s solve: %v", s.Name(), err)
	}
	sol, err := s.Solution()
	if err != nil {
		t.Fatalf("%s solution: %v", s.Name(), err)
	}
	return sol.Trajectories
}

func TestScenarioSolversAgree(t *testing.T) {
	tests := []struct {
		name         string
		cost, constr bool
	}{
		{"base", false, false},
		{"rate cost", true, false},
		{"rate cost and constraint", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			sc, err := problem.NewChainMassScenario(problem.ScenarioOptions{
				Params:        physics.DefaultParams(3, 6),
				Ns:            3,
				UseRateCost:   tt.cost,
				UseRateConstr: tt.constr,
			}, rand.New(rand.NewSource(11)))
			g.Expect(err).NotTo(HaveOccurred())

			ref := solveScenario(t, NewIPM(Options{Eps: 1e-9}), sc)
			g.Expect(ref).To(HaveLen(3))

			others := []Solver{
				NewADMM(Options{Eps: 1e-8, MaxIter: 100000}),
				NewLSEI(Options{}),
			}
			for _, isa := range ISAVariants() {
				s, err := New("ipm_"+isa, Options{Eps: 1e-9})
				g.Expect(err).NotTo(HaveOccurred())
				others = append(others, s)
			}
			for _, s := range others {
				g.Expect(s.Supports(sc)).To(BeTrue(), s.Name())
				got := solveScenario(t, s, sc)
				g.Expect(got).To(HaveLen(len(ref)), s.Name())
				for i := range ref {
					expectSameTrajectory(g, got[i], ref[i], 1e-3)
				}
			}
		})
	}
}

func TestRiccatiRejectsScenario(t *testing.T) {
	sc, err := problem.NewChainMassScenario(problem.ScenarioOptions{
		Params: physics.DefaultParams(2, 4),
		Ns:     2,
	}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	r := NewRiccati(Options{})
	if r.Supports(sc) {
		t.Error("riccati should not support a scenario problem")
	}
	if err := r.Setup(sc); !errors.Is(err, ErrUnsupportedShape) {
		t.Errorf("expected ErrUnsupportedShape, got %v", err)
	}
}

func TestLSEIDimensionCap(t *testing.T) {
	small := chainOCP(t, 3, 6, false, false)
	large := chainOCP(t, 10, 60, false, false)
	s := NewLSEI(Options{})
	if !s.Supports(small) {
		t.Error("lsei should support a small problem")
	}
	if s.Supports(large) {
		t.Errorf("lsei should reject dim %d", large.QP().Dim())
	}
	if err := s.Setup(large); !errors.Is(err, ErrUnsupportedShape) {
		t.Errorf("expected ErrUnsupportedShape, got %v", err)
	}
}

func TestSolveBeforeSetup(t *testing.T) {
	for _, name := range Names() {
		s, err := New(name, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Solve(); !errors.Is(err, ErrNotSetUp) {
			t.Errorf("%s: expected ErrNotSetUp, got %v", name, err)
		}
		if _, err := s.Solution(); !errors.Is(err, ErrNoSolution) {
			t.Errorf("%s: expected ErrNoSolution, got %v", name, err)
		}
	}
}

func TestFailedSetupDetachesPreviousProblem(t *testing.T) {
	small := chainOCP(t, 2, 4, false, false)
	sc, err := problem.NewChainMassScenario(problem.ScenarioOptions{
		Params: physics.DefaultParams(2, 4),
		Ns:     2,
	}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		solver Solver
		next   problem.Problem
	}{
		{NewRiccati(Options{}), sc},
		{NewLSEI(Options{}), chainOCP(t, 10, 60, false, false)},
	}
	for _, tt := range tests {
		solve(t, tt.solver, small)
		if err := tt.solver.Setup(tt.next); !errors.Is(err, ErrUnsupportedShape) {
			t.Fatalf("%s: expected ErrUnsupportedShape, got %v", tt.solver.Name(), err)
		}
		if err := tt.solver.Solve(); !errors.Is(err, ErrNotSetUp) {
			t.Errorf("%s: solve after failed setup: expected ErrNotSetUp, got %v", tt.solver.Name(), err)
		}
		if _, err := tt.solver.Solution(); !errors.Is(err, ErrNoSolution) {
			t.Errorf("%s: expected ErrNoSolution, got %v", tt.solver.Name(), err)
		}
	}
}

func TestNotConverged(t *testing.T) {
	p := chainOCP(t, 3, 6, false, false)
	s := NewADMM(Options{Eps: 1e-12, MaxIter: 10})
	if err := s.Setup(p); err != nil {
		t.Fatal(err)
	}
	if err := s.Solve(); !errors.Is(err, ErrNotConverged) {
		t.Fatalf("expected ErrNotConverged, got %v", err)
	}
	if s.Stats().Iterations != 10 {
		t.Errorf("expected 10 iterations, got %d", s.Stats().Iterations)
	}
}

func TestISAVariant(t *testing.T) {
	g := NewWithT(t)
	g.Expect(ResolveISA(ISAGeneric)).To(Equal(ISAGeneric))
	g.Expect(ResolveISA("neon-but-not-here")).To(Equal(ISAGeneric))

	for _, isa := range ISAVariants() {
		s, err := New("ipm_"+isa, Options{})
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(s.Name()).To(Equal("ipm_" + isa))
		want := ISAGeneric
		if ISAAvailable(isa) {
			want = isa
		}
		g.Expect(s.Stats().Variant).To(Equal(want))
	}

	s, err := New("ipm_sparse", Options{ISA: ISAAVX2})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s.Name()).To(Equal("ipm_sparse"))
	g.Expect(s.Stats().Variant).To(Equal(ISAGeneric))
}

func TestRegistry(t *testing.T) {
	g := NewWithT(t)
	g.Expect(Names()).To(ContainElements("riccati", "ipm_sparse", "ipm_avx2", "admm", "lsei"))
	g.Expect(DefaultNames()).To(HaveExactElements(append(append([]string{"riccati", "ipm_sparse"}, prefixed(ISAVariants())...), "admm", "lsei")))

	_, err := New("osqp", Options{})
	g.Expect(errors.Is(err, ErrUnknownSolver)).To(BeTrue())

	got, err := Filter(DefaultNames(), []string{"ipm_*", "lsei"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got).To(ContainElements("ipm_sparse", "lsei"))
	g.Expect(got).NotTo(ContainElement("riccati"))

	all, err := Filter(DefaultNames(), nil)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(all).To(Equal(DefaultNames()))

	_, err = Filter(DefaultNames(), []string{"["})
	g.Expect(err).To(HaveOccurred())

	solvers, err := Build([]string{"riccati", "lsei"}, Options{})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(solvers).To(HaveLen(2))
	g.Expect(solvers[0].Accepts()).To(Equal(problem.ShapeOCP))
	g.Expect(solvers[1].Accepts()).To(Equal(problem.ShapeQP))
}

func prefixed(isas []string) []string {
	out := make([]string, len(isas))
	for i, isa := range isas {
		out[i] = "ipm_" + isa
	}
	return out
}
