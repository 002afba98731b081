package problem

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/chainbench/internal/param"
	"github.com/san-kum/chainbench/internal/physics"
)

func newOCP(t *testing.T, m, n int, cost, constr bool) *ChainMassOCP {
	t.Helper()
	p, err := NewChainMassOCP(OCPOptions{
		Params:        physics.DefaultParams(m, n),
		UseRateCost:   cost,
		UseRateConstr: constr,
	}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return p
}

func TestChainMassOCPDimensions(t *testing.T) {
	tests := []struct {
		name         string
		cost, constr bool
		ocpNx, ng    int
		ineq         int
	}{
		{"base", false, false, 10, 0, 0},
		{"rate cost", true, false, 14, 0, 0},
		{"rate constraint", false, true, 14, 4, 36},
		{"both", true, true, 14, 4, 36},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			p := newOCP(t, 5, 10, tt.cost, tt.constr)
			o, q := p.OCP(), p.QP()

			g.Expect(o.Nx).To(Equal(tt.ocpNx))
			g.Expect(o.Nu).To(Equal(4))
			g.Expect(o.Nbx()).To(Equal(10))
			g.Expect(o.Ng()).To(Equal(tt.ng))
			g.Expect(o.Validate()).To(Succeed())

			g.Expect(q.Dim()).To(Equal(10*(10+4) + 10))
			g.Expect(q.NumEq()).To(Equal(100))
			g.Expect(q.NumIneq()).To(Equal(tt.ineq))
			g.Expect(q.Validate()).To(Succeed())
			g.Expect(p.Shapes().Has(ShapeOCP | ShapeQP)).To(BeTrue())
		})
	}
}

func TestInitialStatePinned(t *testing.T) {
	g := NewWithT(t)
	p := newOCP(t, 4, 6, false, false)
	q := p.QP()
	x0 := p.X0()
	g.Expect(x0).To(HaveLen(8))
	g.Expect(q.XL[:8]).To(Equal(x0))
	g.Expect(q.XU[:8]).To(Equal(x0))
	g.Expect(p.OCP().X0).To(Equal(x0))
	for _, v := range x0 {
		g.Expect(math.Abs(v)).To(BeNumerically("<=", 1.5))
	}
}

func TestRandomizeTouchesOnlyInitialState(t *testing.T) {
	g := NewWithT(t)
	p := newOCP(t, 4, 6, true, true)
	q := p.QP()
	xl := append([]float64(nil), q.XL...)
	xu := append([]float64(nil), q.XU...)
	before := append([]float64(nil), p.X0()...)

	p.RandomizeX0(rand.New(rand.NewSource(42)))

	g.Expect(p.X0()).NotTo(Equal(before))
	g.Expect(q.XL[8:]).To(Equal(xl[8:]))
	g.Expect(q.XU[8:]).To(Equal(xu[8:]))
	g.Expect(q.XL[:8]).To(Equal(p.X0()))
	g.Expect(p.OCP().X0).To(Equal(p.X0()))
}

func TestRandomX0Reproducible(t *testing.T) {
	a := RandomX0(rand.New(rand.NewSource(7)), 6)
	b := RandomX0(rand.New(rand.NewSource(7)), 6)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw %d differs: %v vs %v", i, a[i], b[i])
		}
	}

	rng := rand.New(rand.NewSource(7))
	radius := 0.5 + rng.Float64()
	first := -radius + 2*radius*rng.Float64()
	if a[0] != first {
		t.Errorf("expected radius first, then components: got %v want %v", a[0], first)
	}
}

func TestRateCostBlocks(t *testing.T) {
	g := NewWithT(t)
	p := newOCP(t, 3, 5, true, false)
	q := p.QP()
	nx, blk := 6, 8
	u := func(k int) int { return k*blk + nx }

	g.Expect(q.P.At(u(0), u(0))).To(BeNumerically("~", 0.2, 1e-15))
	g.Expect(q.P.At(u(1), u(1))).To(BeNumerically("~", 0.3, 1e-15))
	g.Expect(q.P.At(u(4), u(4))).To(BeNumerically("~", 0.3, 1e-15))
	g.Expect(q.P.At(u(0), u(1))).To(BeNumerically("~", -0.1, 1e-15))
	g.Expect(q.P.At(u(1), u(0))).To(BeNumerically("~", -0.1, 1e-15))
	g.Expect(q.P.At(u(0), u(2))).To(BeZero())

	o := p.OCP()
	g.Expect(o.R.At(0, 0)).To(BeNumerically("~", 0.2, 1e-15))
	g.Expect(o.S.At(0, nx)).To(BeNumerically("~", -0.1, 1e-15))
	g.Expect(o.Q.At(nx, nx)).To(BeNumerically("~", 0.1, 1e-15))
	g.Expect(o.QN.At(nx, nx)).To(BeNumerically("~", 0.1, 1e-15))
}

func TestRateConstraintRows(t *testing.T) {
	g := NewWithT(t)
	p := newOCP(t, 3, 4, false, true)
	q := p.QP()
	nx, blk := 6, 8

	g.Expect(q.NumIneq()).To(Equal(3 * 2))
	g.Expect(q.Aineq.At(0, nx)).To(Equal(1.0))
	g.Expect(q.Aineq.At(0, blk+nx)).To(Equal(-1.0))
	g.Expect(q.BineqL).To(HaveEach(-physics.DUMax))
	g.Expect(q.BineqU).To(HaveEach(physics.DUMax))

	o := p.OCP()
	g.Expect(o.C.At(0, nx)).To(Equal(-1.0))
	g.Expect(o.D.At(0, 0)).To(Equal(1.0))
}

func TestPrimalGuessSatisfiesDynamics(t *testing.T) {
	g := NewWithT(t)
	p := newOCP(t, 4, 8, false, false)
	q := p.QP()
	z := p.PrimalGuess()

	r := make([]float64, q.NumEq())
	q.Aeq.MulVec(r, z)
	for i, v := range r {
		g.Expect(math.Abs(v-q.Beq[i])).To(BeNumerically("<", 1e-12), "row %d", i)
	}

	sol, err := p.RecoverQP(z)
	g.Expect(err).NotTo(HaveOccurred())
	tr := sol.Trajectories[0]
	g.Expect(tr.X).To(HaveLen(9))
	g.Expect(tr.U).To(HaveLen(8))
	g.Expect(tr.X[0]).To(Equal(p.X0()))
	for _, u := range tr.U {
		g.Expect(u).To(HaveEach(0.0))
	}
}

func TestRecoverOCPStripsAuxiliaryState(t *testing.T) {
	g := NewWithT(t)
	p := newOCP(t, 2, 3, true, false)
	xs := make([][]float64, 4)
	us := make([][]float64, 3)
	for k := range xs {
		xs[k] = []float64{1, 2, 3, 4, 9}
	}
	for k := range us {
		us[k] = []float64{float64(k)}
	}
	sol, err := p.RecoverOCP(xs, us)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(sol.Trajectories[0].X[2]).To(Equal([]float64{1, 2, 3, 4}))
	g.Expect(sol.Trajectories[0].U[2]).To(Equal([]float64{2}))

	_, err = p.RecoverOCP(xs[:2], us)
	g.Expect(errors.Is(err, ErrDimension)).To(BeTrue())
}

func TestBoundsValidate(t *testing.T) {
	if err := DefaultBounds().Validate(); err != nil {
		t.Fatalf("default bounds rejected: %v", err)
	}
	bad := []Bounds{
		{XMax: 4, UMax: 0.5, DUMax: 2},
		{XMax: 0, UMax: 0.5, DUMax: 0.1},
		{XMax: 4, UMax: -1, DUMax: 0.1},
	}
	for _, b := range bad {
		if err := b.Validate(); !errors.Is(err, ErrBounds) {
			t.Errorf("%+v: expected ErrBounds, got %v", b, err)
		}
	}
}

func TestSprings(t *testing.T) {
	g := NewWithT(t)
	g.Expect(Springs(1)).To(Equal([]float64{1}))
	g.Expect(Springs(3)).To(Equal([]float64{1, 1.5, 2}))
	g.Expect(Springs(5)).To(HaveLen(5))
}

func newScenario(t *testing.T, ns int, cost, constr bool) *ChainMassScenario {
	t.Helper()
	sc, err := NewChainMassScenario(ScenarioOptions{
		Params:        physics.DefaultParams(3, 4),
		Ns:            ns,
		UseRateCost:   cost,
		UseRateConstr: constr,
	}, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return sc
}

func TestScenarioLayout(t *testing.T) {
	g := NewWithT(t)
	sc := newScenario(t, 3, true, true)
	q := sc.QP()
	nx, nu := 6, 2
	stride := 3*(nx+nu) + nx

	g.Expect(q.Dim()).To(Equal(nx + nu + 3*stride))
	g.Expect(q.NumEq()).To(Equal(3 * 4 * nx))
	g.Expect(q.NumIneq()).To(Equal(3 * 3 * nu))
	g.Expect(sc.Shapes()).To(Equal(ShapeQP))
	g.Expect(sc.xAt(2, 0)).To(Equal(3 * stride))
	g.Expect(sc.uAt(1, 0)).To(Equal(3*stride + nx))
	g.Expect(sc.xAt(1, 1)).To(Equal(stride))
	g.Expect(sc.xAt(1, 4)).To(Equal(stride + 3*(nx+nu)))

	shared := sc.xAt(0, 0)
	g.Expect(q.XL[shared : shared+nx]).To(Equal(sc.X0()))
	g.Expect(q.XU[shared : shared+nx]).To(Equal(sc.X0()))
}

func TestScenarioSharesFirstStage(t *testing.T) {
	g := NewWithT(t)
	sc := newScenario(t, 3, false, false)
	q := sc.QP()
	nx := 6
	shared := sc.xAt(0, 0)

	// Every scenario's first dynamics block reads the shared x0.
	for s, m := range sc.Models() {
		row := s * 4 * nx
		for i := 0; i < nx; i++ {
			for j := 0; j < nx; j++ {
				g.Expect(q.Aeq.At(row+i, shared+j)).To(Equal(m.Ad.At(i, j)))
			}
		}
	}

	// Shared stage unscaled, private stages and terminal weighted 1/Ns.
	g.Expect(q.P.At(shared, shared)).To(BeNumerically("~", physics.StateWeight, 1e-9))
	x1 := sc.xAt(1, 1)
	g.Expect(q.P.At(x1, x1)).To(BeNumerically("~", physics.StateWeight/3, 1e-9))
	xn := sc.xAt(2, 4)
	g.Expect(q.P.At(xn, xn)).To(BeNumerically("~", sc.Models()[2].P.At(0, 0)/3, 1e-9))

	x := make([]float64, q.Dim())
	for i := range x {
		x[i] = float64(i)
	}
	sol, err := sc.RecoverQP(x)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(sol.Trajectories).To(HaveLen(3))
	for _, tr := range sol.Trajectories[1:] {
		g.Expect(tr.X[0]).To(Equal(sol.Trajectories[0].X[0]))
		g.Expect(tr.U[0]).To(Equal(sol.Trajectories[0].U[0]))
	}
	g.Expect(sol.Trajectories[1].X[1][0]).To(Equal(float64(sc.xAt(1, 1))))
}

func TestScenarioRandomizeTouchesOnlySharedState(t *testing.T) {
	g := NewWithT(t)
	sc := newScenario(t, 2, false, false)
	q := sc.QP()
	xl := append([]float64(nil), q.XL...)
	shared := sc.xAt(0, 0)

	sc.RandomizeX0(rand.New(rand.NewSource(99)))

	for i := range xl {
		if i >= shared && i < shared+6 {
			continue
		}
		g.Expect(q.XL[i]).To(Equal(xl[i]), "slot %d", i)
	}
	g.Expect(q.XL[shared : shared+6]).To(Equal(sc.X0()))
}

func TestRegistryScenarioRateCost(t *testing.T) {
	g := NewWithT(t)
	combo := param.Combination{{Name: "M", Value: 2}, {Name: "Ns", Value: 1}, {Name: "N", Value: 15}}

	p, err := Build("chain_mass_scenario", combo, rand.New(rand.NewSource(1)))
	g.Expect(err).NotTo(HaveOccurred())
	sc := p.(*ChainMassScenario)
	u0, u1 := sc.uAt(0, 0), sc.uAt(0, 1)
	q := sc.QP()
	g.Expect(q.P.At(u0, u0)).To(BeNumerically("~", physics.InputWeight+physics.RateWeight, 1e-12))
	g.Expect(q.P.At(u1, u0)).To(BeNumerically("~", -physics.RateWeight, 1e-12))
	g.Expect(q.P.At(u0, u1)).To(BeNumerically("~", -physics.RateWeight, 1e-12))

	off := append(param.Combination{}, combo...)
	off = append(off, param.Param{Name: "use_u_diff_cost", Value: false})
	p, err = Build("chain_mass_scenario", off, rand.New(rand.NewSource(1)))
	g.Expect(err).NotTo(HaveOccurred())
	q = p.(*ChainMassScenario).QP()
	g.Expect(q.P.At(u0, u0)).To(BeNumerically("~", physics.InputWeight, 1e-12))
	g.Expect(q.P.At(u1, u0)).To(BeZero())

	// Weighted by 1/Ns once there is more than one scenario.
	p, err = Build("chain_mass_scenario", param.Combination{{Name: "M", Value: 2}, {Name: "Ns", Value: 4}, {Name: "N", Value: 5}}, rand.New(rand.NewSource(1)))
	g.Expect(err).NotTo(HaveOccurred())
	sc = p.(*ChainMassScenario)
	for s := 0; s < 4; s++ {
		g.Expect(sc.QP().P.At(sc.uAt(s, 1), sc.uAt(s, 0))).To(BeNumerically("~", -physics.RateWeight/4, 1e-12))
	}
}

func TestRegistry(t *testing.T) {
	g := NewWithT(t)
	rng := rand.New(rand.NewSource(5))

	p, err := Build("chain_mass_ocp", param.Combination{{Name: "M", Value: 3}, {Name: "N", Value: 5}}, rng)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(p.Name()).To(Equal("chain_mass_ocp"))
	g.Expect(p.X0()).To(HaveLen(6))

	p, err = Build("chain_mass_scenario", param.Combination{{Name: "M", Value: 2}, {Name: "Ns", Value: 2}, {Name: "N", Value: 3}}, rng)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(p.Shapes()).To(Equal(ShapeQP))

	_, err = Build("pendulum", nil, rng)
	g.Expect(errors.Is(err, ErrUnknownProblem)).To(BeTrue())

	_, err = Build("chain_mass_ocp", param.Combination{{Name: "Ns", Value: 3}}, rng)
	g.Expect(errors.Is(err, ErrUnknownParameter)).To(BeTrue())

	_, err = Build("chain_mass_ocp", param.Combination{{Name: "M", Value: 3}, {Name: "nu", Value: 5}}, rng)
	g.Expect(errors.Is(err, physics.ErrInvalidInputDim)).To(BeTrue())

	g.Expect(Classes()).To(Equal([]string{"chain_mass_ocp", "chain_mass_scenario"}))
}
