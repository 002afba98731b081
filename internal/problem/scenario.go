package problem

import (
	"fmt"
	"math/rand"

	"github.com/san-kum/chainbench/internal/linalg"
	"github.com/san-kum/chainbench/internal/physics"
)

type ScenarioOptions struct {
	// Params.Spring is ignored; scenario s uses Springs(Ns)[s].
	Params        physics.Params
	Ns            int
	Bounds        Bounds
	UseRateCost   bool
	UseRateConstr bool
}

// Springs returns ns spring constants evenly spaced over [1, 2].
func Springs(ns int) []float64 {
	if ns == 1 {
		return []float64{1}
	}
	k := make([]float64, ns)
	for s := range k {
		k[s] = 1 + float64(s)/float64(ns-1)
	}
	return k
}

// ChainMassScenario is a two-stage scenario tree over Ns chains with
// different spring constants. The decision vector is
//
//	[scenario 0 | ... | scenario Ns-1 | x0 | u0]
//
// where scenario s holds (x_k, u_k) for k = 1..N-1 and x_N. The first
// stage exists once; every scenario's stage-0 dynamics row reads it.
// Private stages and terminal costs carry the weight 1/Ns.
type ChainMassScenario struct {
	opts    ScenarioOptions
	models  []*physics.ChainMass
	springs []float64
	nx, nu  int
	n, ns   int
	x0      []float64
	qp      *QP
}

func NewChainMassScenario(opts ScenarioOptions, rng *rand.Rand) (*ChainMassScenario, error) {
	if opts.Ns < 1 {
		return nil, fmt.Errorf("%w: Ns=%d", ErrDimension, opts.Ns)
	}
	if opts.Bounds == (Bounds{}) {
		opts.Bounds = DefaultBounds()
	}
	if err := opts.Bounds.Validate(); err != nil {
		return nil, err
	}
	sc := &ChainMassScenario{opts: opts, springs: Springs(opts.Ns), ns: opts.Ns}
	for s, k := range sc.springs {
		p := opts.Params
		p.Spring = k
		m, err := physics.NewChainMass(p)
		if err != nil {
			return nil, fmt.Errorf("problem: scenario %d (k=%g): %w", s, k, err)
		}
		sc.models = append(sc.models, m)
	}
	sc.nx, sc.nu, sc.n = sc.models[0].Nx, sc.models[0].Nu, sc.models[0].N
	sc.x0 = make([]float64, sc.nx)
	sc.qp = sc.build()
	if err := sc.qp.Validate(); err != nil {
		return nil, fmt.Errorf("problem: scenario qp: %w", err)
	}
	sc.RandomizeX0(rng)
	return sc, nil
}

func (sc *ChainMassScenario) Name() string                 { return "chain_mass_scenario" }
func (sc *ChainMassScenario) Shapes() Shape                { return ShapeQP }
func (sc *ChainMassScenario) X0() []float64                { return sc.x0 }
func (sc *ChainMassScenario) QP() *QP                      { return sc.qp }
func (sc *ChainMassScenario) Scenarios() int               { return sc.ns }
func (sc *ChainMassScenario) SpringConstants() []float64   { return sc.springs }
func (sc *ChainMassScenario) Models() []*physics.ChainMass { return sc.models }

// Layout helpers. stride is the size of one scenario block.
func (sc *ChainMassScenario) stride() int { return (sc.n-1)*(sc.nx+sc.nu) + sc.nx }
func (sc *ChainMassScenario) shared() int { return sc.ns * sc.stride() }
func (sc *ChainMassScenario) dim() int    { return sc.shared() + sc.nx + sc.nu }

// xAt returns the offset of x_k in scenario s, k = 0..N.
func (sc *ChainMassScenario) xAt(s, k int) int {
	if k == 0 {
		return sc.shared()
	}
	return s*sc.stride() + (k-1)*(sc.nx+sc.nu)
}

// uAt returns the offset of u_k in scenario s, k = 0..N-1.
func (sc *ChainMassScenario) uAt(s, k int) int {
	if k == 0 {
		return sc.shared() + sc.nx
	}
	return sc.xAt(s, k) + sc.nx
}

func (sc *ChainMassScenario) build() *QP {
	nx, nu, n, ns := sc.nx, sc.nu, sc.n, sc.ns
	dim := sc.dim()
	b := sc.opts.Bounds
	w := 1 / float64(ns)
	rd := sc.models[0].RDiff

	p := linalg.NewTriplet(dim, dim, ns*n*(nx*nx+4*nu*nu)+nx*nx)
	aeq := linalg.NewTriplet(ns*n*nx, dim, ns*n*(nx*nx+nx*nu+nx))

	// The shared stage is unscaled: Ns copies of weight 1/Ns.
	m0 := sc.models[0]
	p.AddDense(sc.xAt(0, 0), sc.xAt(0, 0), m0.Q, 1)
	p.AddDense(sc.uAt(0, 0), sc.uAt(0, 0), m0.R, 1)
	if sc.opts.UseRateCost {
		p.AddDense(sc.uAt(0, 0), sc.uAt(0, 0), rd, 1)
	}

	for s, m := range sc.models {
		for k := 0; k < n; k++ {
			if k > 0 {
				p.AddDense(sc.xAt(s, k), sc.xAt(s, k), m.Q, w)
				p.AddDense(sc.uAt(s, k), sc.uAt(s, k), m.R, w)
				if sc.opts.UseRateCost {
					p.AddDense(sc.uAt(s, k), sc.uAt(s, k), rd, w)
				}
			}
			if sc.opts.UseRateCost && k < n-1 {
				cur, next := sc.uAt(s, k), sc.uAt(s, k+1)
				p.AddDense(cur, next, rd, -w)
				p.AddDense(next, cur, rd, -w)
				p.AddDense(next, next, rd, w)
			}

			row := (s*n + k) * nx
			aeq.AddDense(row, sc.xAt(s, k), m.Ad, 1)
			aeq.AddDense(row, sc.uAt(s, k), m.Bd, 1)
			aeq.AddIdentity(row, sc.xAt(s, k+1), nx, -1)
		}
		p.AddDense(sc.xAt(s, n), sc.xAt(s, n), m.P, w)
	}

	q := &QP{
		P:   p.ToCSC(),
		C:   make([]float64, dim),
		Aeq: aeq.ToCSC(),
		Beq: make([]float64, ns*n*nx),
		XL:  filled(dim, -b.XMax),
		XU:  filled(dim, b.XMax),
	}

	if sc.opts.UseRateConstr && n > 1 {
		rows := ns * (n - 1) * nu
		ain := linalg.NewTriplet(rows, dim, 2*rows)
		for s := 0; s < ns; s++ {
			for k := 0; k < n-1; k++ {
				row := (s*(n-1) + k) * nu
				ain.AddIdentity(row, sc.uAt(s, k), nu, 1)
				ain.AddIdentity(row, sc.uAt(s, k+1), nu, -1)
			}
		}
		q.Aineq = ain.ToCSC()
		q.BineqL = filled(rows, -b.DUMax)
		q.BineqU = filled(rows, b.DUMax)
	}

	for s := 0; s < ns; s++ {
		for k := 0; k < n; k++ {
			u := sc.uAt(s, k)
			fill(q.XL[u:u+nu], -b.UMax)
			fill(q.XU[u:u+nu], b.UMax)
		}
	}
	return q
}

// RandomizeX0 rewrites the shared x0 slots only.
func (sc *ChainMassScenario) RandomizeX0(rng *rand.Rand) {
	x := RandomX0(rng, sc.nx)
	copy(sc.x0, x)
	off := sc.shared()
	copy(sc.qp.XL[off:off+sc.nx], x)
	copy(sc.qp.XU[off:off+sc.nx], x)
}

// RecoverQP returns one trajectory per scenario. Stage 0 of every
// trajectory is read from the shared block.
func (sc *ChainMassScenario) RecoverQP(x []float64) (Solution, error) {
	if len(x) != sc.dim() {
		return Solution{}, fmt.Errorf("%w: primal has %d entries, want %d", ErrDimension, len(x), sc.dim())
	}
	sol := Solution{Trajectories: make([]Trajectory, sc.ns)}
	for s := range sol.Trajectories {
		tr := Trajectory{X: make([][]float64, sc.n+1), U: make([][]float64, sc.n)}
		for k := 0; k <= sc.n; k++ {
			xi := sc.xAt(s, k)
			tr.X[k] = clone(x[xi : xi+sc.nx])
			if k < sc.n {
				ui := sc.uAt(s, k)
				tr.U[k] = clone(x[ui : ui+sc.nu])
			}
		}
		sol.Trajectories[s] = tr
	}
	return sol, nil
}
