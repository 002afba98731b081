package problem

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/chainbench/internal/linalg"
	"github.com/san-kum/chainbench/internal/physics"
)

// Bounds are the symmetric box limits shared by every builder.
type Bounds struct {
	XMax, UMax, DUMax float64
}

func DefaultBounds() Bounds {
	return Bounds{XMax: physics.XMax, UMax: physics.UMax, DUMax: physics.DUMax}
}

// Validate requires positive limits and a rate limit that can bind,
// i.e. DUMax <= 2 UMax.
func (b Bounds) Validate() error {
	if b.XMax <= 0 || b.UMax <= 0 || b.DUMax <= 0 {
		return fmt.Errorf("%w: limits must be positive (x=%g u=%g du=%g)", ErrBounds, b.XMax, b.UMax, b.DUMax)
	}
	if b.DUMax > 2*b.UMax {
		return fmt.Errorf("%w: rate limit %g exceeds input range %g", ErrBounds, b.DUMax, 2*b.UMax)
	}
	return nil
}

type OCPOptions struct {
	Params        physics.Params
	Bounds        Bounds
	UseRateCost   bool
	UseRateConstr bool
}

func (o OCPOptions) augmented() bool { return o.UseRateCost || o.UseRateConstr }

// ChainMassOCP is one chain-of-masses instance offering both the dense
// OCP and the condensed QP. With rate cost or rate constraint the OCP
// state is augmented by the previous input; the QP keeps physical states
// and expresses the same terms between consecutive inputs.
type ChainMassOCP struct {
	opts  OCPOptions
	model *physics.ChainMass
	x0    []float64
	ocp   *OCP
	qp    *QP
}

// NewChainMassOCP builds the model and both representations, then draws
// the first initial state from rng.
func NewChainMassOCP(opts OCPOptions, rng *rand.Rand) (*ChainMassOCP, error) {
	if opts.Bounds == (Bounds{}) {
		opts.Bounds = DefaultBounds()
	}
	if err := opts.Bounds.Validate(); err != nil {
		return nil, err
	}
	model, err := physics.NewChainMass(opts.Params)
	if err != nil {
		return nil, err
	}
	c := &ChainMassOCP{opts: opts, model: model, x0: make([]float64, model.Nx)}
	c.ocp = c.buildOCP()
	c.qp = c.buildQP()
	if err := c.ocp.Validate(); err != nil {
		return nil, fmt.Errorf("problem: ocp: %w", err)
	}
	if err := c.qp.Validate(); err != nil {
		return nil, fmt.Errorf("problem: qp: %w", err)
	}
	c.RandomizeX0(rng)
	return c, nil
}

func (c *ChainMassOCP) Name() string              { return "chain_mass_ocp" }
func (c *ChainMassOCP) Shapes() Shape             { return ShapeOCP | ShapeQP }
func (c *ChainMassOCP) X0() []float64             { return c.x0 }
func (c *ChainMassOCP) OCP() *OCP                 { return c.ocp }
func (c *ChainMassOCP) QP() *QP                   { return c.qp }
func (c *ChainMassOCP) Model() *physics.ChainMass { return c.model }
func (c *ChainMassOCP) Options() OCPOptions       { return c.opts }

func (c *ChainMassOCP) RandomizeX0(rng *rand.Rand) {
	c.setX0(RandomX0(rng, c.model.Nx))
}

// SetX0 replaces the initial state, for closed-loop use.
func (c *ChainMassOCP) SetX0(x []float64) error {
	if len(x) != c.model.Nx {
		return fmt.Errorf("%w: x0 has %d entries, want %d", ErrDimension, len(x), c.model.Nx)
	}
	c.setX0(x)
	return nil
}

func (c *ChainMassOCP) setX0(x []float64) {
	copy(c.x0, x)
	copy(c.ocp.X0, x)
	copy(c.qp.XL[:len(x)], x)
	copy(c.qp.XU[:len(x)], x)
}

func (c *ChainMassOCP) buildOCP() *OCP {
	m := c.model
	nx, nu := m.Nx, m.Nu
	b := c.opts.Bounds
	o := &OCP{
		N:  m.N,
		Nu: nu,
		X0: make([]float64, nx),
		XL: filled(nx, -b.XMax),
		XU: filled(nx, b.XMax),
		UL: filled(nu, -b.UMax),
		UU: filled(nu, b.UMax),
	}

	if !c.opts.augmented() {
		o.Nx = nx
		o.A = mat.DenseCopyOf(m.Ad)
		o.B = mat.DenseCopyOf(m.Bd)
		o.Q = mat.DenseCopyOf(m.Q)
		o.R = mat.DenseCopyOf(m.R)
		o.S = mat.NewDense(nu, nx, nil)
		o.QN = mat.DenseCopyOf(m.P)
		return o
	}

	na := nx + nu
	o.Nx = na
	o.A = mat.NewDense(na, na, nil)
	o.A.Slice(0, nx, 0, nx).(*mat.Dense).Copy(m.Ad)
	o.B = mat.NewDense(na, nu, nil)
	o.B.Slice(0, nx, 0, nu).(*mat.Dense).Copy(m.Bd)
	o.B.Slice(nx, na, 0, nu).(*mat.Dense).Copy(eye(nu))

	o.Q = mat.NewDense(na, na, nil)
	o.Q.Slice(0, nx, 0, nx).(*mat.Dense).Copy(m.Q)
	o.QN = mat.NewDense(na, na, nil)
	o.QN.Slice(0, nx, 0, nx).(*mat.Dense).Copy(m.P)
	o.R = mat.DenseCopyOf(m.R)
	o.S = mat.NewDense(nu, na, nil)
	if c.opts.UseRateCost {
		// ½(u - u_prev)ᵀRd(u - u_prev) split into Q, R and S.
		o.Q.Slice(nx, na, nx, na).(*mat.Dense).Copy(m.RDiff)
		o.QN.Slice(nx, na, nx, na).(*mat.Dense).Copy(m.RDiff)
		o.R.Add(o.R, m.RDiff)
		o.S.Slice(0, nu, nx, na).(*mat.Dense).Scale(-1, m.RDiff)
	}

	if c.opts.UseRateConstr {
		o.C = mat.NewDense(nu, na, nil)
		o.C.Slice(0, nu, nx, na).(*mat.Dense).Scale(-1, eye(nu))
		o.D = eye(nu)
		o.GL = filled(nu, -b.DUMax)
		o.GU = filled(nu, b.DUMax)
	}
	return o
}

// blk is the size of one (x_k, u_k) stage block of the QP.
func (c *ChainMassOCP) blk() int { return c.model.Nx + c.model.Nu }

// buildQP stacks (x_0, u_0, ..., x_{N-1}, u_{N-1}, x_N) into one QP.
// With the rate cost the objective gains u_0ᵀ Rd u_0 plus
// Σ (u_i - u_{i+1})ᵀ Rd (u_i - u_{i+1}), so u_0 carries R+Rd and
// u_1..u_{N-1} carry R+2Rd on the diagonal. This is the same cost the
// augmented OCP expresses through its stored previous input.
func (c *ChainMassOCP) buildQP() *QP {
	m := c.model
	nx, nu, n := m.Nx, m.Nu, m.N
	blk := c.blk()
	dim := n*blk + nx
	b := c.opts.Bounds

	p := linalg.NewTriplet(dim, dim, n*(nx*nx+4*nu*nu)+nx*nx)
	aeq := linalg.NewTriplet(n*nx, dim, n*(nx*nx+nx*nu+nx))
	for i := 0; i < n; i++ {
		xi, ui := i*blk, i*blk+nx
		p.AddDense(xi, xi, m.Q, 1)
		p.AddDense(ui, ui, m.R, 1)
		if c.opts.UseRateCost {
			p.AddDense(ui, ui, m.RDiff, 1)
			if i < n-1 {
				next := ui + blk
				p.AddDense(ui, next, m.RDiff, -1)
				p.AddDense(next, ui, m.RDiff, -1)
				p.AddDense(next, next, m.RDiff, 1)
			}
		}

		row := i * nx
		aeq.AddDense(row, xi, m.Ad, 1)
		aeq.AddDense(row, ui, m.Bd, 1)
		aeq.AddIdentity(row, xi+blk, nx, -1)
	}
	p.AddDense(n*blk, n*blk, m.P, 1)

	q := &QP{
		P:   p.ToCSC(),
		C:   make([]float64, dim),
		Aeq: aeq.ToCSC(),
		Beq: make([]float64, n*nx),
		XL:  make([]float64, dim),
		XU:  make([]float64, dim),
	}

	if c.opts.UseRateConstr && n > 1 {
		rows := (n - 1) * nu
		ain := linalg.NewTriplet(rows, dim, 2*rows)
		for i := 0; i < n-1; i++ {
			ui := i*blk + nx
			ain.AddIdentity(i*nu, ui, nu, 1)
			ain.AddIdentity(i*nu, ui+blk, nu, -1)
		}
		q.Aineq = ain.ToCSC()
		q.BineqL = filled(rows, -b.DUMax)
		q.BineqU = filled(rows, b.DUMax)
	}

	for i := 0; i <= n; i++ {
		xi := i * blk
		if i > 0 {
			fill(q.XL[xi:xi+nx], -b.XMax)
			fill(q.XU[xi:xi+nx], b.XMax)
		}
		if i < n {
			fill(q.XL[xi+nx:xi+blk], -b.UMax)
			fill(q.XU[xi+nx:xi+blk], b.UMax)
		}
	}
	return q
}

func (c *ChainMassOCP) RecoverQP(x []float64) (Solution, error) {
	nx, n, blk := c.model.Nx, c.model.N, c.blk()
	if len(x) != n*blk+nx {
		return Solution{}, fmt.Errorf("%w: primal has %d entries, want %d", ErrDimension, len(x), n*blk+nx)
	}
	tr := Trajectory{X: make([][]float64, n+1), U: make([][]float64, n)}
	for k := 0; k < n; k++ {
		tr.X[k] = clone(x[k*blk : k*blk+nx])
		tr.U[k] = clone(x[k*blk+nx : (k+1)*blk])
	}
	tr.X[n] = clone(x[n*blk:])
	return Solution{Trajectories: []Trajectory{tr}}, nil
}

// RecoverOCP drops the auxiliary input state when present.
func (c *ChainMassOCP) RecoverOCP(xs, us [][]float64) (Solution, error) {
	nx, nu, n := c.model.Nx, c.model.Nu, c.model.N
	if len(xs) != n+1 || len(us) != n {
		return Solution{}, fmt.Errorf("%w: got %d states and %d inputs for N=%d", ErrDimension, len(xs), len(us), n)
	}
	tr := Trajectory{X: make([][]float64, n+1), U: make([][]float64, n)}
	for k, x := range xs {
		if len(x) < nx {
			return Solution{}, fmt.Errorf("%w: state %d has %d entries", ErrDimension, k, len(x))
		}
		tr.X[k] = clone(x[:nx])
	}
	for k, u := range us {
		if len(u) != nu {
			return Solution{}, fmt.Errorf("%w: input %d has %d entries", ErrDimension, k, len(u))
		}
		tr.U[k] = clone(u)
	}
	return Solution{Trajectories: []Trajectory{tr}}, nil
}

// PrimalGuess rolls x0 forward under zero input, in QP layout.
func (c *ChainMassOCP) PrimalGuess() []float64 {
	nx, n, blk := c.model.Nx, c.model.N, c.blk()
	z := make([]float64, n*blk+nx)
	copy(z, c.x0)
	for k := 0; k < n; k++ {
		cur := mat.NewVecDense(nx, z[k*blk:k*blk+nx])
		next := mat.NewVecDense(nx, z[(k+1)*blk:(k+1)*blk+nx])
		next.MulVec(c.model.Ad, cur)
	}
	return z
}

func eye(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

func filled(n int, v float64) []float64 {
	s := make([]float64, n)
	fill(s, v)
	return s
}

func fill(s []float64, v float64) {
	for i := range s {
		s[i] = v
	}
}

func clone(s []float64) []float64 {
	return append([]float64(nil), s...)
}
