package physics

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/chainbench/internal/control"
	"github.com/san-kum/chainbench/internal/sim"
)

const (
	// SampleTime is the zero-order-hold interval of the discrete model.
	SampleTime = 0.5

	XMax  = 4.0 // position and velocity bound
	UMax  = 0.5 // input bound
	DUMax = 0.1 // input rate bound

	StateWeight = 1e3
	InputWeight = 0.1
	RateWeight  = 0.1
)

var (
	ErrInvalidInputDim = errors.New("physics: input dimension must satisfy 1 <= nu <= M")
	ErrInvalidSize     = errors.New("physics: chain length and horizon must be positive")
	ErrInvalidConstant = errors.New("physics: mass must be positive and damping, spring non-negative")
)

// Params describes a chain of M identical masses coupled to their
// neighbours by springs and fixed to walls at both ends. Nu = 0 selects
// the default of M-1 actuated masses.
type Params struct {
	M       int
	N       int
	Nu      int
	Mass    float64
	Damping float64
	Spring  float64
}

func DefaultParams(m, n int) Params {
	return Params{M: m, N: n, Mass: 1.0, Damping: 0.1, Spring: 1.0}
}

// Inputs returns the number of actuated masses, resolving Nu = 0.
func (p Params) Inputs() int {
	if p.Nu == 0 {
		return p.M - 1
	}
	return p.Nu
}

// ChainMass is the linear chain-of-masses model: continuous dynamics,
// its ZOH discretization, quadratic weights and the LQR terminal cost.
// The state is [positions; velocities] and the inputs act on the last
// Nu velocities. Values are immutable after construction.
type ChainMass struct {
	Params
	Nx int

	A, B   *mat.Dense // continuous
	Ad, Bd *mat.Dense // discrete, SampleTime

	Q, R, RDiff *mat.Dense
	P           *mat.Dense // DARE solution for (Ad, Bd, Q, R)

	XMax, UMax, DUMax float64
}

func NewChainMass(p Params) (*ChainMass, error) {
	if p.M < 1 || p.N < 1 {
		return nil, fmt.Errorf("%w: M=%d N=%d", ErrInvalidSize, p.M, p.N)
	}
	p.Nu = p.Inputs()
	if p.Nu < 1 || p.Nu > p.M {
		return nil, fmt.Errorf("%w: M=%d nu=%d", ErrInvalidInputDim, p.M, p.Nu)
	}
	if p.Mass <= 0 || p.Damping < 0 || p.Spring < 0 {
		return nil, fmt.Errorf("%w: m=%g c=%g k=%g", ErrInvalidConstant, p.Mass, p.Damping, p.Spring)
	}

	a, b := Continuous(p)
	ad, bd := Discretize(a, b, SampleTime)

	nx := 2 * p.M
	q := scaledIdentity(nx, StateWeight)
	r := scaledIdentity(p.Nu, InputWeight)
	rd := scaledIdentity(p.Nu, RateWeight)

	pt, err := control.SolveDARE(ad, bd, q, r)
	if err != nil {
		return nil, fmt.Errorf("physics: terminal cost for M=%d nu=%d: %w", p.M, p.Nu, err)
	}

	return &ChainMass{
		Params: p,
		Nx:     nx,
		A:      a,
		B:      b,
		Ad:     ad,
		Bd:     bd,
		Q:      q,
		R:      r,
		RDiff:  rd,
		P:      pt,
		XMax:   XMax,
		UMax:   UMax,
		DUMax:  DUMax,
	}, nil
}

// Continuous returns the continuous-time (A, B). The velocity block is
// the negated path-graph Laplacian scaled by k/m plus -2c/m damping.
func Continuous(p Params) (*mat.Dense, *mat.Dense) {
	m, nu := p.M, p.Inputs()
	nx := 2 * m
	a := mat.NewDense(nx, nx, nil)
	for i := 0; i < m; i++ {
		a.Set(i, m+i, 1)
		a.Set(m+i, i, -2*p.Spring/p.Mass)
		if i > 0 {
			a.Set(m+i, i-1, p.Spring/p.Mass)
		}
		if i < m-1 {
			a.Set(m+i, i+1, p.Spring/p.Mass)
		}
		a.Set(m+i, m+i, -2*p.Damping/p.Mass)
	}

	b := mat.NewDense(nx, nu, nil)
	for j := 0; j < nu; j++ {
		b.Set(nx-nu+j, j, 1)
	}
	return a, b
}

// Discretize returns the zero-order-hold discretization of (a, b) over
// dt from the exponential of the augmented matrix [[A, B], [0, 0]] dt.
func Discretize(a, b mat.Matrix, dt float64) (*mat.Dense, *mat.Dense) {
	nx, nu := b.Dims()
	aug := mat.NewDense(nx+nu, nx+nu, nil)
	aug.Slice(0, nx, 0, nx).(*mat.Dense).Scale(dt, a)
	aug.Slice(0, nx, nx, nx+nu).(*mat.Dense).Scale(dt, b)

	var e mat.Dense
	e.Exp(aug)

	ad := mat.DenseCopyOf(e.Slice(0, nx, 0, nx))
	bd := mat.DenseCopyOf(e.Slice(0, nx, nx, nx+nu))
	return ad, bd
}

func scaledIdentity(n int, v float64) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, v)
	}
	return d
}

func (c *ChainMass) StateDim() int   { return c.Nx }
func (c *ChainMass) ControlDim() int { return c.Nu }

// Derivative evaluates the continuous dynamics Ax + Bu.
func (c *ChainMass) Derivative(x sim.State, u sim.Control, _ float64) sim.State {
	dx := make(sim.State, c.Nx)
	for i := 0; i < c.Nx; i++ {
		var s float64
		for j, v := range c.A.RawRowView(i) {
			s += v * x[j]
		}
		if len(u) == c.Nu {
			for j, v := range c.B.RawRowView(i) {
				s += v * u[j]
			}
		}
		dx[i] = s
	}
	return dx
}

// StageCost returns xᵀQx + uᵀRu.
func (c *ChainMass) StageCost(x, u []float64) float64 {
	var s float64
	for i, v := range x {
		s += c.Q.At(i, i) * v * v
	}
	for i, v := range u {
		s += c.R.At(i, i) * v * v
	}
	return s
}

// GetParams reports the physical constants.
func (c *ChainMass) GetParams() map[string]float64 {
	return map[string]float64{
		"mass":    c.Mass,
		"damping": c.Damping,
		"spring":  c.Spring,
	}
}
