package problem

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// OCP is the dense multi-stage form
//
//	min  Σ_k ½(x_kᵀQx_k + u_kᵀRu_k) + u_kᵀS x_k  +  ½x_NᵀQN x_N
//	s.t. x_{k+1} = A x_k + B u_k
//	     x_0[:Nbx] = X0
//	     XL <= x_k[:Nbx] <= XU,   k = 1..N
//	     UL <= u_k <= UU
//	     GL <= C x_k + D u_k <= GU,   k = 0..N-1
//
// The box and the initial state act on the leading Nbx components, so an
// augmented state keeps its auxiliary part free at stage 0. C is nil when
// there are no path constraints.
type OCP struct {
	N, Nx, Nu int

	A, B        *mat.Dense
	Q, R, S, QN *mat.Dense

	X0             []float64
	XL, XU, UL, UU []float64

	C, D   *mat.Dense
	GL, GU []float64
}

func (o *OCP) Nbx() int { return len(o.XL) }

// Ng returns the number of path constraint rows per stage.
func (o *OCP) Ng() int {
	if o.C == nil {
		return 0
	}
	r, _ := o.C.Dims()
	return r
}

// Validate checks that every matrix matches the declared dimensions.
func (o *OCP) Validate() error {
	check := func(name string, m *mat.Dense, r, c int) error {
		if m == nil {
			return fmt.Errorf("%w: %s is nil", ErrDimension, name)
		}
		mr, mc := m.Dims()
		if mr != r || mc != c {
			return fmt.Errorf("%w: %s is %dx%d, want %dx%d", ErrDimension, name, mr, mc, r, c)
		}
		return nil
	}
	if o.N < 1 || o.Nx < 1 || o.Nu < 1 {
		return fmt.Errorf("%w: N=%d nx=%d nu=%d", ErrDimension, o.N, o.Nx, o.Nu)
	}
	for _, e := range []error{
		check("A", o.A, o.Nx, o.Nx),
		check("B", o.B, o.Nx, o.Nu),
		check("Q", o.Q, o.Nx, o.Nx),
		check("R", o.R, o.Nu, o.Nu),
		check("S", o.S, o.Nu, o.Nx),
		check("QN", o.QN, o.Nx, o.Nx),
	} {
		if e != nil {
			return e
		}
	}
	nbx := o.Nbx()
	if nbx > o.Nx || len(o.XU) != nbx || len(o.X0) != nbx {
		return fmt.Errorf("%w: state bounds %d/%d and x0 %d for nx=%d", ErrDimension, len(o.XL), len(o.XU), len(o.X0), o.Nx)
	}
	if len(o.UL) != o.Nu || len(o.UU) != o.Nu {
		return fmt.Errorf("%w: input bounds %d/%d for nu=%d", ErrDimension, len(o.UL), len(o.UU), o.Nu)
	}
	if ng := o.Ng(); ng > 0 {
		if err := check("D", o.D, ng, o.Nu); err != nil {
			return err
		}
		if _, c := o.C.Dims(); c != o.Nx {
			return fmt.Errorf("%w: C has %d columns, want %d", ErrDimension, c, o.Nx)
		}
		if len(o.GL) != ng || len(o.GU) != ng {
			return fmt.Errorf("%w: path bounds %d/%d for %d rows", ErrDimension, len(o.GL), len(o.GU), ng)
		}
	}
	if err := ordered("x", o.XL, o.XU); err != nil {
		return err
	}
	if err := ordered("u", o.UL, o.UU); err != nil {
		return err
	}
	return ordered("g", o.GL, o.GU)
}

func ordered(name string, lo, hi []float64) error {
	for i := range lo {
		if lo[i] > hi[i] {
			return fmt.Errorf("%w: %s[%d] lower %g above upper %g", ErrBounds, name, i, lo[i], hi[i])
		}
	}
	return nil
}
