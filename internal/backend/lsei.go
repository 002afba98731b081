package backend

import (
	"fmt"
	"math"

	"github.com/curioloop/optimizer/slsqp"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/chainbench/internal/problem"
)

// LSEI solves the QP as the dense constrained least squares problem
//
//	min ‖Ux - f‖  s.t.  Cx = d,  Gx >= h
//
// with P = UᵀU, f = -U⁻ᵀc. Equality rows are Aeq followed by the pinned
// variables. slsqp.LSEI overwrites its inputs, so every solve starts from
// copies of the arrays built at setup. Arrays are column major.
type LSEI struct {
	maxIterLs int

	qp     *problem.QP
	n      int
	mc, mg int
	pinned []int

	// G rows: box side of variable ref (kind 0) or inequality row ref
	// (kind 1), lower (+1) or upper (-1).
	kind []int
	ref  []int
	sign []float64

	c, d, e, f, g, h []float64
	wc, wd, we, wf   []float64
	wg, wh           []float64
	w                []float64
	jw               []int
}

// NewLSEI returns an LSEI backend. maxIterLs bounds the inner NNLS
// iterations; zero selects 3n.
func NewLSEI(maxIterLs int) *LSEI { return &LSEI{maxIterLs: maxIterLs} }

func (s *LSEI) Setup(qp *problem.QP) error {
	if err := qp.Validate(); err != nil {
		return err
	}
	s.qp = qp
	n := qp.Dim()
	s.n = n

	var chol mat.Cholesky
	if !chol.Factorize(symmetric(qp.P)) {
		return fmt.Errorf("%w: cost matrix is not positive definite", ErrNumerical)
	}
	var u mat.TriDense
	chol.UTo(&u)
	s.e = make([]float64, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i <= j; i++ {
			s.e[i+j*n] = u.At(i, j)
		}
	}
	// Uᵀf = -c by forward substitution.
	s.f = make([]float64, n)
	for i := 0; i < n; i++ {
		v := -qp.C[i]
		for j := 0; j < i; j++ {
			v -= u.At(j, i) * s.f[j]
		}
		s.f[i] = v / u.At(i, i)
	}

	s.pinned = s.pinned[:0]
	for i := 0; i < n; i++ {
		if qp.XL[i] == qp.XU[i] {
			s.pinned = append(s.pinned, i)
		}
	}
	meq := qp.NumEq()
	s.mc = meq + len(s.pinned)
	s.c = make([]float64, s.mc*n)
	s.d = make([]float64, s.mc)
	if qp.Aeq != nil {
		a := qp.Aeq
		for j := 0; j < n; j++ {
			for k := a.ColPtr[j]; k < a.ColPtr[j+1]; k++ {
				s.c[a.RowIdx[k]+j*s.mc] = a.Val[k]
			}
		}
	}
	for r, i := range s.pinned {
		s.c[meq+r+i*s.mc] = 1
	}

	s.kind, s.ref, s.sign = nil, nil, nil
	for i := 0; i < n; i++ {
		if qp.XL[i] == qp.XU[i] {
			continue
		}
		if !math.IsInf(qp.XL[i], -1) {
			s.kind, s.ref, s.sign = append(s.kind, 0), append(s.ref, i), append(s.sign, 1)
		}
		if !math.IsInf(qp.XU[i], 1) {
			s.kind, s.ref, s.sign = append(s.kind, 0), append(s.ref, i), append(s.sign, -1)
		}
	}
	for r := 0; r < qp.NumIneq(); r++ {
		if !math.IsInf(qp.BineqL[r], -1) {
			s.kind, s.ref, s.sign = append(s.kind, 1), append(s.ref, r), append(s.sign, 1)
		}
		if !math.IsInf(qp.BineqU[r], 1) {
			s.kind, s.ref, s.sign = append(s.kind, 1), append(s.ref, r), append(s.sign, -1)
		}
	}
	s.mg = len(s.kind)
	s.g = make([]float64, s.mg*n)
	s.h = make([]float64, s.mg)
	var rowIdx [][]int
	var rowVal [][]float64
	if qp.Aineq != nil {
		rowIdx, rowVal = qp.Aineq.RowLists()
	}
	for r := range s.kind {
		if s.kind[r] == 0 {
			s.g[r+s.ref[r]*s.mg] = s.sign[r]
			continue
		}
		for k, j := range rowIdx[s.ref[r]] {
			s.g[r+j*s.mg] = s.sign[r] * rowVal[s.ref[r]][k]
		}
	}

	s.wc = make([]float64, len(s.c))
	s.wd = make([]float64, len(s.d))
	s.we = make([]float64, len(s.e))
	s.wf = make([]float64, len(s.f))
	s.wg = make([]float64, len(s.g))
	s.wh = make([]float64, len(s.h))
	mc, mg, me := s.mc, s.mg, n
	s.w = make([]float64, 2*mc+me+(me+mg)*(n-mc)+(n-mc+1)*(mg+2)+2*mg)
	s.jw = make([]int, max(mg, min(me, n-mc)))
	return nil
}

// UpdateBounds re-reads d and h from the QP.
func (s *LSEI) UpdateBounds() error {
	if s.qp == nil {
		return ErrNotSetUp
	}
	qp := s.qp
	meq := qp.NumEq()
	copy(s.d, qp.Beq)
	for r, i := range s.pinned {
		if qp.XL[i] != qp.XU[i] {
			return fmt.Errorf("%w: variable %d", ErrPatternChanged, i)
		}
		s.d[meq+r] = qp.XL[i]
	}
	for r := range s.kind {
		switch {
		case s.kind[r] == 0 && s.sign[r] > 0:
			s.h[r] = qp.XL[s.ref[r]]
		case s.kind[r] == 0:
			s.h[r] = -qp.XU[s.ref[r]]
		case s.sign[r] > 0:
			s.h[r] = qp.BineqL[s.ref[r]]
		default:
			s.h[r] = -qp.BineqU[s.ref[r]]
		}
	}
	return nil
}

// Solve runs one active set solve. The iteration count reported is 1.
func (s *LSEI) Solve() (Result, error) {
	if err := s.UpdateBounds(); err != nil {
		return Result{}, err
	}
	copy(s.wc, s.c)
	copy(s.wd, s.d)
	copy(s.we, s.e)
	copy(s.wf, s.f)
	copy(s.wg, s.g)
	copy(s.wh, s.h)
	for i := range s.w {
		s.w[i] = 0
	}
	x := make([]float64, s.n)
	n, mc, mg := s.n, s.mc, s.mg
	_, mode := slsqp.LSEI(s.wc, s.wd, s.we, s.wf, s.wg, s.wh, mc, mc, n, n, mg, mg, n, x, s.w, s.jw, s.maxIterLs)
	switch mode {
	case slsqp.HasSolution:
	case slsqp.ConsIncompatible:
		return Result{Iterations: 1, Status: StatusInfeasible}, fmt.Errorf("%w: lsei mode %d", ErrInfeasible, mode)
	default:
		return Result{Iterations: 1, Status: StatusNumerical}, fmt.Errorf("%w: lsei mode %d", ErrNumerical, mode)
	}
	return Result{X: x, Iterations: 1, Status: StatusSolved}, nil
}
