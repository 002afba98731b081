package linalg

import (
	"errors"
	"fmt"
)

var (
	ErrNotSquare    = errors.New("linalg: matrix is not square")
	ErrNotUpper     = errors.New("linalg: matrix is not upper triangular")
	ErrZeroPivot    = errors.New("linalg: zero pivot in LDL factorization")
	ErrPatternDrift = errors.New("linalg: sparsity pattern differs from symbolic analysis")
)

const unknown = -1

// LDL is a sparse LDLᵀ factorization without pivoting of a symmetric
// matrix given by its upper triangle in a fixed ordering. It is meant for
// quasi-definite KKT systems, where any symmetric ordering is stable.
type LDL struct {
	n      int
	perm   []int
	iperm  []int
	etree  []int
	lnz    []int
	Lp     []int
	Li     []int
	Lx     []float64
	D      []float64
	Dinv   []float64
	pos    int
	colNnz int

	// workspaces
	iwork    []int
	bwork    []bool
	fwork    []float64
	yIdx     []int
	elim     []int
	nextCol  []int
	permuted []float64
}

// NewLDL runs the symbolic analysis of the upper triangular pattern a.
// perm may be nil for the natural ordering; a is expected already
// permuted, see PermuteUpper.
func NewLDL(a *CSC, perm []int) (*LDL, error) {
	if a.Rows != a.Cols {
		return nil, ErrNotSquare
	}
	n := a.Cols
	if perm == nil {
		perm = make([]int, n)
		for i := range perm {
			perm[i] = i
		}
	}
	f := &LDL{
		n:        n,
		perm:     perm,
		iperm:    InversePerm(perm),
		etree:    make([]int, n),
		lnz:      make([]int, n),
		Lp:       make([]int, n+1),
		D:        make([]float64, n),
		Dinv:     make([]float64, n),
		iwork:    make([]int, n),
		bwork:    make([]bool, n),
		fwork:    make([]float64, n),
		yIdx:     make([]int, n),
		elim:     make([]int, n),
		nextCol:  make([]int, n),
		permuted: make([]float64, n),
	}
	if err := f.symbolic(a); err != nil {
		return nil, err
	}
	f.colNnz = a.NNZ()
	return f, nil
}

func (f *LDL) symbolic(a *CSC) error {
	work := f.iwork
	for i := 0; i < f.n; i++ {
		work[i] = 0
		f.lnz[i] = 0
		f.etree[i] = unknown
	}
	for j := 0; j < f.n; j++ {
		work[j] = j
		for p := a.ColPtr[j]; p < a.ColPtr[j+1]; p++ {
			i := a.RowIdx[p]
			if i > j {
				return ErrNotUpper
			}
			for work[i] != j {
				if f.etree[i] == unknown {
					f.etree[i] = j
				}
				f.lnz[i]++
				work[i] = j
				i = f.etree[i]
			}
		}
	}
	f.Lp[0] = 0
	for i := 0; i < f.n; i++ {
		f.Lp[i+1] = f.Lp[i] + f.lnz[i]
	}
	f.Li = make([]int, f.Lp[f.n])
	f.Lx = make([]float64, f.Lp[f.n])
	return nil
}

// Factor computes the numeric factorization of a, which must share the
// pattern given to NewLDL.
func (f *LDL) Factor(a *CSC) error {
	if a.Cols != f.n || a.NNZ() != f.colNnz {
		return ErrPatternDrift
	}
	n := f.n
	used := f.bwork
	yVals := f.fwork
	for i := 0; i < n; i++ {
		used[i] = false
		yVals[i] = 0
		f.D[i] = 0
		f.nextCol[i] = f.Lp[i]
	}
	f.pos = 0

	for k := 0; k < n; k++ {
		nnzY := 0
		for p := a.ColPtr[k]; p < a.ColPtr[k+1]; p++ {
			b := a.RowIdx[p]
			if b == k {
				f.D[k] = a.Val[p]
				continue
			}
			yVals[b] = a.Val[p]
			next := b
			if used[next] {
				continue
			}
			used[next] = true
			f.elim[0] = next
			nnzE := 1
			next = f.etree[b]
			for next != unknown && next < k {
				if used[next] {
					break
				}
				used[next] = true
				f.elim[nnzE] = next
				nnzE++
				next = f.etree[next]
			}
			for nnzE > 0 {
				nnzE--
				f.yIdx[nnzY] = f.elim[nnzE]
				nnzY++
			}
		}

		for i := nnzY - 1; i >= 0; i-- {
			c := f.yIdx[i]
			end := f.nextCol[c]
			yc := yVals[c]
			for j := f.Lp[c]; j < end; j++ {
				yVals[f.Li[j]] -= f.Lx[j] * yc
			}
			f.Li[end] = k
			f.Lx[end] = yc * f.Dinv[c]
			f.D[k] -= yc * f.Lx[end]
			f.nextCol[c]++
			yVals[c] = 0
			used[c] = false
		}

		if f.D[k] == 0 {
			return fmt.Errorf("%w at column %d", ErrZeroPivot, k)
		}
		if f.D[k] > 0 {
			f.pos++
		}
		f.Dinv[k] = 1 / f.D[k]
	}
	return nil
}

// Positive returns the number of positive pivots of the last factorization.
func (f *LDL) Positive() int { return f.pos }

// Solve overwrites b, given in the original ordering, with the solution.
func (f *LDL) Solve(b []float64) {
	x := f.permuted
	for k := 0; k < f.n; k++ {
		x[k] = b[f.perm[k]]
	}
	for i := 0; i < f.n; i++ {
		xi := x[i]
		for j := f.Lp[i]; j < f.Lp[i+1]; j++ {
			x[f.Li[j]] -= f.Lx[j] * xi
		}
	}
	for i := 0; i < f.n; i++ {
		x[i] *= f.Dinv[i]
	}
	for i := f.n - 1; i >= 0; i-- {
		s := x[i]
		for j := f.Lp[i]; j < f.Lp[i+1]; j++ {
			s -= f.Lx[j] * x[f.Li[j]]
		}
		x[i] = s
	}
	for k := 0; k < f.n; k++ {
		b[f.perm[k]] = x[k]
	}
}

// PermuteUpper builds the upper triangle of P A Pᵀ from the upper
// triangular triplet t, where perm[k] is the original index placed at k.
// The returned slot map allows refilling values with Refill.
func PermuteUpper(t *Triplet, perm []int) (*CSC, []int) {
	iperm := InversePerm(perm)
	pt := &Triplet{rows: t.rows, cols: t.cols, I: make([]int, len(t.I)), J: make([]int, len(t.J)), V: t.V}
	for k := range t.I {
		pi, pj := iperm[t.I[k]], iperm[t.J[k]]
		if pi > pj {
			pi, pj = pj, pi
		}
		pt.I[k], pt.J[k] = pi, pj
	}
	return pt.ToCSCMapped()
}
