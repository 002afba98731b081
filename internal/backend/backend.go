package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/chainbench/internal/linalg"
)

var (
	ErrMaxIter        = errors.New("backend: iteration limit reached")
	ErrNumerical      = errors.New("backend: numerical failure")
	ErrInfeasible     = errors.New("backend: problem is infeasible")
	ErrPatternChanged = errors.New("backend: pinned variables changed after setup")
	ErrNotSetUp       = errors.New("backend: solve called before setup")
)

type Status int

const (
	StatusSolved Status = iota
	StatusMaxIter
	StatusInfeasible
	StatusNumerical
)

func (s Status) String() string {
	switch s {
	case StatusSolved:
		return "solved"
	case StatusMaxIter:
		return "max_iter"
	case StatusInfeasible:
		return "infeasible"
	case StatusNumerical:
		return "numerical"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result of one solve. X is in the layout of the backend input.
type Result struct {
	X          []float64
	Iterations int
	Status     Status
}

// Settings shared by the iterative backends. Zero values select the
// backend defaults. Log receives per-iteration records at debug level.
type Settings struct {
	Eps     float64
	MaxIter int
	Log     *slog.Logger
}

func (s Settings) eps() float64 {
	if s.Eps <= 0 {
		return 1e-8
	}
	return s.Eps
}

func (s Settings) maxIter(def int) int {
	if s.MaxIter <= 0 {
		return def
	}
	return s.MaxIter
}

func (s Settings) logger() *slog.Logger {
	if s.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Log
}

// kkt is a symmetric quasi-definite matrix with a fixed pattern, given as
// an upper triangular triplet. Values are refilled in triplet order.
type kkt struct {
	n     int
	tri   *linalg.Triplet
	a     *linalg.CSC
	slots []int
	ldl   *linalg.LDL
	vals  []float64
	// diagonal regularization removed again during refinement
	reg   []float64
	work  []float64
	resid []float64
}

func newKKT(tri *linalg.Triplet) (*kkt, error) {
	n, _ := tri.Dims()
	perm := linalg.RCM(tri.ToCSC())
	a, slots := linalg.PermuteUpper(tri, perm)
	f, err := linalg.NewLDL(a, perm)
	if err != nil {
		return nil, err
	}
	return &kkt{
		n:     n,
		tri:   tri,
		a:     a,
		slots: slots,
		ldl:   f,
		vals:  append([]float64(nil), tri.V...),
		reg:   make([]float64, n),
		work:  make([]float64, n),
		resid: make([]float64, n),
	}, nil
}

func (k *kkt) factor() error {
	linalg.Refill(k.a, k.slots, k.vals)
	if err := k.ldl.Factor(k.a); err != nil {
		return fmt.Errorf("%w: %v", ErrNumerical, err)
	}
	return nil
}

// mul computes y = (K - diag(reg)) x from the upper triangle.
func (k *kkt) mul(y, x []float64) {
	for i := range y {
		y[i] = -k.reg[i] * x[i]
	}
	for e, v := range k.vals {
		i, j := k.tri.I[e], k.tri.J[e]
		y[i] += v * x[j]
		if i != j {
			y[j] += v * x[i]
		}
	}
}

// solve overwrites b with the solution, refining against the
// unregularized matrix.
func (k *kkt) solve(b []float64, refine int) {
	rhs := k.work
	copy(rhs, b)
	k.ldl.Solve(b)
	for it := 0; it < refine; it++ {
		k.mul(k.resid, b)
		for i := range k.resid {
			k.resid[i] = rhs[i] - k.resid[i]
		}
		k.ldl.Solve(k.resid)
		for i := range b {
			b[i] += k.resid[i]
		}
	}
}

func normInf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, math.Inf(1))
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func maxOf(vs ...float64) float64 { return floats.Max(vs) }

// stepToBoundary returns the largest α in (0, 1] with v + α dv >= 0.
func stepToBoundary(v, dv []float64) float64 {
	alpha := 1.0
	for i, d := range dv {
		if d < 0 {
			if a := -v[i] / d; a < alpha {
				alpha = a
			}
		}
	}
	return alpha
}
