package linalg

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Triplet accumulates coordinate entries of a sparse matrix. Duplicate
// coordinates are summed when the triplet is compressed.
type Triplet struct {
	rows, cols int
	I, J       []int
	V          []float64
}

func NewTriplet(rows, cols, capacity int) *Triplet {
	return &Triplet{
		rows: rows,
		cols: cols,
		I:    make([]int, 0, capacity),
		J:    make([]int, 0, capacity),
		V:    make([]float64, 0, capacity),
	}
}

func (t *Triplet) Dims() (int, int) { return t.rows, t.cols }
func (t *Triplet) Len() int          { return len(t.V) }

// Add appends one entry. Explicit zeros are kept so that the sparsity
// pattern does not depend on the values.
func (t *Triplet) Add(i, j int, v float64) {
	if i < 0 || i >= t.rows || j < 0 || j >= t.cols {
		panic(fmt.Sprintf("linalg: triplet index (%d, %d) out of range %dx%d", i, j, t.rows, t.cols))
	}
	t.I = append(t.I, i)
	t.J = append(t.J, j)
	t.V = append(t.V, v)
}

// AddDense appends scale*m with its top-left corner at (i0, j0), skipping
// structural zeros of m.
func (t *Triplet) AddDense(i0, j0 int, m mat.Matrix, scale float64) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if v == 0 {
				continue
			}
			t.Add(i0+i, j0+j, scale*v)
		}
	}
}

// AddIdentity appends v*I of size n at (i0, j0).
func (t *Triplet) AddIdentity(i0, j0, n int, v float64) {
	for k := 0; k < n; k++ {
		t.Add(i0+k, j0+k, v)
	}
}

// ToCSC compresses the triplet. Duplicates are summed.
func (t *Triplet) ToCSC() *CSC {
	a, _ := t.compress(nil)
	return a
}

// ToCSCMapped compresses the triplet and returns, for every triplet
// entry, the slot of the compressed value array it was summed into.
// Triplets built with the same sequence of coordinates can then be
// refilled with Refill without compressing again.
func (t *Triplet) ToCSCMapped() (*CSC, []int) {
	slots := make([]int, len(t.V))
	a, _ := t.compress(slots)
	return a, slots
}

func (t *Triplet) compress(slots []int) (*CSC, []int) {
	nnz := len(t.V)
	order := make([]int, nnz)
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := order[a], order[b]
		if t.J[ka] != t.J[kb] {
			return t.J[ka] < t.J[kb]
		}
		return t.I[ka] < t.I[kb]
	})

	out := &CSC{
		Rows:   t.rows,
		Cols:   t.cols,
		ColPtr: make([]int, t.cols+1),
		RowIdx: make([]int, 0, nnz),
		Val:    make([]float64, 0, nnz),
	}
	lastI, lastJ := -1, -1
	for _, k := range order {
		i, j := t.I[k], t.J[k]
		if i != lastI || j != lastJ {
			out.RowIdx = append(out.RowIdx, i)
			out.Val = append(out.Val, 0)
			out.ColPtr[j+1]++
			lastI, lastJ = i, j
		}
		slot := len(out.Val) - 1
		out.Val[slot] += t.V[k]
		if slots != nil {
			slots[k] = slot
		}
	}
	for j := 0; j < t.cols; j++ {
		out.ColPtr[j+1] += out.ColPtr[j]
	}
	return out, slots
}

// Refill overwrites a.Val with the sums of vals through the slot map
// returned by ToCSCMapped.
func Refill(a *CSC, slots []int, vals []float64) {
	for k := range a.Val {
		a.Val[k] = 0
	}
	for k, s := range slots {
		a.Val[s] += vals[k]
	}
}
