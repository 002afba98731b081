package linalg

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// CSC is a compressed sparse column matrix. Row indices are sorted within
// each column.
type CSC struct {
	Rows, Cols int
	ColPtr     []int
	RowIdx     []int
	Val        []float64
}

var _ mat.Matrix = (*CSC)(nil)

// Zeros returns an empty rows x cols matrix.
func Zeros(rows, cols int) *CSC {
	return &CSC{Rows: rows, Cols: cols, ColPtr: make([]int, cols+1)}
}

func (a *CSC) Dims() (int, int) { return a.Rows, a.Cols }
func (a *CSC) NNZ() int         { return len(a.Val) }

func (a *CSC) At(i, j int) float64 {
	if i < 0 || i >= a.Rows || j < 0 || j >= a.Cols {
		panic(mat.ErrIndexOutOfRange)
	}
	lo, hi := a.ColPtr[j], a.ColPtr[j+1]
	k := lo + sort.SearchInts(a.RowIdx[lo:hi], i)
	if k < hi && a.RowIdx[k] == i {
		return a.Val[k]
	}
	return 0
}

func (a *CSC) T() mat.Matrix { return mat.Transpose{Matrix: a} }

// MulVec sets dst = A x.
func (a *CSC) MulVec(dst, x []float64) {
	for i := range dst[:a.Rows] {
		dst[i] = 0
	}
	for j := 0; j < a.Cols; j++ {
		xj := x[j]
		if xj == 0 {
			continue
		}
		for k := a.ColPtr[j]; k < a.ColPtr[j+1]; k++ {
			dst[a.RowIdx[k]] += a.Val[k] * xj
		}
	}
}

// MulVecTrans sets dst = Aᵀ x.
func (a *CSC) MulVecTrans(dst, x []float64) {
	for j := 0; j < a.Cols; j++ {
		var s float64
		for k := a.ColPtr[j]; k < a.ColPtr[j+1]; k++ {
			s += a.Val[k] * x[a.RowIdx[k]]
		}
		dst[j] = s
	}
}

// Transpose returns Aᵀ in compressed column form.
func (a *CSC) Transpose() *CSC {
	t := &CSC{
		Rows:   a.Cols,
		Cols:   a.Rows,
		ColPtr: make([]int, a.Rows+1),
		RowIdx: make([]int, len(a.RowIdx)),
		Val:    make([]float64, len(a.Val)),
	}
	for _, i := range a.RowIdx {
		t.ColPtr[i+1]++
	}
	for i := 0; i < a.Rows; i++ {
		t.ColPtr[i+1] += t.ColPtr[i]
	}
	next := make([]int, a.Rows)
	copy(next, t.ColPtr[:a.Rows])
	for j := 0; j < a.Cols; j++ {
		for k := a.ColPtr[j]; k < a.ColPtr[j+1]; k++ {
			i := a.RowIdx[k]
			t.RowIdx[next[i]] = j
			t.Val[next[i]] = a.Val[k]
			next[i]++
		}
	}
	return t
}

// RowLists returns every row as (columns, values) pairs.
func (a *CSC) RowLists() ([][]int, [][]float64) {
	cols := make([][]int, a.Rows)
	vals := make([][]float64, a.Rows)
	for j := 0; j < a.Cols; j++ {
		for k := a.ColPtr[j]; k < a.ColPtr[j+1]; k++ {
			i := a.RowIdx[k]
			cols[i] = append(cols[i], j)
			vals[i] = append(vals[i], a.Val[k])
		}
	}
	return cols, vals
}

// Dense returns a dense copy, or nil for an empty matrix.
func (a *CSC) Dense() *mat.Dense {
	if a.Rows == 0 || a.Cols == 0 {
		return nil
	}
	d := mat.NewDense(a.Rows, a.Cols, nil)
	for j := 0; j < a.Cols; j++ {
		for k := a.ColPtr[j]; k < a.ColPtr[j+1]; k++ {
			d.Set(a.RowIdx[k], j, a.Val[k])
		}
	}
	return d
}

// Clone returns a deep copy.
func (a *CSC) Clone() *CSC {
	return &CSC{
		Rows:   a.Rows,
		Cols:   a.Cols,
		ColPtr: append([]int(nil), a.ColPtr...),
		RowIdx: append([]int(nil), a.RowIdx...),
		Val:    append([]float64(nil), a.Val...),
	}
}

// IsSymmetric reports whether A equals Aᵀ entrywise within tol.
func (a *CSC) IsSymmetric(tol float64) bool {
	if a.Rows != a.Cols {
		return false
	}
	for j := 0; j < a.Cols; j++ {
		for k := a.ColPtr[j]; k < a.ColPtr[j+1]; k++ {
			i := a.RowIdx[k]
			d := a.Val[k] - a.At(j, i)
			if d > tol || d < -tol {
				return false
			}
		}
	}
	return true
}
