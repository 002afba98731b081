package problem

import (
	"fmt"

	"github.com/san-kum/chainbench/internal/linalg"
)

// QP is the condensed form
//
//	min  ½xᵀPx + cᵀx
//	s.t. Aeq x = Beq
//	     BineqL <= Aineq x <= BineqU
//	     XL <= x <= XU
//
// P holds both triangles. Aineq is nil when there are no inequality rows.
// Pinned variables have XL[i] == XU[i].
type QP struct {
	P *linalg.CSC
	C []float64

	Aeq *linalg.CSC
	Beq []float64

	Aineq          *linalg.CSC
	BineqL, BineqU []float64

	XL, XU []float64
}

func (q *QP) Dim() int { return len(q.C) }

func (q *QP) NumEq() int {
	if q.Aeq == nil {
		return 0
	}
	return q.Aeq.Rows
}

func (q *QP) NumIneq() int {
	if q.Aineq == nil {
		return 0
	}
	return q.Aineq.Rows
}

// Validate checks dimensions, the symmetry of P and the bound order.
func (q *QP) Validate() error {
	n := q.Dim()
	if q.P == nil || q.P.Rows != n || q.P.Cols != n {
		return fmt.Errorf("%w: P does not match dim %d", ErrDimension, n)
	}
	if !q.P.IsSymmetric(1e-12) {
		return fmt.Errorf("%w: P is not symmetric", ErrDimension)
	}
	if len(q.XL) != n || len(q.XU) != n {
		return fmt.Errorf("%w: box bounds %d/%d for dim %d", ErrDimension, len(q.XL), len(q.XU), n)
	}
	if q.Aeq != nil && (q.Aeq.Cols != n || len(q.Beq) != q.Aeq.Rows) {
		return fmt.Errorf("%w: equality block %dx%d with %d rhs", ErrDimension, q.Aeq.Rows, q.Aeq.Cols, len(q.Beq))
	}
	if q.Aineq != nil {
		m := q.Aineq.Rows
		if q.Aineq.Cols != n || len(q.BineqL) != m || len(q.BineqU) != m {
			return fmt.Errorf("%w: inequality block %dx%d with %d/%d bounds", ErrDimension, m, q.Aineq.Cols, len(q.BineqL), len(q.BineqU))
		}
		if err := ordered("ineq", q.BineqL, q.BineqU); err != nil {
			return err
		}
	}
	return ordered("box", q.XL, q.XU)
}
