package metrics

import (
	"math"

	"github.com/san-kum/chainbench/internal/sim"
)

// BoundViolation records the largest excess of |x_i| over xMax or |u_j|
// over uMax. Zero means every sample stayed inside the box.
type BoundViolation struct {
	name   string
	xMax   float64
	uMax   float64
	excess float64
}

func NewBoundViolation(xMax, uMax float64) *BoundViolation {
	return &BoundViolation{
		name: "bound_violation",
		xMax: xMax,
		uMax: uMax,
	}
}

func (b *BoundViolation) Name() string {
	return b.name
}

func (b *BoundViolation) Observe(x sim.State, u sim.Control, t float64) {
	for _, val := range x {
		b.excess = math.Max(b.excess, math.Abs(val)-b.xMax)
	}
	for _, val := range u {
		b.excess = math.Max(b.excess, math.Abs(val)-b.uMax)
	}
}

func (b *BoundViolation) Value() float64 {
	return b.excess
}

func (b *BoundViolation) Reset() {
	b.excess = 0
}
