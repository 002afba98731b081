package control

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/chainbench/internal/sim"
)

// LQR applies the static feedback u = -K(x - target), optionally clipped
// to ±limit.
type LQR struct {
	K      *mat.Dense
	Target sim.State
	Limit  float64
}

func NewLQR(k *mat.Dense, target sim.State) *LQR {
	return &LQR{K: k, Target: target}
}

// NewDiscreteLQR builds the infinite-horizon regulator of the discrete
// system (a, b) with weights (q, r).
func NewDiscreteLQR(a, b, q, r mat.Matrix) (*LQR, error) {
	x, err := SolveDARE(a, b, q, r)
	if err != nil {
		return nil, err
	}
	k, err := Gain(a, b, r, x)
	if err != nil {
		return nil, err
	}
	return NewLQR(k, nil), nil
}

func (l *LQR) Compute(x sim.State, t float64) (sim.Control, error) {
	rows, cols := l.K.Dims()
	if len(x) != cols {
		return nil, fmt.Errorf("control: state has %d entries, gain expects %d", len(x), cols)
	}
	u := make(sim.Control, rows)
	for i := range u {
		for j, k := range l.K.RawRowView(i) {
			target := 0.0
			if j < len(l.Target) {
				target = l.Target[j]
			}
			u[i] -= k * (x[j] - target)
		}
		if l.Limit > 0 {
			u[i] = max(-l.Limit, min(l.Limit, u[i]))
		}
	}
	return u, nil
}
