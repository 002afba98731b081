package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/chainbench/internal/sim"
)

// ControlEffort is the mean over controller samples of uᵀRu for a
// diagonal input weight R.
type ControlEffort struct {
	weights []float64
	energy  float64
	samples int
}

// NewControlEffort reads the diagonal of r. A nil r weights every input
// by one.
func NewControlEffort(r mat.Matrix) *ControlEffort {
	c := &ControlEffort{}
	if r != nil {
		n, _ := r.Dims()
		c.weights = make([]float64, n)
		for i := range c.weights {
			c.weights[i] = r.At(i, i)
		}
	}
	return c
}

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) weight(i int) float64 {
	if i < len(c.weights) {
		return c.weights[i]
	}
	return 1
}

func (c *ControlEffort) Observe(x sim.State, u sim.Control, t float64) {
	for i, v := range u {
		c.energy += c.weight(i) * v * v
	}
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.energy / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.energy = 0
	c.samples = 0
}

// Saturation is the fraction of controller samples with at least one
// input at or beyond ±limit.
type Saturation struct {
	limit     float64
	saturated int
	samples   int
}

func NewSaturation(limit float64) *Saturation {
	return &Saturation{limit: limit}
}

func (s *Saturation) Name() string { return "input_saturation" }

func (s *Saturation) Observe(x sim.State, u sim.Control, t float64) {
	s.samples++
	for _, v := range u {
		if math.Abs(v) >= s.limit*(1-1e-9) {
			s.saturated++
			return
		}
	}
}

func (s *Saturation) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return float64(s.saturated) / float64(s.samples)
}

func (s *Saturation) Reset() {
	s.saturated = 0
	s.samples = 0
}
