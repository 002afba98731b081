package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/chainbench/internal/sim"
)

type unitCost struct{}

func (unitCost) StageCost(x, u []float64) float64 {
	var s float64
	for _, v := range x {
		s += v * v
	}
	for _, v := range u {
		s += 0.1 * v * v
	}
	return s
}

func TestControlEffort(t *testing.T) {
	tests := []struct {
		name string
		r    mat.Matrix
		want float64
	}{
		{"unit weights", nil, 3},
		{"input weight", mat.NewDiagDense(2, []float64{0.1, 0.1}), 0.3},
		{"uneven weights", mat.NewDiagDense(2, []float64{1, 0}), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewControlEffort(tt.r)
			m.Observe(sim.State{0}, sim.Control{1, -2}, 0)
			m.Observe(sim.State{0}, sim.Control{0, 1}, 0.5)
			if got := m.Value(); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			m.Reset()
			if m.Value() != 0 {
				t.Error("reset should clear the effort")
			}
		})
	}
}

func TestSaturation(t *testing.T) {
	m := NewSaturation(0.5)
	if m.Value() != 0 {
		t.Fatal("no samples should give zero")
	}
	m.Observe(sim.State{0}, sim.Control{0.5, 0}, 0)
	m.Observe(sim.State{0}, sim.Control{0.1, 0.2}, 0.5)
	m.Observe(sim.State{0}, sim.Control{0, -0.7}, 1)
	if got := m.Value(); math.Abs(got-2.0/3) > 1e-12 {
		t.Errorf("expected 2/3, got %v", got)
	}
	if m.Name() != "input_saturation" {
		t.Errorf("unexpected name %s", m.Name())
	}
}

func TestStageCost(t *testing.T) {
	m := NewStageCost(unitCost{})
	m.Observe(sim.State{1, 2}, sim.Control{1}, 0)
	m.Observe(sim.State{0, 1}, sim.Control{0}, 0.5)

	if got := m.Value(); math.Abs(got-6.1) > 1e-12 {
		t.Errorf("expected 6.1, got %f", got)
	}
	if m.Name() != "stage_cost" {
		t.Errorf("unexpected name %s", m.Name())
	}
}

func TestBoundViolation(t *testing.T) {
	m := NewBoundViolation(4, 0.5)
	m.Observe(sim.State{1, -3}, sim.Control{0.2}, 0)
	if m.Value() != 0 {
		t.Errorf("expected no violation, got %f", m.Value())
	}

	m.Observe(sim.State{-4.5, 0}, sim.Control{0.7}, 0.5)
	if got := m.Value(); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("expected 0.5, got %f", got)
	}
	m.Observe(sim.State{0}, sim.Control{-1.5}, 1)
	if got := m.Value(); math.Abs(got-1) > 1e-12 {
		t.Errorf("expected 1, got %f", got)
	}

	m.Reset()
	if m.Value() != 0 {
		t.Error("reset should clear the violation")
	}
}

func TestOscillationFindsDominantFrequency(t *testing.T) {
	m := NewOscillation(0)
	const hold = 0.5
	for i := 0; i < 64; i++ {
		ts := float64(i) * hold
		m.Observe(sim.State{math.Sin(2*math.Pi*0.25*ts) + 0.2}, nil, ts)
	}
	if got := m.Value(); math.Abs(got-0.25) > 1e-12 {
		t.Errorf("expected 0.25 Hz, got %f", got)
	}

	m.Reset()
	if m.Value() != 0 {
		t.Error("reset should clear the history")
	}
}
