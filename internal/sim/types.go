package sim

import (
	"errors"
	"math"
)

var (
	ErrDiverged      = errors.New("sim: state diverged (NaN or Inf detected)")
	ErrInvalidConfig = errors.New("sim: invalid configuration")
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	var sum float64
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

type Control []float64

type Dynamics interface {
	Derivative(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn Dynamics, x State, u Control, t float64, dt float64) State
}

// Controller returns the input to hold until the next sample.
type Controller interface {
	Compute(x State, t float64) (Control, error)
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

// Config describes a run. Hold is the controller sample period; the
// computed input is held constant in between. A zero Hold samples the
// controller on every integration step.
type Config struct {
	Dt       float64
	Duration float64
	Hold     float64
}

type Result struct {
	States   []State
	Controls []Control
	Times    []float64
	Metrics  map[string]float64
}
