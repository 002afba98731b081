package integrators

import (
	"fmt"
	"sort"

	"github.com/san-kum/chainbench/internal/sim"
)

// Euler is the explicit first-order step, kept as a cheap reference for
// the rollout.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn sim.Dynamics, x sim.State, u sim.Control, t float64, dt float64) sim.State {
	dx := dyn.Derivative(x, u, t)
	next := make(sim.State, len(x))
	for i := range x {
		next[i] = x[i] + dt*dx[i]
	}
	return next
}

var registry = map[string]func() sim.Integrator{
	"euler": func() sim.Integrator { return NewEuler() },
	"rk4":   func() sim.Integrator { return NewRK4() },
}

// ByName returns a fresh integrator registered under name.
func ByName(name string) (sim.Integrator, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

// Names lists the registered integrators in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
