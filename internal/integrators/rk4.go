package integrators

import "github.com/san-kum/chainbench/internal/sim"

// RK4 is the classic fourth-order Runge-Kutta step. The input is held
// constant across the step.
type RK4 struct {
	k1, k2, k3, k4 sim.State
	scratch        sim.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(sim.State, n)
		r.k2 = make(sim.State, n)
		r.k3 = make(sim.State, n)
		r.k4 = make(sim.State, n)
		r.scratch = make(sim.State, n)
	}
}

func (r *RK4) Step(dyn sim.Dynamics, x sim.State, u sim.Control, t, dt float64) sim.State {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k1, dyn.Derivative(x, u, t))
	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + 0.5*dt*r.k1[i]
	}
	copy(r.k2, dyn.Derivative(r.scratch, u, t+0.5*dt))
	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + 0.5*dt*r.k2[i]
	}
	copy(r.k3, dyn.Derivative(r.scratch, u, t+0.5*dt))
	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	copy(r.k4, dyn.Derivative(r.scratch, u, t+dt))

	next := make(sim.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		next[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
	return next
}
