// Package bench runs solvers repeatedly on randomized problem instances
// and sweeps the Cartesian grid of problem parameters.
package bench
