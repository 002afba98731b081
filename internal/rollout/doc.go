// Package rollout runs the chain of masses in closed loop, either under
// a fixed LQR gain or under receding-horizon control that re-solves the
// benchmark OCP with any registered solver.
package rollout
