// Package problem builds benchmark instances from the chain-of-masses
// model.
//
// A problem advertises the representations it can produce through a Shape
// bit set. The dense optimal control form (OCP) keeps per-stage matrices
// for stage-wise solvers; the condensed form (QP) stacks all stage
// variables into one decision vector
//
//	[x0, u0, x1, u1, ..., x_{N-1}, u_{N-1}, xN]
//
// with dynamics as equality rows. Both forms of one instance have the same
// optimal trajectory. The scenario tree form shares its first stage
// between scenarios that differ in the spring constant.
//
// Only the initial state changes between benchmark runs; RandomizeX0
// rewrites it in place and leaves every matrix untouched.
package problem
