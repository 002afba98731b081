// Package backend contains the numerical QP and OCP solvers driven by the
// benchmark adapters in package solver.
//
//   - IPM: sparse primal-dual interior point on the condensed QP, one
//     quasi-definite LDLᵀ per iteration.
//   - Riccati: interior point on the dense OCP, Newton steps by a Riccati
//     recursion over the horizon.
//   - ADMM: operator splitting with a cached KKT factorization.
//   - LSEI: dense least squares with equality and inequality constraints
//     from curioloop/optimizer, an exact active-set reference.
//
// Every backend is set up once and then solved repeatedly; only the
// x0-tied bounds change between solves.
package backend
