// Package control provides the discrete algebraic Riccati solver used for
// terminal costs and the feedback laws used by rollouts.
//
//   - [SolveDARE]: stabilizing DARE solution by structured doubling
//   - [RiccatiResidual]: relative residual of a candidate solution
//   - [LQR]: static state feedback from a Riccati solution
//   - [None]: zero input
//
// Controllers implement [sim.Controller].
package control
