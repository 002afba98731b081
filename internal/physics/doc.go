// Package physics provides the chain-of-masses model used to generate
// benchmark problems.
//
// [ChainMass] holds the continuous dynamics, the zero-order-hold
// discretization at [SampleTime], the quadratic weights and the LQR
// terminal cost obtained from the discrete algebraic Riccati equation:
//
//	sys, err := physics.NewChainMass(physics.DefaultParams(5, 10))
//	if err != nil {
//	    return err
//	}
//	_ = sys.Ad // 10x10
//
// The model also implements [sim.Dynamics] so the same chain can be
// integrated in continuous time by the rollout.
package physics
