package problem

import "math/rand"

// Problem is a benchmark instance with a mutable initial state.
type Problem interface {
	Name() string
	Shapes() Shape
	X0() []float64
	// RandomizeX0 draws a new initial state and rewrites the x0-tied
	// bounds of every representation in place.
	RandomizeX0(rng *rand.Rand)
}

// OCPProblem offers the dense multi-stage representation.
type OCPProblem interface {
	Problem
	OCP() *OCP
	// RecoverOCP maps stage-wise primal values, possibly in an augmented
	// state, back to physical trajectories.
	RecoverOCP(xs, us [][]float64) (Solution, error)
}

// QPProblem offers the condensed representation.
type QPProblem interface {
	Problem
	QP() *QP
	RecoverQP(x []float64) (Solution, error)
}

// PrimalGuesser provides a QP-layout starting point rolled out from the
// current initial state under zero control.
type PrimalGuesser interface {
	PrimalGuess() []float64
}

// Trajectory holds N+1 states and N controls, stage major.
type Trajectory struct {
	X [][]float64 `json:"x"`
	U [][]float64 `json:"u"`
}

// Solution holds one trajectory per scenario, a single one otherwise.
type Solution struct {
	Trajectories []Trajectory `json:"trajectories"`
}

// RandomX0 draws the two-stage random initial state: a radius b uniform
// in [0.5, 1.5), then every component uniform in [-b, b). The draw order
// is fixed so runs are reproducible under a seed.
func RandomX0(rng *rand.Rand, nx int) []float64 {
	x := make([]float64, nx)
	b := 0.5 + rng.Float64()
	for i := range x {
		x[i] = -b + 2*b*rng.Float64()
	}
	return x
}
