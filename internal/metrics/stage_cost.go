package metrics

import "github.com/san-kum/chainbench/internal/sim"

// CostModel evaluates the quadratic stage cost xᵀQx + uᵀRu.
type CostModel interface {
	StageCost(x, u []float64) float64
}

// StageCost accumulates the stage cost at every controller sample.
type StageCost struct {
	model   CostModel
	total   float64
	samples int
}

func NewStageCost(model CostModel) *StageCost {
	return &StageCost{model: model}
}

func (s *StageCost) Name() string { return "stage_cost" }

func (s *StageCost) Observe(x sim.State, u sim.Control, t float64) {
	s.total += s.model.StageCost(x, u)
	s.samples++
}

func (s *StageCost) Value() float64 { return s.total }

func (s *StageCost) Reset() {
	s.total = 0
	s.samples = 0
}
