package bench

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Statistics summarises a sample sequence. Std is the population
// standard deviation.
type Statistics struct {
	Mean    float64   `json:"mean"`
	Std     float64   `json:"std"`
	Median  float64   `json:"median"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Samples []float64 `json:"samples"`
}

func Summarize(samples []float64) Statistics {
	if len(samples) == 0 {
		return Statistics{Samples: []float64{}}
	}
	mean, std := stat.PopMeanStdDev(samples, nil)
	return Statistics{
		Mean:    mean,
		Std:     std,
		Median:  median(samples),
		Min:     floats.Min(samples),
		Max:     floats.Max(samples),
		Samples: append([]float64(nil), samples...),
	}
}

// median averages the two middle values of an even-length sample.
func median(samples []float64) float64 {
	s := append([]float64(nil), samples...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return 0.5 * (s[n/2-1] + s[n/2])
}
