package metrics

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/san-kum/chainbench/internal/sim"
)

// Oscillation reports the dominant frequency in Hz of one state
// component, from the spectrum of its sampled history. The DC bin is
// ignored.
type Oscillation struct {
	index   int
	values  []float64
	t0, t1  float64
	samples int
}

func NewOscillation(index int) *Oscillation {
	return &Oscillation{index: index}
}

func (o *Oscillation) Name() string { return "oscillation_freq" }

func (o *Oscillation) Observe(x sim.State, u sim.Control, t float64) {
	if o.index >= len(x) {
		return
	}
	switch o.samples {
	case 0:
		o.t0 = t
	case 1:
		o.t1 = t
	}
	o.values = append(o.values, x[o.index])
	o.samples++
}

func (o *Oscillation) Value() float64 {
	n := len(o.values)
	if n < 4 || o.t1 <= o.t0 {
		return 0
	}
	spectrum := fft.FFTReal(o.values)
	best, bestMag := 0, 0.0
	for k := 1; k <= n/2; k++ {
		if mag := cmplx.Abs(spectrum[k]); mag > bestMag {
			best, bestMag = k, mag
		}
	}
	return float64(best) / (float64(n) * (o.t1 - o.t0))
}

func (o *Oscillation) Reset() {
	o.values = o.values[:0]
	o.samples = 0
	o.t0, o.t1 = 0, 0
}
