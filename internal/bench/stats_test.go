package bench

import (
	"math"
	"testing"
)

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{1, 2, 3, 4, 5})
	if s.Mean != 3 {
		t.Errorf("mean: got %v want 3", s.Mean)
	}
	if math.Abs(s.Std-math.Sqrt2) > 1e-12 {
		t.Errorf("std: got %v want %v", s.Std, math.Sqrt2)
	}
	if s.Median != 3 || s.Min != 1 || s.Max != 5 {
		t.Errorf("median/min/max: got %v %v %v", s.Median, s.Min, s.Max)
	}
	if len(s.Samples) != 5 {
		t.Errorf("expected 5 samples, got %d", len(s.Samples))
	}
}

func TestSummarizeEvenMedian(t *testing.T) {
	s := Summarize([]float64{4, 1, 3, 2})
	if s.Median != 2.5 {
		t.Errorf("median: got %v want 2.5", s.Median)
	}
	if s.Samples[0] != 4 {
		t.Error("samples must keep their order")
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Samples == nil || len(s.Samples) != 0 {
		t.Errorf("expected empty sample slice, got %v", s.Samples)
	}
}
