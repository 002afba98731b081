package report

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/chainbench/internal/bench"
	"github.com/san-kum/chainbench/internal/param"
)

var (
	ErrNoResults   = errors.New("report: no successful results")
	ErrUnknownAxis = errors.New("report: axis not found in result keys")
)

// SolverSummary averages the successful cells of one solver.
type SolverSummary struct {
	Name       string
	Cells      int
	Failed     int
	SetupTime  float64
	SolveTime  float64
	Iterations float64
}

// Speedup compares two solvers on the keys both solved: the ratio is
// reference time over compared time, so values above one favour Compared.
type Speedup struct {
	Reference string
	Compared  string
	Avg       float64
	Min       float64
	Max       float64
	Keys      int
}

type Analysis struct {
	Solvers  []SolverSummary
	Speedups []Speedup
	Fastest  string
	Slowest  string
	Best     *Speedup
}

func (a *Analysis) Summary(name string) (SolverSummary, bool) {
	for _, s := range a.Solvers {
		if s.Name == name {
			return s, true
		}
	}
	return SolverSummary{}, false
}

func (a *Analysis) Speedup(ref, comp string) (Speedup, bool) {
	for _, s := range a.Speedups {
		if s.Reference == ref && s.Compared == comp {
			return s, true
		}
	}
	return Speedup{}, false
}

func Analyze(rep *bench.Report) (*Analysis, error) {
	names := rep.SolverNames()
	keys := rep.Keys()
	out := &Analysis{}

	for _, name := range names {
		var setup, solve, iters []float64
		failed := 0
		for _, k := range keys {
			cell, ok := rep.Results[k][name]
			if !ok {
				continue
			}
			if cell.Failed {
				failed++
				continue
			}
			setup = append(setup, cell.SetupTime)
			solve = append(solve, cell.SolveTimes.Mean)
			iters = append(iters, cell.Iterations.Mean)
		}
		if len(solve) == 0 {
			out.Solvers = append(out.Solvers, SolverSummary{Name: name, Failed: failed})
			continue
		}
		out.Solvers = append(out.Solvers, SolverSummary{
			Name:       name,
			Cells:      len(solve),
			Failed:     failed,
			SetupTime:  stat.Mean(setup, nil),
			SolveTime:  stat.Mean(solve, nil),
			Iterations: stat.Mean(iters, nil),
		})
	}

	fastest, slowest := math.Inf(1), math.Inf(-1)
	for _, s := range out.Solvers {
		if s.Cells == 0 {
			continue
		}
		if s.SolveTime < fastest {
			fastest, out.Fastest = s.SolveTime, s.Name
		}
		if s.SolveTime > slowest {
			slowest, out.Slowest = s.SolveTime, s.Name
		}
	}
	if out.Fastest == "" {
		return out, ErrNoResults
	}

	for _, ref := range names {
		for _, comp := range names {
			if ref == comp {
				continue
			}
			var ratios []float64
			for _, k := range keys {
				a, okA := rep.Results[k][ref]
				b, okB := rep.Results[k][comp]
				if !okA || !okB || a.Failed || b.Failed || b.SolveTimes.Mean <= 0 {
					continue
				}
				ratios = append(ratios, a.SolveTimes.Mean/b.SolveTimes.Mean)
			}
			if len(ratios) == 0 {
				continue
			}
			out.Speedups = append(out.Speedups, Speedup{
				Reference: ref,
				Compared:  comp,
				Avg:       stat.Mean(ratios, nil),
				Min:       floats.Min(ratios),
				Max:       floats.Max(ratios),
				Keys:      len(ratios),
			})
		}
	}
	for i := range out.Speedups {
		if out.Best == nil || out.Speedups[i].Avg > out.Best.Avg {
			out.Best = &out.Speedups[i]
		}
	}
	return out, nil
}

// Point is the mean solve time of one solver at one axis value,
// averaged over the remaining axes.
type Point struct {
	X    float64
	Mean float64
	Std  float64
}

// Series groups successful cells of solver by the value of axis.
func Series(rep *bench.Report, axis, solver string) ([]Point, error) {
	groups := make(map[float64][]bench.CellResult)
	found := false
	for key, cells := range rep.Results {
		x, ok := axisValue(rep, key, axis)
		if !ok {
			continue
		}
		found = true
		cell, ok := cells[solver]
		if !ok || cell.Failed {
			continue
		}
		groups[x] = append(groups[x], cell)
	}
	if !found {
		return nil, ErrUnknownAxis
	}

	pts := make([]Point, 0, len(groups))
	for x, cells := range groups {
		means := make([]float64, len(cells))
		stds := make([]float64, len(cells))
		for i, c := range cells {
			means[i] = c.SolveTimes.Mean
			stds[i] = c.SolveTimes.Std
		}
		pts = append(pts, Point{X: x, Mean: stat.Mean(means, nil), Std: stat.Mean(stds, nil)})
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].X < pts[j].X })
	return pts, nil
}

// AxisValues lists the distinct numeric values of axis, ascending.
func AxisValues(rep *bench.Report, axis string) []float64 {
	seen := make(map[float64]bool)
	var xs []float64
	for key := range rep.Results {
		if x, ok := axisValue(rep, key, axis); ok && !seen[x] {
			seen[x] = true
			xs = append(xs, x)
		}
	}
	sort.Float64s(xs)
	return xs
}

// axisValue reads axis from a combination key. Without stored axes the
// key is split on underscores and the first numeric part with the axis
// name as prefix wins.
func axisValue(rep *bench.Report, key, axis string) (float64, bool) {
	if names := rep.Metadata.Parameters.Names(); len(names) > 0 {
		c, err := param.ParseKey(key, names)
		if err != nil {
			return 0, false
		}
		x, err := c.Float(axis, math.NaN())
		if err != nil || math.IsNaN(x) {
			return 0, false
		}
		return x, true
	}
	for _, part := range strings.Split(key, "_") {
		if rest, ok := strings.CutPrefix(part, axis); ok {
			if x, err := strconv.ParseFloat(rest, 64); err == nil {
				return x, true
			}
		}
	}
	return 0, false
}
