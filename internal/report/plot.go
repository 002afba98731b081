package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/chainbench/internal/bench"
)

// SpeedupFloor is the lowest relative speed-up drawn; bars below it are
// clipped and left unlabeled.
const SpeedupFloor = -70.0

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
)

type errorPoints struct {
	plotter.XYs
	plotter.YErrors
}

func stylePlot(p *plot.Plot) {
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.X.Label.TextStyle.Font.Size = vg.Points(13)
	p.Y.Label.TextStyle.Font.Size = vg.Points(13)
	p.X.Tick.Label.Font.Size = vg.Points(11)
	p.Y.Tick.Label.Font.Size = vg.Points(11)
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
}

// save writes p to path; the extension picks the format.
func save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("report: cannot create directory: %w", err)
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}

// SaveRuntimePlot draws mean solve time against axis on a log scale with
// ±std error bars, one line per solver.
func SaveRuntimePlot(rep *bench.Report, axis, path string) error {
	if len(AxisValues(rep, axis)) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownAxis, axis)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: solve time", rep.Metadata.ProblemClass)
	p.X.Label.Text = axis
	p.Y.Label.Text = "solve time (s)"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	stylePlot(p)

	drawn := 0
	for i, name := range rep.SolverNames() {
		pts, err := Series(rep, axis, name)
		if err != nil {
			return err
		}
		var ep errorPoints
		for _, pt := range pts {
			if pt.Mean <= 0 {
				continue
			}
			ep.XYs = append(ep.XYs, plotter.XY{X: pt.X, Y: pt.Mean})
			// keep the lower whisker positive for the log axis
			low := math.Min(pt.Std, 0.9*pt.Mean)
			ep.YErrors = append(ep.YErrors, struct{ Low, High float64 }{low, pt.Std})
		}
		if len(ep.XYs) == 0 {
			continue
		}

		line, points, err := plotter.NewLinePoints(ep.XYs)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(2)
		points.Color = plotutil.Color(i)
		points.Shape = plotutil.Shape(i)

		bars, err := plotter.NewYErrorBars(ep)
		if err != nil {
			return err
		}
		bars.Color = plotutil.Color(i)

		p.Add(line, points, bars)
		p.Legend.Add(name, line, points)
		drawn++
	}
	if drawn == 0 {
		return ErrNoResults
	}
	return save(p, path)
}

// RelativeSpeedup is (baseline/time - 1)·100, floored at SpeedupFloor.
func RelativeSpeedup(baseline, t float64) float64 {
	if t <= 0 || baseline <= 0 {
		return 0
	}
	return math.Max((baseline/t-1)*100, SpeedupFloor)
}

// SaveSpeedupPlot draws grouped bars of each solver's relative speed-up
// over baseline at every value of axis.
func SaveSpeedupPlot(rep *bench.Report, axis, baseline, path string) error {
	xs := AxisValues(rep, axis)
	if len(xs) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownAxis, axis)
	}
	base, err := Series(rep, axis, baseline)
	if err != nil {
		return err
	}
	if len(base) == 0 {
		return fmt.Errorf("%w: baseline %s", ErrNoResults, baseline)
	}
	baseAt := make(map[float64]float64, len(base))
	for _, pt := range base {
		baseAt[pt.X] = pt.Mean
	}

	var others []string
	for _, name := range rep.SolverNames() {
		if name != baseline {
			others = append(others, name)
		}
	}
	if len(others) == 0 {
		return fmt.Errorf("%w: nothing to compare with %s", ErrNoResults, baseline)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("speed-up over %s", baseline)
	p.X.Label.Text = axis
	p.Y.Label.Text = "relative speed-up (%)"
	stylePlot(p)

	width := vg.Points(float64(48 / len(others)))
	if width < vg.Points(4) {
		width = vg.Points(4)
	}
	top := 70.0
	for i, name := range others {
		pts, err := Series(rep, axis, name)
		if err != nil {
			return err
		}
		at := make(map[float64]float64, len(pts))
		for _, pt := range pts {
			at[pt.X] = pt.Mean
		}

		vals := make(plotter.Values, len(xs))
		var labels plotter.XYLabels
		for j, x := range xs {
			t, ok := at[x]
			b, okB := baseAt[x]
			if !ok || !okB {
				continue
			}
			v := RelativeSpeedup(b, t)
			vals[j] = v
			top = math.Max(top, v+10)
			text := fmt.Sprintf("%.0f", v)
			if v <= SpeedupFloor {
				text = ""
			}
			labels.XYs = append(labels.XYs, plotter.XY{X: float64(j), Y: v})
			labels.Labels = append(labels.Labels, text)
		}

		bars, err := plotter.NewBarChart(vals, width)
		if err != nil {
			return err
		}
		offset := width * vg.Length(float64(i)-float64(len(others)-1)/2)
		bars.Offset = offset
		bars.Color = plotutil.Color(i)
		bars.LineStyle.Width = 0
		p.Add(bars)
		p.Legend.Add(name, bars)

		if len(labels.XYs) > 0 {
			lbl, err := plotter.NewLabels(labels)
			if err != nil {
				return err
			}
			lbl.Offset = vg.Point{X: offset - width/3}
			for k := range lbl.TextStyle {
				lbl.TextStyle[k].Font.Size = vg.Points(7)
			}
			p.Add(lbl)
		}
	}

	p.NominalX(axisNames(xs)...)
	p.Y.Min = SpeedupFloor
	p.Y.Max = top
	return save(p, path)
}
