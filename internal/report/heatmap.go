package report

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/chainbench/internal/bench"
)

const heatmapColors = 64

// Grid holds the speed-up of one solver over another on two axes.
// Values[r][c] belongs to Rows[r] and Cols[c]; cells where the two
// solvers have no common result are NaN.
type Grid struct {
	Reference, Compared string
	Rows, Cols          []float64
	Values              [][]float64
}

// Range returns the smallest and largest finite value.
func (g *Grid) Range() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, row := range g.Values {
		for _, v := range row {
			if math.IsNaN(v) {
				continue
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	return lo, hi
}

// gridXYZ places the cells on integer coordinates so nominal ticks line
// up with them.
type gridXYZ struct{ *Grid }

func (g gridXYZ) Dims() (c, r int)   { return len(g.Cols), len(g.Rows) }
func (g gridXYZ) Z(c, r int) float64 { return g.Values[r][c] }
func (g gridXYZ) X(c int) float64    { return float64(c) }
func (g gridXYZ) Y(r int) float64    { return float64(r) }

// SpeedupGrid computes reference time over compared time for every
// (rowAxis, colAxis) pair, averaging the ratio over the remaining axes.
// Values above one favour compared.
func SpeedupGrid(rep *bench.Report, rowAxis, colAxis, reference, compared string) (*Grid, error) {
	rows := AxisValues(rep, rowAxis)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAxis, rowAxis)
	}
	cols := AxisValues(rep, colAxis)
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAxis, colAxis)
	}
	rowIdx := index(rows)
	colIdx := index(cols)

	sums := make([][]float64, len(rows))
	counts := make([][]int, len(rows))
	for r := range rows {
		sums[r] = make([]float64, len(cols))
		counts[r] = make([]int, len(cols))
	}
	filled := 0
	for key, cells := range rep.Results {
		x, okX := axisValue(rep, key, rowAxis)
		y, okY := axisValue(rep, key, colAxis)
		a, okA := cells[reference]
		b, okB := cells[compared]
		if !okX || !okY || !okA || !okB || a.Failed || b.Failed || b.SolveTimes.Mean <= 0 {
			continue
		}
		r, c := rowIdx[x], colIdx[y]
		sums[r][c] += a.SolveTimes.Mean / b.SolveTimes.Mean
		counts[r][c]++
		filled++
	}
	if filled == 0 {
		return nil, fmt.Errorf("%w: %s against %s", ErrNoResults, compared, reference)
	}

	g := &Grid{Reference: reference, Compared: compared, Rows: rows, Cols: cols, Values: make([][]float64, len(rows))}
	for r := range rows {
		g.Values[r] = make([]float64, len(cols))
		for c := range cols {
			if counts[r][c] == 0 {
				g.Values[r][c] = math.NaN()
				continue
			}
			g.Values[r][c] = sums[r][c] / float64(counts[r][c])
		}
	}
	return g, nil
}

func index(xs []float64) map[float64]int {
	m := make(map[float64]int, len(xs))
	for i, x := range xs {
		m[x] = i
	}
	return m
}

// SaveSpeedupHeatmap draws SpeedupGrid as a heat map with one "%.1fx"
// label per cell. The colour scale starts at one or below.
func SaveSpeedupHeatmap(rep *bench.Report, rowAxis, colAxis, reference, compared, path string) error {
	g, err := SpeedupGrid(rep, rowAxis, colAxis, reference, compared)
	if err != nil {
		return err
	}
	lo, hi := g.Range()
	lo = math.Min(1, lo)
	if hi <= lo {
		hi = lo + 1
	}

	blues, err := moreland.NewLuminance([]color.Color{
		color.RGBA{R: 0x08, G: 0x30, B: 0x6b, A: 0xff},
		color.RGBA{R: 0x42, G: 0x92, B: 0xc6, A: 0xff},
		color.RGBA{R: 0xf7, G: 0xfb, B: 0xff, A: 0xff},
	})
	if err != nil {
		return fmt.Errorf("report: heat map palette: %w", err)
	}
	blues.SetMin(0)
	blues.SetMax(1)

	h := plotter.NewHeatMap(gridXYZ{g}, palette.Reverse(blues).Palette(heatmapColors))
	h.Min, h.Max = lo, hi
	h.NaN = color.Transparent

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s / %s", reference, compared)
	p.X.Label.Text = colAxis
	p.Y.Label.Text = rowAxis
	stylePlot(p)
	p.Add(h)

	var labels plotter.XYLabels
	var dark []bool
	for r := range g.Rows {
		for c := range g.Cols {
			v := g.Values[r][c]
			if math.IsNaN(v) {
				continue
			}
			labels.XYs = append(labels.XYs, plotter.XY{X: float64(c), Y: float64(r)})
			labels.Labels = append(labels.Labels, fmt.Sprintf("%.1fx", v))
			dark = append(dark, v > (lo+hi)/2)
		}
	}
	lbl, err := plotter.NewLabels(labels)
	if err != nil {
		return err
	}
	for k := range lbl.TextStyle {
		lbl.TextStyle[k].XAlign = text.XCenter
		lbl.TextStyle[k].YAlign = text.YCenter
		lbl.TextStyle[k].Font.Size = vg.Points(10)
		lbl.TextStyle[k].Color = color.Black
		if dark[k] {
			lbl.TextStyle[k].Color = color.White
		}
	}
	p.Add(lbl)

	p.NominalX(axisNames(g.Cols)...)
	p.NominalY(axisNames(g.Rows)...)
	return save(p, path)
}

func axisNames(xs []float64) []string {
	names := make([]string, len(xs))
	for i, x := range xs {
		names[i] = fmt.Sprintf("%g", x)
	}
	return names
}
