package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/chainbench/internal/bench"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ffff"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("#444466"))

	goodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff88"))
	badStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444"))
	subtle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#666688"))
)

// WriteSummary prints the per-solver averages and the speed-up matrix.
func WriteSummary(w io.Writer, rep *bench.Report, a *Analysis) error {
	meta := rep.Metadata
	if meta.ProblemClass != "" {
		fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s / %s", meta.ProblemClass, meta.Name)))
		fmt.Fprintln(w, subtle.Render(fmt.Sprintf("%s  runs=%d  eps=%g  seed=%d", meta.Timestamp, meta.Runs, meta.Eps, meta.Seed)))
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, headerStyle.Render("Average performance"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "solver\tcells\tfailed\tsetup (ms)\tsolve (ms)\titerations")
	for _, s := range a.Solvers {
		if s.Cells == 0 {
			fmt.Fprintf(tw, "%s\t0\t%d\t-\t-\t-\n", s.Name, s.Failed)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.3f\t%.3f\t%.1f\n",
			s.Name, s.Cells, s.Failed, s.SetupTime*1e3, s.SolveTime*1e3, s.Iterations)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	if len(a.Speedups) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Relative speed-up (row time / column time)"))
		var names []string
		for _, s := range a.Solvers {
			if s.Cells > 0 {
				names = append(names, s.Name)
			}
		}
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "\t"+strings.Join(names, "\t"))
		for _, ref := range names {
			row := []string{ref}
			for _, comp := range names {
				if sp, ok := a.Speedup(ref, comp); ok {
					row = append(row, fmt.Sprintf("%.2f [%.2f, %.2f]", sp.Avg, sp.Min, sp.Max))
				} else {
					row = append(row, "-")
				}
			}
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "fastest: %s\n", goodStyle.Render(a.Fastest))
	fmt.Fprintf(w, "slowest: %s\n", badStyle.Render(a.Slowest))
	if a.Best != nil {
		fmt.Fprintf(w, "max speed-up: %s is %.2fx faster than %s\n", a.Best.Compared, a.Best.Avg, a.Best.Reference)
	}
	return nil
}

// Chart draws mean solve time in milliseconds against axis, one line per
// solver.
func Chart(rep *bench.Report, axis string, height, width int) (string, error) {
	xs := AxisValues(rep, axis)
	if len(xs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownAxis, axis)
	}

	var data [][]float64
	var legend []string
	for _, name := range rep.SolverNames() {
		pts, err := Series(rep, axis, name)
		if err != nil {
			return "", err
		}
		if len(pts) == 0 {
			continue
		}
		line := make([]float64, len(pts))
		for i, p := range pts {
			line[i] = p.Mean * 1e3
		}
		if len(line) == 1 {
			line = append(line, line[0])
		}
		data = append(data, line)
		legend = append(legend, name)
	}
	if len(data) == 0 {
		return "", ErrNoResults
	}

	colors := []asciigraph.AnsiColor{asciigraph.Cyan, asciigraph.Green, asciigraph.Yellow, asciigraph.Red, asciigraph.Magenta, asciigraph.Blue, asciigraph.White}
	series := make([]asciigraph.AnsiColor, len(data))
	for i := range series {
		series[i] = colors[i%len(colors)]
	}

	caption := fmt.Sprintf("solve time (ms) vs %s %v: %s", axis, xs, strings.Join(legend, ", "))
	return asciigraph.PlotMany(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.SeriesColors(series...),
		asciigraph.Caption(caption),
	), nil
}
