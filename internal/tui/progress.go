// Package tui shows a running benchmark sweep in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/chainbench/internal/bench"
)

const recentCells = 8

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type cellMsg bench.CellEvent

type doneMsg struct{ err error }

type model struct {
	title   string
	started time.Time
	cancel  context.CancelFunc

	done, total     int
	failed, skipped int
	recent          []string

	finished  bool
	cancelled bool
	err       error
	width     int
}

// newModel starts without a total; the sweep reports it with every cell
// once incompatible solvers are dropped.
func newModel(title string, cancel context.CancelFunc) model {
	return model{
		title:   title,
		started: time.Now(),
		cancel:  cancel,
		width:   40,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.cancelled = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = max(10, min(60, msg.Width-30))
		return m, nil
	case cellMsg:
		m.done, m.total = msg.Done, msg.Total
		var line string
		switch {
		case msg.Skipped:
			m.skipped++
			line = dim.Render(fmt.Sprintf("%-24s %-12s skipped", msg.Key, msg.Solver))
		case msg.Cell.Failed:
			m.failed++
			line = red.Render(fmt.Sprintf("%-24s %-12s %s failed", msg.Key, msg.Solver, msg.Cell.Stage))
		default:
			line = fmt.Sprintf("%-24s %-12s %s", msg.Key, msg.Solver,
				green.Render(fmt.Sprintf("%.3f ms", msg.Cell.SolveTimes.Mean*1e3)))
		}
		m.recent = append(m.recent, line)
		if len(m.recent) > recentCells {
			m.recent = m.recent[len(m.recent)-recentCells:]
		}
		return m, nil
	case doneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func progressBar(percent float64, width int) string {
	filled := max(0, min(width, int(percent*float64(width))))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if percent >= 1 {
		return green.Render(bar)
	}
	return yellow.Render(bar)
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString("\n  " + cyan.Bold(true).Render(m.title) + "\n\n")

	if m.total > 0 {
		percent := float64(m.done) / float64(m.total)
		fmt.Fprintf(&b, "  %s %s\n", progressBar(percent, m.width),
			white.Render(fmt.Sprintf("%d/%d", m.done, m.total)))
	} else {
		fmt.Fprintf(&b, "  %s %s\n", progressBar(0, m.width), dim.Render("checking solvers"))
	}
	fmt.Fprintf(&b, "  %s\n\n", dim.Render(fmt.Sprintf("failed %d  skipped %d  elapsed %s",
		m.failed, m.skipped, time.Since(m.started).Round(time.Second))))

	for _, line := range m.recent {
		b.WriteString("  " + line + "\n")
	}

	switch {
	case m.finished && m.err != nil:
		b.WriteString("\n  " + red.Render(m.err.Error()) + "\n")
	case m.cancelled:
		b.WriteString("\n  " + yellow.Render("stopping after the current solve...") + "\n")
	case !m.finished:
		b.WriteString("\n  " + dim.Render("q to stop") + "\n")
	}
	return b.String()
}

// RunSweep runs sw while drawing its progress. Quitting the view cancels
// the sweep; the partial report is returned as by Sweep.Run.
func RunSweep(ctx context.Context, sw *bench.Sweep, opts ...tea.ProgramOption) (*bench.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	title := fmt.Sprintf("%s / %s", sw.Class, sw.Name)
	p := tea.NewProgram(newModel(title, cancel), opts...)

	prev := sw.OnCell
	sw.OnCell = func(e bench.CellEvent) {
		if prev != nil {
			prev(e)
		}
		p.Send(cellMsg(e))
	}
	defer func() { sw.OnCell = prev }()

	var (
		rep    *bench.Report
		runErr error
	)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		rep, runErr = sw.Run(ctx)
		p.Send(doneMsg{err: runErr})
	}()

	_, err := p.Run()
	cancel()
	<-finished
	if err != nil && runErr == nil {
		return rep, err
	}
	return rep, runErr
}
