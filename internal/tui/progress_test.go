package tui

import (
	"bytes"
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	. "github.com/onsi/gomega"

	"github.com/san-kum/chainbench/internal/bench"
	"github.com/san-kum/chainbench/internal/param"
	"github.com/san-kum/chainbench/internal/solver"
)

func TestModelTracksCells(t *testing.T) {
	g := NewWithT(t)
	var m tea.Model = newModel("chain_mass_ocp / quick", nil)

	m, _ = m.Update(cellMsg{Key: "M2_N10", Solver: "riccati", Done: 1, Total: 3,
		Cell: bench.CellResult{SolveTimes: bench.Statistics{Mean: 0.0015}}})
	m, _ = m.Update(cellMsg{Key: "M2_N10", Solver: "admm", Done: 2, Total: 3,
		Cell: bench.CellResult{Failed: true, Stage: bench.StageSolve}})
	m, _ = m.Update(cellMsg{Key: "M2_N10", Solver: "lsei", Done: 3, Total: 3, Skipped: true})

	mm := m.(model)
	g.Expect(mm.done).To(Equal(3))
	g.Expect(mm.failed).To(Equal(1))
	g.Expect(mm.skipped).To(Equal(1))

	view := mm.View()
	g.Expect(view).To(ContainSubstring("3/3"))
	g.Expect(view).To(ContainSubstring("1.500 ms"))
	g.Expect(view).To(ContainSubstring("skipped"))

	_, cmd := m.Update(doneMsg{})
	g.Expect(cmd).NotTo(BeNil())
}

func TestModelTotalFollowsSweep(t *testing.T) {
	g := NewWithT(t)
	var m tea.Model = newModel("chain_mass_scenario / quick", nil)
	g.Expect(m.View()).To(ContainSubstring("checking solvers"))

	// Two of three solvers fit: the sweep reports a total of two cells.
	m, _ = m.Update(cellMsg{Key: "M2_Ns1", Solver: "ipm_sparse", Done: 1, Total: 2})
	m, _ = m.Update(cellMsg{Key: "M2_Ns1", Solver: "admm", Done: 2, Total: 2})
	mm := m.(model)
	g.Expect(mm.total).To(Equal(2))
	g.Expect(mm.View()).To(ContainSubstring("2/2"))
	g.Expect(mm.View()).To(ContainSubstring(progressBar(1, mm.width)))
}

func TestModelKeepsRecentCells(t *testing.T) {
	g := NewWithT(t)
	var m tea.Model = newModel("x", nil)
	for i := 1; i <= 20; i++ {
		m, _ = m.Update(cellMsg{Key: "k", Solver: "s", Done: i, Total: 20})
	}
	g.Expect(m.(model).recent).To(HaveLen(recentCells))
}

func TestQuitCancels(t *testing.T) {
	g := NewWithT(t)
	ctx, cancel := context.WithCancel(context.Background())
	var m tea.Model = newModel("x", cancel)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	g.Expect(ctx.Err()).To(MatchError(context.Canceled))
	g.Expect(m.View()).To(ContainSubstring("stopping"))
}

func TestRunSweepHeadless(t *testing.T) {
	g := NewWithT(t)
	s, err := solver.New("riccati", solver.Options{Eps: 1e-8})
	g.Expect(err).NotTo(HaveOccurred())
	sw := &bench.Sweep{
		Class:   "chain_mass_ocp",
		Name:    "tui",
		Axes:    param.Axes{{Name: "M", Values: []any{2}}, {Name: "N", Values: []any{5}}},
		Runs:    2,
		Seed:    bench.DefaultSeed,
		Solvers: []solver.Solver{s},
	}

	var out bytes.Buffer
	rep, err := RunSweep(context.Background(), sw,
		tea.WithInput(nil), tea.WithOutput(&out), tea.WithoutRenderer())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(rep.Results).To(HaveKey("M2_N5"))
	g.Expect(rep.Results["M2_N5"]["riccati"].Failed).To(BeFalse())
	g.Expect(sw.OnCell).To(BeNil())
}

func TestRunSweepReportsCompatibleTotal(t *testing.T) {
	g := NewWithT(t)
	solvers, err := solver.Build([]string{"riccati", "ipm_sparse"}, solver.Options{Eps: 1e-8})
	g.Expect(err).NotTo(HaveOccurred())
	sw := &bench.Sweep{
		Class:   "chain_mass_scenario",
		Name:    "tui",
		Axes:    param.Axes{{Name: "M", Values: []any{2}}, {Name: "Ns", Values: []any{1, 2}}, {Name: "N", Values: []any{4}}},
		Runs:    1,
		Seed:    bench.DefaultSeed,
		Solvers: solvers,
	}
	var events []bench.CellEvent
	sw.OnCell = func(e bench.CellEvent) { events = append(events, e) }

	var out bytes.Buffer
	_, err = RunSweep(context.Background(), sw,
		tea.WithInput(nil), tea.WithOutput(&out), tea.WithoutRenderer())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(events).To(HaveLen(2))
	last := events[len(events)-1]
	g.Expect(last.Done).To(Equal(last.Total))
	g.Expect(last.Total).To(Equal(2))
}
