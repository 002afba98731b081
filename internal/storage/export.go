package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/san-kum/chainbench/internal/bench"
	"github.com/san-kum/chainbench/internal/param"
)

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// ExportCSV writes one row per (combination, solver) cell. When the axes
// are known each parameter gets its own column.
func ExportCSV(w io.Writer, rep *bench.Report) error {
	cw := csv.NewWriter(w)
	names := rep.Metadata.Parameters.Names()

	header := append([]string{"key"}, names...)
	header = append(header,
		"solver", "variant", "setup_time",
		"solve_mean", "solve_std", "solve_median", "solve_min", "solve_max",
		"iter_mean", "iter_std", "iter_median", "iter_min", "iter_max",
		"failed", "stage", "error",
	)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, key := range rep.Keys() {
		values := make([]string, len(names))
		if len(names) > 0 {
			c, err := param.ParseKey(key, names)
			if err != nil {
				return fmt.Errorf("storage: export: %w", err)
			}
			for i, p := range c {
				values[i] = param.FormatValue(p.Value)
			}
		}
		for _, solver := range rep.SolverNames() {
			cell, ok := rep.Results[key][solver]
			if !ok {
				continue
			}
			st, it := cell.SolveTimes, cell.Iterations
			row := append([]string{key}, values...)
			row = append(row,
				solver, cell.Variant, ftoa(cell.SetupTime),
				ftoa(st.Mean), ftoa(st.Std), ftoa(st.Median), ftoa(st.Min), ftoa(st.Max),
				ftoa(it.Mean), ftoa(it.Std), ftoa(it.Median), ftoa(it.Min), ftoa(it.Max),
				strconv.FormatBool(cell.Failed), string(cell.Stage), cell.Error,
			)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveStates writes a closed-loop trajectory as states.csv under a new
// rollout directory and returns the directory name.
func (s *Store) SaveStates(name string, times []float64, states, controls [][]float64) (string, error) {
	runID := fmt.Sprintf("rollout_%s_%s", name, time.Now().Format(bench.TimestampLayout))
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(runDir, "states.csv"))
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if len(states) == 0 {
		w.Flush()
		return runID, w.Error()
	}

	header := []string{"time"}
	for i := range states[0] {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	nu := 0
	if len(controls) > 0 {
		nu = len(controls[0])
	}
	for i := 0; i < nu; i++ {
		header = append(header, fmt.Sprintf("u%d", i))
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for i := range states {
		row := []string{strconv.FormatFloat(times[i], 'f', 6, 64)}
		for _, v := range states[i] {
			row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
		}
		for j := 0; j < nu; j++ {
			v := 0.0
			if i < len(controls) {
				v = controls[i][j]
			}
			row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return runID, w.Error()
}

// LoadStates reads back the state columns and times of a rollout.
func (s *Store) LoadStates(runID string) ([][]float64, []float64, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, "states.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrResultNotFound, runID)
		}
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrResultMalformed, runID, err)
	}
	if len(records) < 2 {
		return [][]float64{}, []float64{}, nil
	}

	nx := 0
	for _, h := range records[0][1:] {
		if len(h) > 0 && h[0] == 'x' {
			nx++
		}
	}
	times := make([]float64, 0, len(records)-1)
	states := make([][]float64, 0, len(records)-1)
	for _, record := range records[1:] {
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: time %q", ErrResultMalformed, runID, record[0])
		}
		state := make([]float64, nx)
		for j := 0; j < nx; j++ {
			if state[j], err = strconv.ParseFloat(record[1+j], 64); err != nil {
				return nil, nil, fmt.Errorf("%w: %s: %v", ErrResultMalformed, runID, err)
			}
		}
		times = append(times, t)
		states = append(states, state)
	}
	return states, times, nil
}
