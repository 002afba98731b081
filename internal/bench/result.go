package bench

import (
	"sort"
	"time"

	"github.com/san-kum/chainbench/internal/param"
)

// TimestampLayout formats Metadata.Timestamp and result file names.
const TimestampLayout = "20060102_150405"

// CellResult is the record of one (combination, solver) cell. Times are
// in seconds.
type CellResult struct {
	SolverName string     `json:"solver_name"`
	Variant    string     `json:"variant,omitempty"`
	SetupTime  float64    `json:"setup_time"`
	SolveTimes Statistics `json:"solve_times"`
	Iterations Statistics `json:"iterations"`

	Failed bool   `json:"failed,omitempty"`
	Stage  Stage  `json:"stage,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Results maps a combination key to the cells of each solver.
type Results map[string]map[string]CellResult

type Metadata struct {
	ProblemClass string     `json:"problem_class"`
	Name         string     `json:"name"`
	Timestamp    string     `json:"timestamp"`
	Runs         int        `json:"runs"`
	Eps          float64    `json:"eps"`
	Seed         int64      `json:"seed"`
	Parameters   param.Axes `json:"parameters"`
	Solvers      []string   `json:"solvers,omitempty"`
}

type Report struct {
	Metadata Metadata `json:"metadata"`
	Results  Results  `json:"results"`
}

func NewReport(meta Metadata) *Report {
	if meta.Timestamp == "" {
		meta.Timestamp = time.Now().Format(TimestampLayout)
	}
	return &Report{Metadata: meta, Results: make(Results)}
}

func (r *Report) Add(key string, cell CellResult) {
	if r.Results[key] == nil {
		r.Results[key] = make(map[string]CellResult)
	}
	r.Results[key][cell.SolverName] = cell
}

// Keys returns the combination keys in sweep order when the axes are
// known, followed by any other keys sorted.
func (r *Report) Keys() []string {
	seen := make(map[string]bool, len(r.Results))
	var keys []string
	for _, c := range r.Metadata.Parameters.Combinations() {
		k := param.Key(c)
		if _, ok := r.Results[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range r.Results {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// SolverNames returns the solvers in metadata order, then any others
// found in the results, sorted.
func (r *Report) SolverNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, n := range r.Metadata.Solvers {
		if !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	var rest []string
	for _, cells := range r.Results {
		for n := range cells {
			if !seen[n] {
				rest = append(rest, n)
				seen[n] = true
			}
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
