package solver

import (
	"fmt"
	"path"
	"sort"
)

type Factory func(Options) Solver

var factories = map[string]Factory{
	"riccati": NewRiccati,
	"admm":    NewADMM,
	"lsei":    NewLSEI,
}

func init() {
	factories["ipm_sparse"] = func(o Options) Solver {
		o.ISA = ISAGeneric
		return NewIPM(o)
	}
	for _, isa := range []string{ISASSE, ISAAVX2, ISAAVX512} {
		factories["ipm_"+isa] = func(o Options) Solver {
			o.ISA = isa
			return NewIPM(o)
		}
	}
}

// New builds the named solver.
func New(name string, opts Options) (Solver, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSolver, name)
	}
	return f(opts), nil
}

// Names lists every registered solver.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultNames is the reference set a sweep runs when none is given.
func DefaultNames() []string {
	names := []string{"riccati", "ipm_sparse"}
	for _, isa := range ISAVariants() {
		names = append(names, "ipm_"+isa)
	}
	return append(names, "admm", "lsei")
}

// Filter keeps the names matching any of the glob patterns, in order.
// No patterns keeps everything.
func Filter(names, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return names, nil
	}
	var out []string
	for _, name := range names {
		for _, pat := range patterns {
			ok, err := path.Match(pat, name)
			if err != nil {
				return nil, fmt.Errorf("solver: filter %q: %w", pat, err)
			}
			if ok {
				out = append(out, name)
				break
			}
		}
	}
	return out, nil
}

// Build constructs the named solvers with shared options.
func Build(names []string, opts Options) ([]Solver, error) {
	out := make([]Solver, 0, len(names))
	for _, name := range names {
		s, err := New(name, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
