package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/san-kum/chainbench/internal/param"
)

var masses = []any{2, 3, 4, 5, 10, 20, 30, 40, 50, 60, 70}

func ocpSweep(name string, cost, constr bool) *SweepConfig {
	return &SweepConfig{
		Problem: "chain_mass_ocp", Name: name, Runs: 30, Eps: DefaultEps, Seed: DefaultSeed, ResultsDir: DefaultResultsDir,
		Axes: param.Axes{
			{Name: "M", Values: masses},
			{Name: "N", Values: []any{15}},
			{Name: "use_u_diff_cost", Values: []any{cost}},
			{Name: "use_u_diff_constr", Values: []any{constr}},
		},
	}
}

var Presets = map[string]map[string]*SweepConfig{
	"ocp": {
		"base":        ocpSweep("M2-70_N15_default", false, false),
		"diff_cost":   ocpSweep("M2-70_N15_cost_diff", true, false),
		"diff_constr": ocpSweep("M2-70_N15_constr_diff", false, true),
		"diff_both":   ocpSweep("M2-70_N15_both_diff", true, true),
		"quick": {
			Problem: "chain_mass_ocp", Name: "quick", Runs: 5, Eps: DefaultEps, Seed: DefaultSeed, ResultsDir: DefaultResultsDir,
			Axes: param.Axes{
				{Name: "M", Values: []any{2, 3, 5}},
				{Name: "N", Values: []any{10}},
			},
		},
	},
	"scenario": {
		"default": {
			Problem: "chain_mass_scenario", Name: "default", Runs: 30, Eps: DefaultEps, Seed: DefaultSeed, ResultsDir: DefaultResultsDir,
			Axes: param.Axes{
				{Name: "M", Values: []any{2, 5, 10, 20, 50}},
				{Name: "Ns", Values: []any{1, 5, 10, 15, 20}},
				{Name: "N", Values: []any{15}},
			},
			Solvers: []string{"ipm_sparse", "ipm_avx2", "admm"},
		},
		"quick": {
			Problem: "chain_mass_scenario", Name: "quick", Runs: 5, Eps: DefaultEps, Seed: DefaultSeed, ResultsDir: DefaultResultsDir,
			Axes: param.Axes{
				{Name: "M", Values: []any{2, 3}},
				{Name: "Ns", Values: []any{1, 3}},
				{Name: "N", Values: []any{8}},
			},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(group, name string) *SweepConfig {
	if g, ok := Presets[group]; ok {
		if cfg, ok := g[name]; ok {
			return cfg.Clone()
		}
	}
	return nil
}

// Preset resolves a "group/name" reference.
func Preset(ref string) (*SweepConfig, error) {
	group, name, ok := strings.Cut(ref, "/")
	if !ok {
		return nil, fmt.Errorf("%w: preset %q is not group/name", ErrInvalidConfig, ref)
	}
	cfg := GetPreset(group, name)
	if cfg == nil {
		return nil, fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, ref)
	}
	return cfg, nil
}

// PresetNames lists every preset as group/name.
func PresetNames() []string {
	var names []string
	for group, g := range Presets {
		for name := range g {
			names = append(names, group+"/"+name)
		}
	}
	sort.Strings(names)
	return names
}
