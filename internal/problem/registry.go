package problem

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/san-kum/chainbench/internal/param"
	"github.com/san-kum/chainbench/internal/physics"
)

// Factory builds a problem from one parameter combination.
type Factory func(c param.Combination, rng *rand.Rand) (Problem, error)

type entry struct {
	params []string
	build  Factory
}

var factories = map[string]entry{
	"chain_mass_ocp": {
		params: []string{"M", "N", "nu", "mass", "damping", "spring", "use_u_diff_cost", "use_u_diff_constr"},
		build:  buildChainMassOCP,
	},
	"chain_mass_scenario": {
		params: []string{"M", "N", "nu", "Ns", "mass", "damping", "use_u_diff_cost", "use_u_diff_constr"},
		build:  buildChainMassScenario,
	},
}

// Build constructs the named problem class. Parameters the class does not
// know are rejected.
func Build(class string, c param.Combination, rng *rand.Rand) (Problem, error) {
	e, ok := factories[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProblem, class)
	}
	for _, p := range c {
		if !contains(e.params, p.Name) {
			return nil, fmt.Errorf("%w: %s does not take %q", ErrUnknownParameter, class, p.Name)
		}
	}
	return e.build(c, rng)
}

// Classes lists the registered problem classes.
func Classes() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parameters lists the parameter names a class accepts.
func Parameters(class string) ([]string, error) {
	e, ok := factories[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProblem, class)
	}
	return append([]string(nil), e.params...), nil
}

func physicsParams(c param.Combination) (physics.Params, error) {
	p := physics.DefaultParams(5, 15)
	var err error
	if p.M, err = c.Int("M", p.M); err != nil {
		return p, err
	}
	if p.N, err = c.Int("N", p.N); err != nil {
		return p, err
	}
	if p.Nu, err = c.Int("nu", 0); err != nil {
		return p, err
	}
	if p.Mass, err = c.Float("mass", p.Mass); err != nil {
		return p, err
	}
	if p.Damping, err = c.Float("damping", p.Damping); err != nil {
		return p, err
	}
	if p.Spring, err = c.Float("spring", p.Spring); err != nil {
		return p, err
	}
	return p, nil
}

// rateFlags reads the rate flags. defCost is the class default for the
// rate cost; the rate constraint is off unless requested.
func rateFlags(c param.Combination, defCost bool) (cost, constr bool, err error) {
	if cost, err = c.Bool("use_u_diff_cost", defCost); err != nil {
		return
	}
	constr, err = c.Bool("use_u_diff_constr", false)
	return
}

func buildChainMassOCP(c param.Combination, rng *rand.Rand) (Problem, error) {
	p, err := physicsParams(c)
	if err != nil {
		return nil, err
	}
	cost, constr, err := rateFlags(c, false)
	if err != nil {
		return nil, err
	}
	prob, err := NewChainMassOCP(OCPOptions{Params: p, UseRateCost: cost, UseRateConstr: constr}, rng)
	if err != nil {
		return nil, err
	}
	return prob, nil
}

func buildChainMassScenario(c param.Combination, rng *rand.Rand) (Problem, error) {
	p, err := physicsParams(c)
	if err != nil {
		return nil, err
	}
	// Scenario problems carry the rate cost unless it is switched off.
	cost, constr, err := rateFlags(c, true)
	if err != nil {
		return nil, err
	}
	ns, err := c.Int("Ns", 5)
	if err != nil {
		return nil, err
	}
	prob, err := NewChainMassScenario(ScenarioOptions{Params: p, Ns: ns, UseRateCost: cost, UseRateConstr: constr}, rng)
	if err != nil {
		return nil, err
	}
	return prob, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
