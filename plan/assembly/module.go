// Package assembly composes operating modules into one optimisation model.
//
// Modules declare their variables, add constraints over them and contribute
// terms to shared accumulators (power balance, costs, emissions, reserves,
// policy balances). The engine owns the accumulators and turns them into
// constraints and the objective only after every module has contributed, so
// the result does not depend on the order modules run in.
//
// Module implementations live in plan/assembly/modules and plan/lds and
// register themselves from init(); import them (blank import is enough)
// before building.
package assembly

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gridplan/gridplan/plan"
)

// Contribution is the set of shared accumulators a module may write into.
type Contribution uint8

const (
	PowerBalance Contribution = 1 << iota
	Objective
	Emissions
	Reserves
	Policy
)

var contributionNames = []string{"power-balance", "objective", "emissions", "reserves", "policy"}

func (c Contribution) String() string {
	var parts []string
	for i, name := range contributionNames {
		if c&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Module is one operating module. Declare runs for every active module
// before any Constrain, so Constrain may reference variables declared by
// any other module. Modules hold no per-build state; everything they create
// lives in the Builder.
type Module interface {
	Name() string
	Contributes() Contribution
	Declare(b *Builder) error
	Constrain(b *Builder) error
}

// Finalizer is implemented by modules that turn accumulated sums into
// constraints. Finalize runs after every module's Constrain.
type Finalizer interface {
	Finalize(b *Builder) error
}

// Stage says in which problem scopes a module takes part.
type Stage int

const (
	// StageInvestment modules take part in every scope, master included.
	StageInvestment Stage = iota
	// StageOperation modules take part in every scope except the master.
	StageOperation
)

// Factory builds a module for the given policy toggles. It returns nil when
// the toggles leave the module inactive.
type Factory func(setup plan.Setup) Module

type registration struct {
	name    string
	stage   Stage
	factory Factory
}

var (
	registryMu    sync.Mutex
	registrations = map[string]registration{}
)

// Register makes a module constructor available to engines built afterwards.
// It panics when name is registered twice.
func Register(name string, stage Stage, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registrations[name]; dup {
		panic(fmt.Sprintf("assembly: module %q registered twice", name))
	}
	registrations[name] = registration{name: name, stage: stage, factory: f}
}

// Registered returns the names of all registered modules, sorted.
func Registered() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registrations))
	for name := range registrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// activeModule is a resolved module together with its stage.
type activeModule struct {
	Module
	stage Stage
}

// resolve instantiates every registered module the setup activates, in name
// order. This is the only place policy toggles select modules.
func resolve(setup plan.Setup) []activeModule {
	var out []activeModule
	for _, name := range Registered() {
		registryMu.Lock()
		r := registrations[name]
		registryMu.Unlock()
		if m := r.factory(setup); m != nil {
			out = append(out, activeModule{Module: m, stage: r.stage})
		}
	}
	return out
}
