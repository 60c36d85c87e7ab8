package assembly

import (
	"fmt"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/registry"
	"github.com/gridplan/gridplan/plan/scenario"
)

// Acc names a shared accumulator.
type Acc int

const (
	AccPowerBalance   Acc = iota // [zone, hour, scenario] net injection; must equal demand
	AccInvestmentCost            // scalar annualised investment and fixed cost
	AccOperatingCost             // [scenario] probability-weighted operating cost
	AccEmissions                 // [zone, hour, scenario] tonnes CO2 per hour
	AccRegulation                // [hour, scenario] regulation provision minus requirement
	AccSpinning                  // [hour, scenario] spinning provision minus requirement
	AccEnergyShare               // [policy, scenario] qualifying energy minus required share
	AccCapacityMargin            // [policy, hour, scenario] derated capacity minus requirement

	numAccs
)

var accInfo = [numAccs]struct {
	name    string
	contrib Contribution
}{
	AccPowerBalance:   {"power_balance", PowerBalance},
	AccInvestmentCost: {"investment_cost", Objective},
	AccOperatingCost:  {"operating_cost", Objective},
	AccEmissions:      {"emissions", Emissions},
	AccRegulation:     {"regulation", Reserves},
	AccSpinning:       {"spinning", Reserves},
	AccEnergyShare:    {"energy_share", Policy},
	AccCapacityMargin: {"capacity_margin", Policy},
}

func (a Acc) String() string {
	if a >= 0 && a < numAccs {
		return accInfo[a].name
	}
	return fmt.Sprintf("acc(%d)", int(a))
}

type phase int

const (
	phaseDeclare phase = iota
	phaseConstrain
	phaseFinalize
)

// Builder is the per-build state shared by all modules: the model under
// construction, named variable grids, capacity expressions and the
// accumulators. Accumulator writes and capacity reads record the first
// failure rather than returning it; the engine reports it against the module
// that was running.
type Builder struct {
	Setup    plan.Setup
	Registry *registry.Registry
	Time     plan.TimeIndex
	Scope    Scope

	model     *model.Model
	inputs    *plan.Inputs
	scenarios []scenario.Scenario
	candidate Candidate

	accs      [numAccs]*model.Accumulator
	grids     map[string]*model.Grid
	owners    map[string]string
	capacity  map[CapacityKey]model.Expr
	decisions map[CapacityKey]bool
	links     []Link

	module string
	allow  Contribution
	phase  phase
	err    error
}

func newBuilder(e *Engine, scope Scope, scenarios []scenario.Scenario, cand Candidate) *Builder {
	b := &Builder{
		Setup:     e.setup,
		Registry:  e.reg,
		Time:      e.inputs.Time,
		Scope:     scope,
		model:     model.New(fmt.Sprintf("%s-%s", scope, scenarioLabel(scenarios))),
		inputs:    e.inputs,
		scenarios: scenarios,
		candidate: cand,
		grids:     make(map[string]*model.Grid),
		owners:    make(map[string]string),
		capacity:  make(map[CapacityKey]model.Expr),
		decisions: make(map[CapacityKey]bool),
	}
	Z, T, S := len(e.reg.Zones()), b.Time.T(), len(scenarios)
	pol := e.reg.Policies()
	b.accs[AccPowerBalance] = model.NewAccumulator(AccPowerBalance.String(), Z, T, S)
	b.accs[AccInvestmentCost] = model.NewAccumulator(AccInvestmentCost.String())
	b.accs[AccOperatingCost] = model.NewAccumulator(AccOperatingCost.String(), S)
	b.accs[AccEmissions] = model.NewAccumulator(AccEmissions.String(), Z, T, S)
	b.accs[AccRegulation] = model.NewAccumulator(AccRegulation.String(), T, S)
	b.accs[AccSpinning] = model.NewAccumulator(AccSpinning.String(), T, S)
	b.accs[AccEnergyShare] = model.NewAccumulator(AccEnergyShare.String(), len(pol.EnergyShares), S)
	b.accs[AccCapacityMargin] = model.NewAccumulator(AccCapacityMargin.String(), len(pol.ReserveMargin), T, S)
	return b
}

func scenarioLabel(scenarios []scenario.Scenario) string {
	if len(scenarios) == 1 {
		return fmt.Sprintf("s%d", scenarios[0].ID())
	}
	return fmt.Sprintf("%ds", len(scenarios))
}

// enter switches the builder to module m for the given phase.
func (b *Builder) enter(name string, allow Contribution, p phase) {
	b.module, b.allow, b.phase = name, allow, p
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = &plan.ModelBuildError{Module: b.module, Err: fmt.Errorf(format, args...)}
	}
}

// Err returns the first recorded failure.
func (b *Builder) Err() error { return b.err }

// Model returns the model under construction.
func (b *Builder) Model() *model.Model { return b.model }

// Module returns the name of the module currently running.
func (b *Builder) Module() string { return b.module }

// S returns the number of scenarios in this build.
func (b *Builder) S() int { return len(b.scenarios) }

// T returns the number of hours per scenario.
func (b *Builder) T() int { return b.Time.T() }

// Scenario returns the s-th scenario of this build.
func (b *Builder) Scenario(s int) scenario.Scenario { return b.scenarios[s] }

// Demand returns the demand of zone z at hour t in build scenario s.
func (b *Builder) Demand(z, t, s int) float64 {
	return b.inputs.DemandAt(b.Registry.Zones()[z].ID, b.scenarios[s].WeatherDraw(), t)
}

// Availability returns the availability of resource y at hour t in build
// scenario s.
func (b *Builder) Availability(y, t, s int) float64 {
	return b.inputs.AvailabilityAt(b.Registry.Name(y), b.scenarios[s].WeatherDraw(), t)
}

// FuelPrice returns the fuel price faced by resource y at hour t in build
// scenario s.
func (b *Builder) FuelPrice(y, t, s int) float64 {
	return b.inputs.FuelPriceAt(b.Registry.Resource(y).Fuel, b.scenarios[s].FuelDraw(), t)
}

// CostWeight is the objective weight of one unit of hourly cost at hour t in
// build scenario s: period weight times scenario probability.
func (b *Builder) CostWeight(t, s int) float64 {
	return b.Time.Weight(t) * b.scenarios[s].Probability
}

// PeriodMap returns the chronological period map of build scenario s.
func (b *Builder) PeriodMap(s int) (plan.PeriodMap, bool) {
	return b.inputs.PeriodMap(b.scenarios[s].WeatherDraw())
}

// Candidate returns the capacity plan a Subproblem or Feasibility build is
// parameterised by.
func (b *Builder) Candidate() Candidate { return b.candidate }

// CommitKind is the domain of commitment indicators under the setup.
func (b *Builder) CommitKind() model.Kind {
	if b.Setup.UCommit == plan.UCommitInteger {
		return model.Integer
	}
	return model.Continuous
}

// Subset returns the resources carrying capability c, failing the build when
// the registry does not define c.
func (b *Builder) Subset(c registry.Capability) ([]int, error) {
	set, err := b.Registry.Subset(c)
	if err != nil {
		return nil, &plan.ModelBuildError{Module: b.module, Err: err}
	}
	return set, nil
}

// NewGrid creates a named block of variables over keys x dims. Names are
// unique per build.
func (b *Builder) NewGrid(name string, keys []int, dims []int, lower, upper float64, kind model.Kind) (*model.Grid, error) {
	if owner, dup := b.owners[name]; dup {
		return nil, &plan.ModelBuildError{Module: b.module, Err: fmt.Errorf("variable set %q already declared by %s", name, owner)}
	}
	g := model.NewGrid(b.model, name, keys, b.Registry.Name, dims, lower, upper, kind)
	b.grids[name] = g
	b.owners[name] = b.module
	return g, nil
}

// NewLabeledGrid is NewGrid with a custom key labeller for grids not keyed by
// resource.
func (b *Builder) NewLabeledGrid(name string, keys []int, label func(int) string, dims []int, lower, upper float64, kind model.Kind) (*model.Grid, error) {
	if owner, dup := b.owners[name]; dup {
		return nil, &plan.ModelBuildError{Module: b.module, Err: fmt.Errorf("variable set %q already declared by %s", name, owner)}
	}
	g := model.NewGrid(b.model, name, keys, label, dims, lower, upper, kind)
	b.grids[name] = g
	b.owners[name] = b.module
	return g, nil
}

// Grid returns the variable set declared under name by any module.
func (b *Builder) Grid(name string) (*model.Grid, error) {
	g, ok := b.grids[name]
	if !ok {
		return nil, &plan.ModelBuildError{Module: b.module, Err: fmt.Errorf("references undeclared variable set %q", name)}
	}
	return g, nil
}

// HasGrid reports whether a variable set was declared under name.
func (b *Builder) HasGrid(name string) bool {
	_, ok := b.grids[name]
	return ok
}

// Constrain adds lhs (sense) rhs to the model.
func (b *Builder) Constrain(name string, lhs model.Expr, sense model.Sense, rhs model.Expr) model.ConstrID {
	return b.model.AddConstraint(name, lhs, sense, rhs)
}

func (b *Builder) writable(a Acc) bool {
	if b.phase == phaseFinalize {
		b.fail("writes to %s after accumulation closed", a)
		return false
	}
	if b.allow&accInfo[a].contrib == 0 {
		b.fail("writes to %s without declaring %s", a, accInfo[a].contrib)
		return false
	}
	return true
}

// AddTerm adds coef*v to accumulator a at idx.
func (b *Builder) AddTerm(a Acc, coef float64, v model.VarID, idx ...int) {
	if b.writable(a) {
		b.accs[a].AddTerm(b.module, coef, v, idx...)
	}
}

// AddExpr adds scale*e to accumulator a at idx.
func (b *Builder) AddExpr(a Acc, scale float64, e model.Expr, idx ...int) {
	if b.writable(a) {
		b.accs[a].Add(b.module, scale, e, idx...)
	}
}

// AddConst adds c to accumulator a at idx.
func (b *Builder) AddConst(a Acc, c float64, idx ...int) {
	if b.writable(a) {
		b.accs[a].AddConst(b.module, c, idx...)
	}
}

// Sum returns the accumulated value of a at idx. Only finalizers may read,
// once every module has contributed.
func (b *Builder) Sum(a Acc, idx ...int) model.Expr {
	if b.phase != phaseFinalize {
		b.fail("reads %s before accumulation closed", a)
		return model.Expr{}
	}
	return b.accs[a].At(idx...)
}

// Contributors returns the modules that wrote into a.
func (b *Builder) Contributors(a Acc) []string { return b.accs[a].Contributors() }

// SetCapacity records the total-capacity expression of key. decision marks
// keys the investment problem decides.
func (b *Builder) SetCapacity(key CapacityKey, e model.Expr, decision bool) {
	b.capacity[key] = e
	if decision {
		b.decisions[key] = true
	}
}

// Capacity returns the total power capacity of resource y.
func (b *Builder) Capacity(y int) model.Expr {
	return b.capacityOf(CapacityKey{Resource: y})
}

// EnergyCapacity returns the total energy capacity of storage resource y.
func (b *Builder) EnergyCapacity(y int) model.Expr {
	return b.capacityOf(CapacityKey{Resource: y, Energy: true})
}

func (b *Builder) capacityOf(key CapacityKey) model.Expr {
	e, ok := b.capacity[key]
	if !ok {
		b.fail("capacity of %s (%s) was never declared", b.Registry.Name(key.Resource), key)
		return model.Expr{}
	}
	return e
}

// AddLink records a linking equality of a Subproblem or Feasibility build.
func (b *Builder) AddLink(l Link) { b.links = append(b.links, l) }
