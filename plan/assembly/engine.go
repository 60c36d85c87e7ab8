package assembly

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/registry"
	"github.com/gridplan/gridplan/plan/scenario"
)

// Engine builds models for one planning session. It validates its inputs
// once, resolves the active module list from the setup once, and can then
// build any number of problems. Builds do not share mutable state, so
// independent builds may run concurrently.
type Engine struct {
	setup   plan.Setup
	reg     *registry.Registry
	set     *scenario.Set
	inputs  *plan.Inputs
	modules []activeModule
	session uuid.UUID
	log     *logrus.Entry
}

// NewEngine validates the session inputs and resolves the active modules.
// It fails fast with a ConfigurationError when the time-length precondition
// does not hold for every scenario or a rolling window does not fit in one
// representative period.
func NewEngine(setup plan.Setup, reg *registry.Registry, set *scenario.Set, inputs *plan.Inputs) (*Engine, error) {
	if err := setup.Validate(); err != nil {
		return nil, err
	}
	if err := inputs.Validate(reg.ZoneIDs(), reg.IDs(), set.Fuels(), set.Weathers()); err != nil {
		return nil, err
	}
	if err := checkWindows(setup, reg, inputs.Time); err != nil {
		return nil, err
	}
	if setup.LongDurationStorage && len(inputs.PeriodMaps) == 0 {
		if lds, _ := reg.Subset(registry.CapLongDuration); len(lds) > 0 {
			return nil, plan.Configf("period_map", "long-duration storage needs a period map")
		}
	}
	e := &Engine{
		setup:   setup,
		reg:     reg,
		set:     set,
		inputs:  inputs,
		modules: resolve(setup),
		session: uuid.New(),
	}
	e.log = logrus.WithField("session", e.session.String())
	e.log.Debugf("engine ready: %d resources, %d zones, %d scenarios, %s, modules [%s]",
		reg.NumResources(), len(reg.Zones()), set.Len(), inputs.Time, strings.Join(e.Modules(), " "))
	return e, nil
}

func checkWindows(setup plan.Setup, reg *registry.Registry, ti plan.TimeIndex) error {
	for _, r := range reg.Resources() {
		if setup.UCommit != plan.UCommitOff && r.Has(registry.CapCommit) {
			if err := ti.CheckWindow(fmt.Sprintf("resource %q min up time", r.ID), r.UpTime); err != nil {
				return err
			}
			if err := ti.CheckWindow(fmt.Sprintf("resource %q min down time", r.ID), r.DownTime); err != nil {
				return err
			}
		}
		if r.Tech == registry.FlexDemand {
			if err := ti.CheckWindow(fmt.Sprintf("resource %q flexible-demand delay", r.ID), r.FlexDelay); err != nil {
				return err
			}
			if err := ti.CheckWindow(fmt.Sprintf("resource %q flexible-demand advance", r.ID), r.FlexAdvance); err != nil {
				return err
			}
		}
	}
	return nil
}

// Session identifies this engine's planning session in logs.
func (e *Engine) Session() uuid.UUID { return e.session }

// Setup returns the policy toggles.
func (e *Engine) Setup() plan.Setup { return e.setup }

// Registry returns the system description.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Scenarios returns the scenario set.
func (e *Engine) Scenarios() *scenario.Set { return e.set }

// Modules returns the active module names in run order.
func (e *Engine) Modules() []string {
	names := make([]string, len(e.modules))
	for i, m := range e.modules {
		names[i] = m.Name()
	}
	return names
}

// SetModuleOrder reorders the active modules. names must be a permutation
// of Modules().
func (e *Engine) SetModuleOrder(names []string) error {
	if len(names) != len(e.modules) {
		return fmt.Errorf("module order has %d names for %d modules", len(names), len(e.modules))
	}
	byName := make(map[string]activeModule, len(e.modules))
	for _, m := range e.modules {
		byName[m.Name()] = m
	}
	ordered := make([]activeModule, 0, len(names))
	for _, n := range names {
		m, ok := byName[n]
		if !ok {
			return fmt.Errorf("module order names unknown or repeated module %q", n)
		}
		delete(byName, n)
		ordered = append(ordered, m)
	}
	e.modules = ordered
	return nil
}

// BuildMonolithic builds investment and operations over every scenario.
func (e *Engine) BuildMonolithic() (*Problem, error) {
	return e.build(Monolithic, e.set.All(), nil)
}

// BuildMaster builds the investment-only problem.
func (e *Engine) BuildMaster() (*Problem, error) {
	return e.build(Master, nil, nil)
}

// BuildSubproblem builds the operating problem of scenario index s with
// capacities fixed to cand.
func (e *Engine) BuildSubproblem(s int, cand Candidate) (*Problem, error) {
	if s < 0 || s >= e.set.Len() {
		return nil, fmt.Errorf("scenario index %d out of range [0, %d)", s, e.set.Len())
	}
	return e.build(Subproblem, []scenario.Scenario{e.set.At(s)}, cand)
}

// BuildFeasibility builds the slack-relaxed operating problem of scenario
// index s, used to derive feasibility cuts.
func (e *Engine) BuildFeasibility(s int, cand Candidate) (*Problem, error) {
	if s < 0 || s >= e.set.Len() {
		return nil, fmt.Errorf("scenario index %d out of range [0, %d)", s, e.set.Len())
	}
	return e.build(Feasibility, []scenario.Scenario{e.set.At(s)}, cand)
}

func (e *Engine) build(scope Scope, scenarios []scenario.Scenario, cand Candidate) (*Problem, error) {
	b := newBuilder(e, scope, scenarios, cand)
	var active []activeModule
	for _, m := range e.modules {
		if m.stage == StageOperation && !scope.Operates() {
			continue
		}
		active = append(active, m)
	}

	run := func(p phase, step func(m activeModule) error) error {
		for _, m := range active {
			b.enter(m.Name(), m.Contributes(), p)
			if err := step(m); err != nil {
				return wrapModule(m.Name(), err)
			}
			if err := b.Err(); err != nil {
				return err
			}
		}
		return nil
	}
	if err := run(phaseDeclare, func(m activeModule) error { return m.Declare(b) }); err != nil {
		return nil, err
	}
	if err := run(phaseConstrain, func(m activeModule) error { return m.Constrain(b) }); err != nil {
		return nil, err
	}
	if err := run(phaseFinalize, func(m activeModule) error {
		if f, ok := m.Module.(Finalizer); ok {
			return f.Finalize(b)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	b.enter("engine", 0, phaseFinalize)
	p := &Problem{
		Session:    e.session,
		Scope:      scope,
		Model:      b.model,
		Scenarios:  scenarios,
		Capacities: make(map[CapacityKey]model.Expr, len(b.decisions)),
		Links:      b.links,
		grids:      b.grids,
	}
	for _, m := range active {
		p.modules = append(p.modules, m.Name())
	}
	for k := range b.decisions {
		p.Capacities[k] = b.capacity[k]
	}
	if scope.Operates() {
		e.finalizeBalance(b)
	}
	e.finalizeObjective(b, p)
	if err := b.Err(); err != nil {
		return nil, err
	}
	e.log.Debugf("built %s: %d variables, %d constraints", b.model.Name, b.model.NumVars(), b.model.NumConstraints())
	return p, nil
}

func wrapModule(name string, err error) error {
	if errors.Is(err, plan.ErrModelBuild) || errors.Is(err, plan.ErrConfiguration) {
		return err
	}
	return &plan.ModelBuildError{Module: name, Err: err}
}

// finalizeBalance turns the power-balance accumulator into one equality per
// (zone, hour, scenario): net injection equals demand.
func (e *Engine) finalizeBalance(b *Builder) {
	zones := e.reg.Zones()
	for z := range zones {
		for t := 0; t < b.T(); t++ {
			for s := 0; s < b.S(); s++ {
				name := fmt.Sprintf("cPowerBalance[%s,%d,%d]", zones[z].ID, t, s)
				b.Constrain(name, b.Sum(AccPowerBalance, z, t, s), model.EQ, model.C(b.Demand(z, t, s)))
			}
		}
	}
}

// finalizeObjective sets the scope's objective from the cost accumulators,
// or from the link slacks for a feasibility build.
func (e *Engine) finalizeObjective(b *Builder, p *Problem) {
	p.InvestmentCost = b.Sum(AccInvestmentCost)
	p.OperatingCost = make([]model.Expr, b.S())
	for s := range p.OperatingCost {
		p.OperatingCost[s] = b.Sum(AccOperatingCost, s)
	}
	var obj model.Expr
	switch b.Scope {
	case Feasibility:
		for _, l := range b.links {
			obj.Add(1, l.Plus).Add(1, l.Minus)
		}
	default:
		obj.AddExpr(1, p.InvestmentCost)
		for _, c := range p.OperatingCost {
			obj.AddExpr(1, c)
		}
	}
	b.model.SetObjective(obj)
}
