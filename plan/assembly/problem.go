package assembly

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/scenario"
)

// Scope selects which slice of the full problem a build produces.
type Scope int

const (
	// Monolithic is investment plus operations for every scenario.
	Monolithic Scope = iota
	// Master holds investment decisions only.
	Master
	// Subproblem is one scenario's operations with capacities fixed to a
	// candidate through linking equalities.
	Subproblem
	// Feasibility is a Subproblem whose linking equalities are relaxed with
	// penalised slacks; its objective is the total slack.
	Feasibility
)

func (s Scope) String() string {
	switch s {
	case Monolithic:
		return "monolithic"
	case Master:
		return "master"
	case Subproblem:
		return "subproblem"
	case Feasibility:
		return "feasibility"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Invests reports whether the scope carries build/retire decisions.
func (s Scope) Invests() bool { return s == Monolithic || s == Master }

// Operates reports whether the scope carries operating decisions.
func (s Scope) Operates() bool { return s != Master }

// CapacityKey names one capacity decision: the power (MW) or, for storage,
// the energy (MWh) capacity of a resource.
type CapacityKey struct {
	Resource int
	Energy   bool
}

func (k CapacityKey) String() string {
	if k.Energy {
		return fmt.Sprintf("%d/energy", k.Resource)
	}
	return fmt.Sprintf("%d/power", k.Resource)
}

// Candidate is a capacity plan: the total installed capacity of every
// decision, as proposed by the master problem.
type Candidate map[CapacityKey]float64

// Keys returns the candidate's keys in a stable order.
func (c Candidate) Keys() []CapacityKey {
	keys := make([]CapacityKey, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

func sortKeys(keys []CapacityKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Resource != keys[j].Resource {
			return keys[i].Resource < keys[j].Resource
		}
		return !keys[i].Energy && keys[j].Energy
	})
}

// Link is the equality fixing one capacity of a subproblem to the
// candidate. Its dual is the slope of the scenario's cost in that capacity.
// Plus and Minus are the relaxation slacks of a feasibility build.
type Link struct {
	Key        CapacityKey
	Constraint model.ConstrID
	Plus       model.VarID
	Minus      model.VarID
	Relaxed    bool
}

// Problem is one assembled model plus the handles callers need to read a
// solution back.
type Problem struct {
	Session   uuid.UUID
	Scope     Scope
	Model     *model.Model
	Scenarios []scenario.Scenario

	// Capacities holds the total-capacity expression of every decision.
	Capacities map[CapacityKey]model.Expr
	// Links is set for Subproblem and Feasibility builds.
	Links []Link

	// InvestmentCost is the annualised investment and fixed cost.
	InvestmentCost model.Expr
	// OperatingCost[s] is the probability-weighted operating cost of
	// Scenarios[s].
	OperatingCost []model.Expr

	grids   map[string]*model.Grid
	modules []string
}

// Grid returns the variable grid registered under name.
func (p *Problem) Grid(name string) (*model.Grid, bool) {
	g, ok := p.grids[name]
	return g, ok
}

// Modules returns the names of the modules that took part, in run order.
func (p *Problem) Modules() []string { return p.modules }

// Decisions returns the capacity keys in a stable order.
func (p *Problem) Decisions() []CapacityKey {
	keys := make([]CapacityKey, 0, len(p.Capacities))
	for k := range p.Capacities {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// Candidate evaluates every capacity expression at primal.
func (p *Problem) Candidate(primal []float64) Candidate {
	c := make(Candidate, len(p.Capacities))
	for k, e := range p.Capacities {
		c[k] = e.Eval(primal)
	}
	return c
}

// CheckCapacities returns an error naming every decision whose total
// capacity is negative at primal beyond tol. Every capacity kind present
// (power and energy) is checked.
func (p *Problem) CheckCapacities(primal []float64, tol float64) error {
	var errs []error
	for _, k := range p.Decisions() {
		if v := p.Capacities[k].Eval(primal); v < -tol {
			errs = append(errs, fmt.Errorf("capacity %s is negative (%g)", k, v))
		}
	}
	return errors.Join(errs...)
}
