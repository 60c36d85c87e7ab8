package benders

import (
	"fmt"

	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/solver"
)

// CutKind distinguishes optimality from feasibility cuts.
type CutKind int

const (
	Optimality CutKind = iota
	Feasibility
)

func (k CutKind) String() string {
	if k == Feasibility {
		return "feasibility"
	}
	return "optimality"
}

// Cut is one inequality appended to the master.
type Cut struct {
	Kind      CutKind
	Iteration int
	// Scenario is the scenario index the cut was derived from, or -1 for an
	// aggregated single cut.
	Scenario   int
	Name       string
	Constraint model.ConstrID
}

// linearization returns sum_k pi_k * (cap_k(x) - xhat_k) over the links of
// sub, with pi the link duals of sol and cap_k the master's capacity
// expressions.
func linearization(master, sub *assembly.Problem, sol *solver.Solution, cand assembly.Candidate) (model.Expr, error) {
	var e model.Expr
	for _, l := range sub.Links {
		pi := sol.Dual(l.Constraint)
		if pi == 0 {
			continue
		}
		capacity, ok := master.Capacities[l.Key]
		if !ok {
			return model.Expr{}, fmt.Errorf("master has no capacity decision for link %s", l.Key)
		}
		e.AddExpr(pi, capacity)
		e.AddConst(-pi * cand[l.Key])
	}
	return e, nil
}

// optimalityCut adds theta >= cost + lin to the master.
func optimalityCut(m *model.Model, name string, theta model.VarID, cost float64, lin model.Expr) model.ConstrID {
	return m.AddConstraint(name, model.V(theta), model.GE, lin.PlusConst(cost))
}

// feasibilityCut adds violation + lin <= 0 to the master.
func feasibilityCut(m *model.Model, name string, violation float64, lin model.Expr) model.ConstrID {
	return m.AddConstraint(name, lin.PlusConst(violation), model.LE, model.C(0))
}
