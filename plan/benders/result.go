package benders

import (
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
)

// Result is a converged decomposition.
type Result struct {
	Session    uuid.UUID
	Iterations int
	LowerBound float64
	UpperBound float64
	History    []plan.Bounds

	// Capacity is the plan achieving UpperBound.
	Capacity       assembly.Candidate
	InvestmentCost float64
	Cuts           []Cut

	// ScenarioCosts[s] is scenario s's operating cost under Capacity, not
	// weighted by its probability.
	ScenarioCosts []float64
	// ExpectedCost and CostStdDev summarise ScenarioCosts under the
	// scenario probabilities.
	ExpectedCost float64
	CostStdDev   float64
}

// Gap returns UpperBound - LowerBound.
func (r *Result) Gap() float64 { return r.UpperBound - r.LowerBound }

// Count returns the number of cuts of kind k.
func (r *Result) Count(k CutKind) int {
	n := 0
	for _, c := range r.Cuts {
		if c.Kind == k {
			n++
		}
	}
	return n
}

func (d *Driver) result() *Result {
	probs := d.engine.Scenarios().Probabilities()
	costs := make([]float64, len(d.bestCosts))
	for s, c := range d.bestCosts {
		// subproblem objectives are probability-weighted
		if probs[s] > 0 {
			costs[s] = c / probs[s]
		}
	}
	mean, std := stat.PopMeanStdDev(costs, probs)
	return &Result{
		Session:        d.session,
		Iterations:     d.iteration,
		LowerBound:     d.lower,
		UpperBound:     d.upper,
		History:        append([]plan.Bounds(nil), d.history...),
		Capacity:       d.best,
		InvestmentCost: d.bestInvest,
		Cuts:           append([]Cut(nil), d.cuts...),
		ScenarioCosts:  costs,
		ExpectedCost:   mean,
		CostStdDev:     std,
	}
}
