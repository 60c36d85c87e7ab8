// Package simplex is a reference LP solver on gonum's dense matrices. It
// converts a model.Model into standard form and runs a two-phase tableau
// simplex; shadow prices are read off the final tableau. Integer variables
// are relaxed.
//
// Dense tableaus keep it to small and medium models: tests, toy systems and
// single-scenario subproblems of a few hundred rows.
package simplex

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/solver"
)

// DefaultTolerance is the reduced-cost tolerance: a column enters only when
// its reduced cost is below -Tolerance.
const DefaultTolerance = 1e-9

// Solver is a solver.Solver backed by a dense tableau.
type Solver struct {
	Tolerance float64
}

// New returns a Solver with DefaultTolerance.
func New() *Solver { return &Solver{Tolerance: DefaultTolerance} }

// Solve implements solver.Solver. The pivot loop observes ctx, so a timed-out
// solve stops at the next pivot.
func (s *Solver) Solve(ctx context.Context, m *model.Model, opts solver.Options) (*solver.Solution, error) {
	return solver.Bounded(ctx, opts.TimeLimit, m.Name, func(ctx context.Context) (*solver.Solution, error) {
		return s.solve(ctx, m, opts.IterationLimit)
	})
}

func (s *Solver) tol() float64 {
	if s.Tolerance > 0 {
		return s.Tolerance
	}
	return DefaultTolerance
}

func (s *Solver) solve(ctx context.Context, m *model.Model, limit int) (sol *solver.Solution, err error) {
	defer func() {
		if r := recover(); r != nil {
			sol, err = nil, &plan.SolverError{Status: plan.StatusFailed, Problem: m.Name, Scenario: -1, Err: fmt.Errorf("%v", r)}
		}
	}()
	relaxed := m.HasIntegers()
	sf, status := newStandardForm(m)
	if status != plan.StatusOptimal {
		return &solver.Solution{Status: status, Relaxed: relaxed}, nil
	}
	tb := newTableau(sf, s.tol())
	status, err = tb.solve(ctx, limit)
	logrus.Debugf("simplex: %s %s after %d pivots", m.Name, status, tb.pivots)
	if err != nil {
		st := plan.StatusFailed
		if errors.Is(err, context.DeadlineExceeded) {
			st = plan.StatusTimedOut
		}
		return nil, &plan.SolverError{Status: st, Problem: m.Name, Scenario: -1, Err: err}
	}
	if status != plan.StatusOptimal {
		return &solver.Solution{Status: status, Relaxed: relaxed}, nil
	}
	primal := sf.point(tb.values())
	return &solver.Solution{
		Status:    plan.StatusOptimal,
		Objective: m.Objective().Eval(primal),
		Primal:    primal,
		Duals:     sf.duals(tb.prices()),
		Relaxed:   relaxed,
	}, nil
}

// column maps one model variable onto standard-form columns:
// x = base + sign*y[pos] - y[neg], with neg < 0 when there is no negative part.
type column struct {
	base float64
	sign float64
	pos  int
	neg  int
}

type sparseRow struct {
	cols  []int
	coefs []float64
	rhs   float64
}

// standardForm is min c'y s.t. A y = b, y >= 0, held row-sparse. Columns
// [0, nStruct) are structural, the rest are slacks.
type standardForm struct {
	vars    []column
	rows    []sparseRow
	c       []float64
	nStruct int
	n       int
	// row[i] is the standard-form row of model constraint i, -1 when the
	// constraint was constant and dropped.
	row []int
}

// newStandardForm converts m. Bounds that cross and constant constraints that
// fail are decided here without a simplex call. Equalities keep a single row;
// inequalities get one slack each; finite upper bounds on shifted columns
// become extra rows.
func newStandardForm(m *model.Model) (*standardForm, plan.SolveStatus) {
	sf := &standardForm{vars: make([]column, m.NumVars())}
	var bounds []sparseRow
	next := 0
	for j, v := range m.Vars() {
		lo, hi := v.Lower, v.Upper
		if lo > hi {
			return nil, plan.StatusInfeasible
		}
		switch {
		case !math.IsInf(lo, -1):
			sf.vars[j] = column{base: lo, sign: 1, pos: next, neg: -1}
			if !math.IsInf(hi, 1) {
				bounds = append(bounds, sparseRow{cols: []int{next}, coefs: []float64{1}, rhs: hi - lo})
			}
			next++
		case !math.IsInf(hi, 1):
			sf.vars[j] = column{base: hi, sign: -1, pos: next, neg: -1}
			next++
		default:
			sf.vars[j] = column{sign: 1, pos: next, neg: next + 1}
			next += 2
		}
	}
	sf.nStruct = next

	sf.c = make([]float64, next)
	for _, t := range m.Objective().Terms {
		col := sf.vars[t.Var]
		sf.c[col.pos] += col.sign * t.Coef
		if col.neg >= 0 {
			sf.c[col.neg] -= t.Coef
		}
	}

	sf.row = make([]int, m.NumConstraints())
	slack := next
	for i, c := range m.Constraints() {
		r := sparseRow{rhs: c.RHS}
		for _, t := range c.Expr.Terms {
			col := sf.vars[t.Var]
			r.cols = append(r.cols, col.pos)
			r.coefs = append(r.coefs, col.sign*t.Coef)
			if col.neg >= 0 {
				r.cols = append(r.cols, col.neg)
				r.coefs = append(r.coefs, -t.Coef)
			}
			r.rhs -= t.Coef * col.base
		}
		if len(r.cols) == 0 {
			if !constantHolds(c.Sense, r.rhs) {
				return nil, plan.StatusInfeasible
			}
			sf.row[i] = -1
			continue
		}
		switch c.Sense {
		case model.LE:
			r.cols, r.coefs = append(r.cols, slack), append(r.coefs, 1)
			slack++
		case model.GE:
			r.cols, r.coefs = append(r.cols, slack), append(r.coefs, -1)
			slack++
		}
		sf.row[i] = len(sf.rows)
		sf.rows = append(sf.rows, r)
	}
	for _, r := range bounds {
		r.cols, r.coefs = append(r.cols, slack), append(r.coefs, 1)
		slack++
		sf.rows = append(sf.rows, r)
	}
	sf.n = slack
	sf.c = append(sf.c, make([]float64, sf.n-next)...)
	return sf, plan.StatusOptimal
}

func constantHolds(sense model.Sense, rhs float64) bool {
	const eps = 1e-9
	switch sense {
	case model.LE:
		return 0 <= rhs+eps
	case model.GE:
		return 0 >= rhs-eps
	default:
		return math.Abs(rhs) <= eps
	}
}

// point maps a standard-form point back to model variable values.
func (sf *standardForm) point(y []float64) []float64 {
	x := make([]float64, len(sf.vars))
	for j, col := range sf.vars {
		x[j] = col.base + col.sign*y[col.pos]
		if col.neg >= 0 {
			x[j] -= y[col.neg]
		}
	}
	return x
}

// duals folds the row prices back onto the model's constraints. Constant
// constraints have price zero.
func (sf *standardForm) duals(prices []float64) []float64 {
	out := make([]float64, len(sf.row))
	for c, r := range sf.row {
		if r >= 0 {
			out[c] = prices[r]
		}
	}
	return out
}
