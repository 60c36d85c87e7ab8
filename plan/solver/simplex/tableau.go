package simplex

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gridplan/gridplan/plan"
)

const (
	// pivotTol is the smallest entry accepted as a pivot element.
	pivotTol = 1e-9
	// feasTol, scaled by the largest right-hand side, is the phase-one
	// residual still counted as feasible.
	feasTol = 1e-7
	// degenerateRun is the number of consecutive zero-step pivots after which
	// entering columns are picked by Bland's rule.
	degenerateRun = 50
)

// tableau is the dense simplex tableau [A | I | b]: the standard-form
// columns, one artificial per row, and the right-hand side. Rows are negated
// where needed so b >= 0, which makes the artificials a feasible starting
// basis. The artificial block carries B^-1 from then on; the row prices are
// read from its reduced costs.
type tableau struct {
	t      *mat.Dense
	m, n   int // rows, standard-form columns
	rhs    int
	basis  []int
	sign   []float64
	cost   []float64
	d      []float64 // reduced costs; d[rhs] is minus the objective
	scale  float64
	tol    float64
	pivots int
}

func newTableau(sf *standardForm, tol float64) *tableau {
	m, n := len(sf.rows), sf.n
	tb := &tableau{
		m: m, n: n, rhs: n + m,
		basis: make([]int, m),
		sign:  make([]float64, m),
		cost:  sf.c,
		d:     make([]float64, n+m+1),
		scale: 1,
		tol:   tol,
	}
	if m == 0 {
		return tb
	}
	tb.t = mat.NewDense(m, n+m+1, nil)
	for i, r := range sf.rows {
		sgn := 1.0
		if r.rhs < 0 {
			sgn = -1
		}
		row := tb.t.RawRowView(i)
		for k, col := range r.cols {
			row[col] += sgn * r.coefs[k]
		}
		row[n+i] = 1
		row[tb.rhs] = sgn * r.rhs
		tb.sign[i] = sgn
		tb.basis[i] = n + i
		tb.scale = math.Max(tb.scale, math.Abs(r.rhs))
	}
	return tb
}

// solve runs phase one on the artificials, drives the remaining zero-level
// artificials out of the basis where a structural pivot exists, then runs
// phase two on the real costs. Artificials never re-enter.
func (tb *tableau) solve(ctx context.Context, limit int) (plan.SolveStatus, error) {
	if tb.m == 0 {
		for _, c := range tb.cost {
			if c < -tb.tol {
				return plan.StatusUnbounded, nil
			}
		}
		return plan.StatusOptimal, nil
	}
	if limit <= 0 {
		limit = 100*(tb.m+tb.n) + 1000
	}

	for i := 0; i < tb.m; i++ {
		floats.AddScaled(tb.d, -1, tb.t.RawRowView(i))
	}
	for i := 0; i < tb.m; i++ {
		tb.d[tb.n+i] = 0
	}
	if _, err := tb.iterate(ctx, limit); err != nil {
		return plan.StatusFailed, err
	}
	if -tb.d[tb.rhs] > feasTol*tb.scale {
		return plan.StatusInfeasible, nil
	}
	tb.evictArtificials()

	for j := range tb.d {
		tb.d[j] = 0
	}
	copy(tb.d, tb.cost)
	for i, b := range tb.basis {
		if b < tb.n && tb.cost[b] != 0 {
			floats.AddScaled(tb.d, -tb.cost[b], tb.t.RawRowView(i))
		}
	}
	for _, b := range tb.basis {
		tb.d[b] = 0
	}
	return tb.iterate(ctx, limit)
}

func (tb *tableau) iterate(ctx context.Context, limit int) (plan.SolveStatus, error) {
	degenerate := 0
	for {
		if err := ctx.Err(); err != nil {
			return plan.StatusFailed, err
		}
		enter := tb.entering(degenerate >= degenerateRun)
		if enter < 0 {
			return plan.StatusOptimal, nil
		}
		if tb.pivots >= limit {
			return plan.StatusFailed, fmt.Errorf("no optimum after %d pivots", tb.pivots)
		}
		leave := tb.leaving(enter)
		if leave < 0 {
			return plan.StatusUnbounded, nil
		}
		if tb.t.At(leave, tb.rhs) <= pivotTol {
			degenerate++
		} else {
			degenerate = 0
		}
		tb.pivot(leave, enter)
	}
}

// entering returns the column with the most negative reduced cost, or with
// bland the first negative one; -1 when none is below -tol.
func (tb *tableau) entering(bland bool) int {
	best, enter := -tb.tol, -1
	for j := 0; j < tb.n; j++ {
		if tb.d[j] >= best {
			continue
		}
		if bland {
			return j
		}
		best, enter = tb.d[j], j
	}
	return enter
}

// leaving runs the ratio test on column enter. Ties go to the smallest basic
// column. -1 means the column is a ray.
func (tb *tableau) leaving(enter int) int {
	const tie = 1e-12
	leave, ratio := -1, math.Inf(1)
	for i := 0; i < tb.m; i++ {
		a := tb.t.At(i, enter)
		if a <= pivotTol {
			continue
		}
		r := math.Max(tb.t.At(i, tb.rhs), 0) / a
		switch {
		case r < ratio-tie:
			leave, ratio = i, r
		case r <= ratio+tie && tb.basis[i] < tb.basis[leave]:
			leave, ratio = i, math.Min(r, ratio)
		}
	}
	return leave
}

func (tb *tableau) pivot(r, c int) {
	prow := tb.t.RawRowView(r)
	floats.Scale(1/prow[c], prow)
	prow[c] = 1
	for i := 0; i < tb.m; i++ {
		if i == r {
			continue
		}
		row := tb.t.RawRowView(i)
		if f := row[c]; f != 0 {
			floats.AddScaled(row, -f, prow)
			row[c] = 0
		}
	}
	if f := tb.d[c]; f != 0 {
		floats.AddScaled(tb.d, -f, prow)
		tb.d[c] = 0
	}
	tb.basis[r] = c
	tb.pivots++
}

// evictArtificials swaps zero-level artificials for the largest structural
// entry in their row. A row with none is redundant and keeps its artificial.
func (tb *tableau) evictArtificials() {
	for i, b := range tb.basis {
		if b < tb.n {
			continue
		}
		row := tb.t.RawRowView(i)
		best, col := pivotTol, -1
		for j := 0; j < tb.n; j++ {
			if a := math.Abs(row[j]); a > best {
				best, col = a, j
			}
		}
		if col >= 0 {
			tb.pivot(i, col)
		}
	}
}

// values returns the standard-form point of the current basis.
func (tb *tableau) values() []float64 {
	y := make([]float64, tb.n)
	for i, b := range tb.basis {
		if b < tb.n {
			y[b] = math.Max(tb.t.At(i, tb.rhs), 0)
		}
	}
	return y
}

// prices returns d objective / d b for every standard-form row, undoing the
// row negation.
func (tb *tableau) prices() []float64 {
	p := make([]float64, tb.m)
	for i := range p {
		p[i] = -tb.sign[i] * tb.d[tb.n+i]
	}
	return p
}
