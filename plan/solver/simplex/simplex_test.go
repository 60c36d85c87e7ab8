package simplex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/solver"
)

const eps = 1e-7

func solve(t *testing.T, m *model.Model) *solver.Solution {
	t.Helper()
	sol, err := New().Solve(context.Background(), m, solver.Options{})
	require.NoError(t, err)
	return sol
}

func TestSolve_InequalityLP_PrimalAndShadowPrices(t *testing.T) {
	// min x + 2y  s.t.  x + y >= 3,  x <= 2,  x, y >= 0
	m := model.New("ineq")
	x := m.AddVar("x", 0, math.Inf(1), model.Continuous)
	y := m.AddVar("y", 0, math.Inf(1), model.Continuous)
	demand := m.AddConstraint("demand", model.V(x).Plus(1, y), model.GE, model.C(3))
	limit := m.AddConstraint("limit", model.V(x), model.LE, model.C(2))
	m.SetObjective(model.V(x).Plus(2, y))

	sol := solve(t, m)
	require.Equal(t, plan.StatusOptimal, sol.Status)
	assert.InDelta(t, 2, sol.Value(x), eps)
	assert.InDelta(t, 1, sol.Value(y), eps)
	assert.InDelta(t, 4, sol.Objective, eps)
	require.True(t, sol.HasDuals())
	assert.InDelta(t, 2, sol.Dual(demand), eps)
	assert.InDelta(t, -1, sol.Dual(limit), eps)
	assert.False(t, sol.Relaxed)
}

func TestSolve_EqualityWithBoundedVariable(t *testing.T) {
	// min 3x  s.t.  x + y = 4,  0 <= y <= 1
	m := model.New("eq")
	x := m.AddVar("x", 0, math.Inf(1), model.Continuous)
	y := m.AddVar("y", 0, 1, model.Continuous)
	balance := m.AddConstraint("balance", model.V(x).Plus(1, y), model.EQ, model.C(4))
	m.SetObjective(model.V(x).Scaled(3))

	sol := solve(t, m)
	require.Equal(t, plan.StatusOptimal, sol.Status)
	assert.InDelta(t, 3, sol.Value(x), eps)
	assert.InDelta(t, 1, sol.Value(y), eps)
	assert.InDelta(t, 9, sol.Objective, eps)
	assert.InDelta(t, 3, sol.Dual(balance), eps)
}

func TestSolve_ShiftedAndFreeVariables(t *testing.T) {
	// min x + 2z + 10  s.t.  x >= -2 (free x),  z in [1, 5],  x + z >= 0
	m := model.New("shift")
	x := m.AddVar("x", math.Inf(-1), math.Inf(1), model.Continuous)
	z := m.AddVar("z", 1, 5, model.Continuous)
	floor := m.AddConstraint("floor", model.V(x), model.GE, model.C(-2))
	sum := m.AddConstraint("sum", model.V(x).Plus(1, z), model.GE, model.C(0))
	m.SetObjective(model.V(x).Plus(2, z).PlusConst(10))

	sol := solve(t, m)
	require.Equal(t, plan.StatusOptimal, sol.Status)
	assert.InDelta(t, -1, sol.Value(x), eps)
	assert.InDelta(t, 1, sol.Value(z), eps)
	assert.InDelta(t, 11, sol.Objective, eps)
	assert.InDelta(t, 0, sol.Dual(floor), eps)
	assert.InDelta(t, 1, sol.Dual(sum), eps)
}

func TestSolve_UpperBoundedOnly_NoRows(t *testing.T) {
	m := model.New("upper")
	x := m.AddVar("x", math.Inf(-1), 5, model.Continuous)
	m.SetObjective(model.V(x).Scaled(-1))

	sol := solve(t, m)
	require.Equal(t, plan.StatusOptimal, sol.Status)
	assert.InDelta(t, 5, sol.Value(x), eps)
	assert.InDelta(t, -5, sol.Objective, eps)
}

func TestSolve_Infeasible(t *testing.T) {
	tests := []struct {
		name  string
		build func(m *model.Model)
	}{
		{"bound and row conflict", func(m *model.Model) {
			x := m.AddVar("x", 0, 3, model.Continuous)
			m.AddConstraint("c", model.V(x), model.GE, model.C(5))
			m.SetObjective(model.V(x))
		}},
		{"crossed bounds", func(m *model.Model) {
			x := m.AddVar("x", 2, 1, model.Continuous)
			m.SetObjective(model.V(x))
		}},
		{"constant row", func(m *model.Model) {
			m.AddVar("x", 0, 1, model.Continuous)
			m.AddConstraint("c", model.C(1), model.LE, model.C(0))
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := model.New(tc.name)
			tc.build(m)
			sol := solve(t, m)
			assert.Equal(t, plan.StatusInfeasible, sol.Status)
			err := solver.Check(sol, m.Name, -1)
			assert.ErrorIs(t, err, plan.ErrSolver)
		})
	}
}

func TestSolve_Unbounded(t *testing.T) {
	t.Run("unused column", func(t *testing.T) {
		m := model.New("free")
		x := m.AddVar("x", 0, math.Inf(1), model.Continuous)
		m.SetObjective(model.V(x).Scaled(-1))
		assert.Equal(t, plan.StatusUnbounded, solve(t, m).Status)
	})
	t.Run("ray through a row", func(t *testing.T) {
		m := model.New("ray")
		x := m.AddVar("x", 0, math.Inf(1), model.Continuous)
		y := m.AddVar("y", 0, math.Inf(1), model.Continuous)
		m.AddConstraint("c", model.V(x).Plus(-1, y), model.LE, model.C(1))
		m.SetObjective(model.V(x).Scaled(-1))
		assert.Equal(t, plan.StatusUnbounded, solve(t, m).Status)
	})
}

func TestSolve_IntegerVariables_AreRelaxed(t *testing.T) {
	m := model.New("relax")
	u := m.AddVar("u", 0, 1, model.Binary)
	x := m.AddVar("x", 0, math.Inf(1), model.Continuous)
	m.AddConstraint("link", model.V(x), model.LE, model.V(u).Scaled(10))
	m.AddConstraint("need", model.V(x), model.GE, model.C(5))
	m.SetObjective(model.V(u).Plus(1, x))

	sol := solve(t, m)
	require.Equal(t, plan.StatusOptimal, sol.Status)
	assert.True(t, sol.Relaxed)
	assert.InDelta(t, 0.5, sol.Value(u), eps)
}

func TestSolve_ObjectiveMatchesDualBound(t *testing.T) {
	m := model.New("transport")
	a := m.AddVar("a", 0, 6, model.Continuous)
	b := m.AddVar("b", 0, math.Inf(1), model.Continuous)
	m.AddConstraint("load1", model.V(a).Plus(1, b), model.EQ, model.C(8))
	m.AddConstraint("cap", model.V(b), model.LE, model.C(5))
	m.SetObjective(model.V(a).Scaled(2).Plus(7, b))

	sol := solve(t, m)
	require.Equal(t, plan.StatusOptimal, sol.Status)
	assert.InDelta(t, 6, sol.Value(a), eps)
	assert.InDelta(t, 2, sol.Value(b), eps)
	assert.InDelta(t, 26, sol.Objective, eps)
	assert.InDelta(t, 7, sol.Dual(0), eps)
	assert.InDelta(t, 0, sol.Dual(1), eps)
}

func TestSolve_FreeVariableWithNonnegativeCosts(t *testing.T) {
	// GIVEN min 2g with a free d pulling both ways: g + d >= 3, g - d >= 3
	m := model.New("free-split")
	g := m.AddVar("g", 0, math.Inf(1), model.Continuous)
	d := m.AddVar("d", math.Inf(-1), math.Inf(1), model.Continuous)
	up := m.AddConstraint("up", model.V(g).Plus(1, d), model.GE, model.C(3))
	down := m.AddConstraint("down", model.V(g).Plus(-1, d), model.GE, model.C(3))
	m.SetObjective(model.V(g).Scaled(2))

	// WHEN solved
	sol := solve(t, m)

	// THEN the free column settles at zero instead of reporting a ray
	require.Equal(t, plan.StatusOptimal, sol.Status)
	assert.InDelta(t, 3, sol.Value(g), eps)
	assert.InDelta(t, 0, sol.Value(d), eps)
	assert.InDelta(t, 6, sol.Objective, eps)
	assert.InDelta(t, 1, sol.Dual(up), eps)
	assert.InDelta(t, 1, sol.Dual(down), eps)
}

func TestSolve_CyclicChainWithFreeDrifts(t *testing.T) {
	// GIVEN a four-step cycle w[n+1] = w[n] + drift[rep(n)] over reps {0,1,1,0}
	// with w in [0, 40], drift[0] >= 1 and min w[0]
	m := model.New("chain")
	drift := []model.VarID{
		m.AddVar("d0", math.Inf(-1), math.Inf(1), model.Continuous),
		m.AddVar("d1", math.Inf(-1), math.Inf(1), model.Continuous),
	}
	w := make([]model.VarID, 4)
	for n := range w {
		w[n] = m.AddVar(fmt.Sprintf("w%d", n), 0, 40, model.Continuous)
	}
	rep := []int{0, 1, 1, 0}
	for n := range w {
		m.AddConstraint(fmt.Sprintf("chain%d", n), model.V(w[(n+1)%4]).Plus(-1, w[n]).Plus(-1, drift[rep[n]]), model.EQ, model.C(0))
	}
	m.AddConstraint("push", model.V(drift[0]), model.GE, model.C(1))
	m.SetObjective(model.V(w[0]))

	sol := solve(t, m)

	// THEN the drifts cancel over the cycle and the lowest level touches zero
	require.Equal(t, plan.StatusOptimal, sol.Status)
	assert.InDelta(t, 1, sol.Value(drift[0]), eps)
	assert.InDelta(t, -1, sol.Value(drift[1]), eps)
	assert.InDelta(t, 1, sol.Objective, eps)
	want := []float64{1, 2, 1, 0}
	for n, v := range w {
		assert.InDelta(t, want[n], sol.Value(v), eps, "w%d", n)
	}
	assert.Empty(t, m.Violations(sol.Primal, 1e-7, nil))
}

func TestSolve_RedundantEqualities(t *testing.T) {
	m := model.New("redundant")
	x := m.AddVar("x", 0, math.Inf(1), model.Continuous)
	y := m.AddVar("y", 0, math.Inf(1), model.Continuous)
	one := m.AddConstraint("one", model.V(x).Plus(1, y), model.EQ, model.C(2))
	two := m.AddConstraint("two", model.V(x).Scaled(2).Plus(2, y), model.EQ, model.C(4))
	m.SetObjective(model.V(x).Plus(2, y))

	sol := solve(t, m)
	require.Equal(t, plan.StatusOptimal, sol.Status)
	assert.InDelta(t, 2, sol.Value(x), eps)
	assert.InDelta(t, 0, sol.Value(y), eps)
	// any split of the price between the copies is valid, the priced sum is not
	assert.InDelta(t, 1, sol.Dual(one)+2*sol.Dual(two), eps)
}

func TestSolve_IterationLimit_ReturnsSolverError(t *testing.T) {
	m := model.New("limited")
	x := m.AddVar("x", 0, math.Inf(1), model.Continuous)
	y := m.AddVar("y", 0, math.Inf(1), model.Continuous)
	m.AddConstraint("c", model.V(x).Plus(1, y), model.GE, model.C(3))
	// phase one brings x in, phase two needs a second pivot to swap it for y
	m.SetObjective(model.V(x).Scaled(2).Plus(1, y))

	_, err := New().Solve(context.Background(), m, solver.Options{IterationLimit: 1})
	var se *plan.SolverError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, plan.StatusFailed, se.Status)
}

func TestSolve_CanceledContext_StopsPivoting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := model.New("canceled")
	x := m.AddVar("x", 0, math.Inf(1), model.Continuous)
	m.AddConstraint("c", model.V(x), model.GE, model.C(1))
	m.SetObjective(model.V(x))

	_, err := New().Solve(ctx, m, solver.Options{})
	assert.ErrorIs(t, err, plan.ErrSolver)
	assert.ErrorIs(t, err, context.Canceled)
}
