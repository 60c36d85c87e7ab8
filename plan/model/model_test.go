package model

import (
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpr_Canonical_MergesAndSorts(t *testing.T) {
	var e Expr
	e.Add(2, 3).Add(1, 1).Add(-2, 3).Add(4, 1).AddConst(5)
	c := e.Canonical()
	assert.Equal(t, []Term{{Var: 1, Coef: 5}}, c.Terms)
	assert.Equal(t, 5.0, c.Constant)
}

func TestExpr_Eval(t *testing.T) {
	var e Expr
	e.Add(2, 0).Add(-1, 1).AddConst(3)
	assert.Equal(t, 2*4.0-1*5.0+3, e.Eval([]float64{4, 5}))
}

func TestModel_AddConstraint_FoldsConstantIntoRHS(t *testing.T) {
	m := New("t")
	x := m.AddVar("x", 0, 10, Continuous)
	y := m.AddVar("y", 0, 10, Continuous)
	lhs := V(x)
	lhs.AddConst(2)
	rhs := V(y)
	rhs.AddConst(7)
	id := m.AddConstraint("c", lhs, LE, rhs)

	c := m.Constraint(id)
	assert.Equal(t, 5.0, c.RHS)
	assert.Equal(t, 0.0, c.Expr.Constant)
	assert.Equal(t, 1.0, c.Expr.Coef(x))
	assert.Equal(t, -1.0, c.Expr.Coef(y))
}

func TestModel_Violations_ReportsConstraintsAndBounds(t *testing.T) {
	m := New("t")
	x := m.AddVar("x", 0, 1, Continuous)
	y := m.AddVar("y", 0, math.Inf(1), Continuous)
	m.AddConstraint("cSum", Expr{Terms: []Term{{x, 1}, {y, 1}}}, EQ, C(3))
	m.AddConstraint("cCap", V(y), LE, C(1))

	assert.Empty(t, m.Violations([]float64{1, 2}, 1e-9, func(n string) bool { return n == "cSum" }))

	vs := m.Violations([]float64{2, 2}, 1e-9, nil)
	names := make([]string, 0, len(vs))
	for _, v := range vs {
		names = append(names, v.Name)
	}
	assert.ElementsMatch(t, []string{"cSum", "cCap", "x"}, names)
}

func TestModel_BinaryBoundsClamped(t *testing.T) {
	m := New("t")
	b := m.AddVar("b", -5, 5, Binary)
	assert.Equal(t, 0.0, m.Var(b).Lower)
	assert.Equal(t, 1.0, m.Var(b).Upper)
	assert.True(t, m.HasIntegers())
}

func TestGrid_LookupMatchesCreationOrder(t *testing.T) {
	m := New("t")
	g := NewGrid(m, "vP", []int{4, 9}, func(k int) string { return map[int]string{4: "gas", 9: "wind"}[k] },
		[]int{3, 2}, 0, math.Inf(1), Continuous)

	require.True(t, g.Has(9))
	assert.False(t, g.Has(5))
	v := g.At(9, 2, 1)
	assert.Equal(t, "vP[wind,2,1]", m.Var(v).Name)
	v = g.At(4, 0, 1)
	assert.Equal(t, "vP[gas,0,1]", m.Var(v).Name)
	assert.Equal(t, 12, m.NumVars())

	_, ok := g.Lookup(5, 0, 0)
	assert.False(t, ok)
}

func TestAccumulator_OrderIndependent(t *testing.T) {
	type contribution struct {
		module string
		coef   float64
		v      VarID
		idx    int
	}
	var contribs []contribution
	for i := 0; i < 40; i++ {
		contribs = append(contribs, contribution{
			module: []string{"discharge", "nse", "storage"}[i%3],
			coef:   float64(i%7 + 1),
			v:      VarID(i % 5),
			idx:    i % 4,
		})
	}
	build := func(order []int) *Accumulator {
		a := NewAccumulator("balance", 4)
		for _, k := range order {
			c := contribs[k]
			a.AddTerm(c.module, c.coef, c.v, c.idx)
		}
		return a
	}
	identity := make([]int, len(contribs))
	for i := range identity {
		identity[i] = i
	}
	shuffled := append([]int(nil), identity...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	a, b := build(identity), build(shuffled)
	for i := 0; i < 4; i++ {
		assert.Equal(t, a.At(i), b.At(i))
	}
	assert.Equal(t, []string{"discharge", "nse", "storage"}, a.Contributors())
}

func TestAccumulator_ConcurrentAdds_AllLand(t *testing.T) {
	a := NewAccumulator("cost")
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				a.AddTerm("m", 1, VarID(w))
			}
		}(w)
	}
	wg.Wait()
	total := a.At()
	require.Len(t, total.Terms, 8)
	for _, term := range total.Terms {
		assert.Equal(t, 100.0, term.Coef)
	}
}

func TestAccumulator_BadIndexPanics(t *testing.T) {
	a := NewAccumulator("balance", 2, 3)
	assert.Panics(t, func() { a.AddConst("m", 1, 2, 0) })
	assert.Panics(t, func() { a.AddConst("m", 1, 0) })
}

func TestExpr_String(t *testing.T) {
	var e Expr
	e.Add(2, 1).AddConst(3)
	assert.True(t, strings.Contains(e.String(), "2*x1"))
}
