package model

import (
	"fmt"
	"sort"
	"sync"
)

// Accumulator is a named, indexed aggregation point that many modules add
// terms into. Every Add is linearizable; no contributor can overwrite
// another's terms, so the final value is the sum of all contributions
// regardless of the order modules ran in.
type Accumulator struct {
	name  string
	dims  []int
	mu    sync.Mutex
	exprs []Expr
	// contributions per module, for diagnostics and order-independence checks
	contributors map[string]int
}

// NewAccumulator allocates an accumulator with the given index dimensions.
func NewAccumulator(name string, dims ...int) *Accumulator {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return &Accumulator{
		name:         name,
		dims:         append([]int(nil), dims...),
		exprs:        make([]Expr, n),
		contributors: make(map[string]int),
	}
}

// Name returns the accumulator name.
func (a *Accumulator) Name() string { return a.name }

// Dims returns the index dimensions.
func (a *Accumulator) Dims() []int { return a.dims }

func (a *Accumulator) offset(idx []int) int {
	if len(idx) != len(a.dims) {
		panic(fmt.Sprintf("accumulator %s: %d indices for %d dimensions", a.name, len(idx), len(a.dims)))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= a.dims[i] {
			panic(fmt.Sprintf("accumulator %s: index %v out of range %v", a.name, idx, a.dims))
		}
		off = off*a.dims[i] + x
	}
	return off
}

// Add adds scale*e at idx on behalf of module.
func (a *Accumulator) Add(module string, scale float64, e Expr, idx ...int) {
	off := a.offset(idx)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exprs[off].AddExpr(scale, e)
	a.contributors[module]++
}

// AddTerm adds coef*v at idx on behalf of module.
func (a *Accumulator) AddTerm(module string, coef float64, v VarID, idx ...int) {
	off := a.offset(idx)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exprs[off].Add(coef, v)
	a.contributors[module]++
}

// AddConst adds c at idx on behalf of module.
func (a *Accumulator) AddConst(module string, c float64, idx ...int) {
	off := a.offset(idx)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exprs[off].AddConst(c)
	a.contributors[module]++
}

// At returns the canonical sum at idx.
func (a *Accumulator) At(idx ...int) Expr {
	off := a.offset(idx)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exprs[off].Canonical()
}

// Total returns the canonical sum over every index.
func (a *Accumulator) Total() Expr {
	a.mu.Lock()
	defer a.mu.Unlock()
	var sum Expr
	for _, e := range a.exprs {
		sum.AddExpr(1, e)
	}
	return sum.Canonical()
}

// Contributors returns the names of modules that added to a, sorted.
func (a *Accumulator) Contributors() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.contributors))
	for m := range a.contributors {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
