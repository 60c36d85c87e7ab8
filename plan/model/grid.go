package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Grid is a block of variables indexed by a sparse key (usually a resource
// index drawn from a registry subset) and dense trailing dimensions (usually
// hour and scenario).
type Grid struct {
	Name  string
	keys  []int
	row   map[int]int
	dims  []int
	cells int
	ids   []VarID
}

// NewGrid adds one variable per (key, idx...) to m. keyName labels keys in
// variable names and may be nil.
func NewGrid(m *Model, name string, keys []int, keyName func(int) string, dims []int,
	lower, upper float64, kind Kind) *Grid {
	g := &Grid{
		Name: name,
		keys: append([]int(nil), keys...),
		row:  make(map[int]int, len(keys)),
		dims: append([]int(nil), dims...),
	}
	cells := 1
	for _, d := range dims {
		cells *= d
	}
	g.cells = cells
	g.ids = make([]VarID, 0, len(keys)*cells)
	idx := make([]int, len(dims))
	for r, k := range keys {
		g.row[k] = r
		label := strconv.Itoa(k)
		if keyName != nil {
			label = keyName(k)
		}
		for c := 0; c < cells; c++ {
			rem := c
			for i := len(dims) - 1; i >= 0; i-- {
				idx[i] = rem % dims[i]
				rem /= dims[i]
			}
			g.ids = append(g.ids, m.AddVar(cellName(name, label, idx), lower, upper, kind))
		}
	}
	return g
}

func cellName(name, key string, idx []int) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('[')
	b.WriteString(key)
	for _, i := range idx {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(i))
	}
	b.WriteByte(']')
	return b.String()
}

// Keys returns the keys the grid was built over.
func (g *Grid) Keys() []int { return g.keys }

// Has reports whether key has variables in g.
func (g *Grid) Has(key int) bool {
	_, ok := g.row[key]
	return ok
}

// Lookup returns the variable at (key, idx...).
func (g *Grid) Lookup(key int, idx ...int) (VarID, bool) {
	r, ok := g.row[key]
	if !ok {
		return 0, false
	}
	off := 0
	for i, x := range idx {
		off = off*g.dims[i] + x
	}
	return g.ids[r*g.cells+off], true
}

// At returns the variable at (key, idx...) and panics when key is not part
// of the grid; callers check Has first for optional memberships.
func (g *Grid) At(key int, idx ...int) VarID {
	v, ok := g.Lookup(key, idx...)
	if !ok {
		panic(fmt.Sprintf("grid %s has no key %d", g.Name, key))
	}
	return v
}
