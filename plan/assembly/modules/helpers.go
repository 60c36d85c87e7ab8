package modules

import (
	"fmt"
	"math"
	"slices"

	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/registry"
)

var inf = math.Inf(1)

// hourly is the [hour, scenario] shape of operating variables.
func hourly(b *assembly.Builder) []int { return []int{b.T(), b.S()} }

// zoneList returns the registry indices of the named zones in ascending
// order, without repeats.
func zoneList(reg *registry.Registry, ids []string) []int {
	var out []int
	for _, id := range ids {
		if z, ok := reg.ZoneIndex(id); ok && !slices.Contains(out, z) {
			out = append(out, z)
		}
	}
	slices.Sort(out)
	return out
}

// checkPolicy fails when a resource names a policy index that is not defined.
func checkPolicy(kind string, r *registry.Resource, p, defined int) error {
	if p < 0 || p >= defined {
		return fmt.Errorf("resource %q references %s policy %d but only %d are defined", r.ID, kind, p, defined)
	}
	return nil
}

// grids looks up several variable sets, failing on the first undeclared one.
func grids(b *assembly.Builder, names ...string) ([]*model.Grid, error) {
	out := make([]*model.Grid, len(names))
	for i, n := range names {
		g, err := b.Grid(n)
		if err != nil {
			return nil, err
		}
		out[i] = g
	}
	return out, nil
}

// committed reports whether y's output is governed by commitment variables.
func committed(b *assembly.Builder, r *registry.Resource) bool {
	return b.HasGrid(assembly.VarCommit) && r.Has(registry.CapCommit)
}

func cell(name, id string, t, s int) string {
	return fmt.Sprintf("%s[%s,%d,%d]", name, id, t, s)
}
