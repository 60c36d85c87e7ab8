package modules

import (
	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/model"
)

// transmission moves power between zones over lossy lines, one forward and
// one backward flow per line.
type transmission struct{}

func newTransmission(plan.Setup) assembly.Module { return transmission{} }

func (transmission) Name() string                       { return "transmission" }
func (transmission) Contributes() assembly.Contribution { return assembly.PowerBalance }

func (transmission) Declare(b *assembly.Builder) error {
	lines := b.Registry.Lines()
	keys := make([]int, len(lines))
	for i := range keys {
		keys[i] = i
	}
	label := func(i int) string { return lines[i].ID }
	if _, err := b.NewLabeledGrid(assembly.VarFlowFwd, keys, label, hourly(b), 0, inf, model.Continuous); err != nil {
		return err
	}
	_, err := b.NewLabeledGrid(assembly.VarFlowBwd, keys, label, hourly(b), 0, inf, model.Continuous)
	return err
}

func (transmission) Constrain(b *assembly.Builder) error {
	g, err := grids(b, assembly.VarFlowFwd, assembly.VarFlowBwd)
	if err != nil {
		return err
	}
	fwd, bwd := g[0], g[1]
	reg := b.Registry
	for l, line := range reg.Lines() {
		from, _ := reg.ZoneIndex(line.From)
		to, _ := reg.ZoneIndex(line.To)
		keep := 1 - line.Loss
		for s := 0; s < b.S(); s++ {
			for t := 0; t < b.T(); t++ {
				f, r := fwd.At(l, t, s), bwd.At(l, t, s)
				b.Constrain(cell("cFlowMax", line.ID, t, s), model.V(f).Plus(1, r), model.LE, model.C(line.MaxFlowMW))
				b.AddTerm(assembly.AccPowerBalance, -1, f, from, t, s)
				b.AddTerm(assembly.AccPowerBalance, keep, r, from, t, s)
				b.AddTerm(assembly.AccPowerBalance, keep, f, to, t, s)
				b.AddTerm(assembly.AccPowerBalance, -1, r, to, t, s)
			}
		}
	}
	return nil
}
