package modules

import (
	"fmt"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/model"
)

// nse models demand curtailment: one variable per (zone, segment, hour,
// scenario), each segment capped at its fraction of zonal demand and the
// segments together at the whole demand.
type nse struct{}

func newNSE(plan.Setup) assembly.Module { return nse{} }

func (nse) Name() string { return "nse" }

func (nse) Contributes() assembly.Contribution {
	return assembly.PowerBalance | assembly.Objective
}

// segmentKeys numbers segments z*K + k where K is the largest segment count.
func segmentKeys(b *assembly.Builder) (keys []int, stride int) {
	zones := b.Registry.Zones()
	for _, z := range zones {
		if len(z.Curtailment) > stride {
			stride = len(z.Curtailment)
		}
	}
	for zi, z := range zones {
		for k := range z.Curtailment {
			keys = append(keys, zi*stride+k)
		}
	}
	return keys, stride
}

func (nse) Declare(b *assembly.Builder) error {
	keys, stride := segmentKeys(b)
	zones := b.Registry.Zones()
	label := func(key int) string {
		return fmt.Sprintf("%s/%d", zones[key/stride].ID, key%stride+1)
	}
	_, err := b.NewLabeledGrid(assembly.VarNSE, keys, label, hourly(b), 0, inf, model.Continuous)
	return err
}

func (nse) Constrain(b *assembly.Builder) error {
	g, err := b.Grid(assembly.VarNSE)
	if err != nil {
		return err
	}
	_, stride := segmentKeys(b)
	for zi, z := range b.Registry.Zones() {
		if len(z.Curtailment) == 0 {
			continue
		}
		for s := 0; s < b.S(); s++ {
			for t := 0; t < b.T(); t++ {
				demand := b.Demand(zi, t, s)
				var total model.Expr
				for k, seg := range z.Curtailment {
					v := g.At(zi*stride+k, t, s)
					name := cell("cNSESegment", fmt.Sprintf("%s/%d", z.ID, k+1), t, s)
					b.Constrain(name, model.V(v), model.LE, model.C(seg.MaxFraction*demand))
					total.Add(1, v)
					b.AddTerm(assembly.AccPowerBalance, 1, v, zi, t, s)
					b.AddTerm(assembly.AccOperatingCost, seg.Cost*b.CostWeight(t, s), v, s)
				}
				b.Constrain(cell("cNSE", z.ID, t, s), total, model.LE, model.C(demand))
			}
		}
	}
	return nil
}
