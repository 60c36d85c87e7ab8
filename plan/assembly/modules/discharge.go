package modules

import (
	"slices"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/registry"
)

// discharge owns the output variable of every resource: generation for
// supply resources, discharge for storage and served-early demand for
// flexible demand.
type discharge struct{}

func newDischarge(plan.Setup) assembly.Module { return discharge{} }

func (discharge) Name() string { return "discharge" }

func (discharge) Contributes() assembly.Contribution {
	return assembly.PowerBalance | assembly.Objective | assembly.Policy
}

func (discharge) Declare(b *assembly.Builder) error {
	all := make([]int, b.Registry.NumResources())
	for i := range all {
		all[i] = i
	}
	_, err := b.NewGrid(assembly.VarDischarge, all, hourly(b), 0, inf, model.Continuous)
	return err
}

func (discharge) Constrain(b *assembly.Builder) error {
	p, err := b.Grid(assembly.VarDischarge)
	if err != nil {
		return err
	}
	reg := b.Registry
	pol := reg.Policies()
	for y := range reg.Resources() {
		r := reg.Resource(y)
		z := reg.ResourceZone(y)
		capacity := b.Capacity(y)
		if b.Setup.EnergyShare {
			for k := range r.ESR {
				if err := checkPolicy("energy-share", r, k, len(pol.EnergyShares)); err != nil {
					return err
				}
			}
		}
		var margins []int
		if b.Setup.CapacityReserveMargin && !r.IsStorage() && r.Tech != registry.FlexDemand {
			for k := range r.CRM {
				if err := checkPolicy("capacity-reserve-margin", r, k, len(pol.ReserveMargin)); err != nil {
					return err
				}
				if slices.Contains(zoneList(reg, pol.ReserveMargin[k].Zones), z) {
					margins = append(margins, k)
				}
			}
		}
		for s := 0; s < b.S(); s++ {
			for t := 0; t < b.T(); t++ {
				v := p.At(y, t, s)
				avail := b.Availability(y, t, s)
				b.AddTerm(assembly.AccPowerBalance, 1, v, z, t, s)
				if c := r.VarOMPerMWh + r.HeatRate*b.FuelPrice(y, t, s); c != 0 {
					b.AddTerm(assembly.AccOperatingCost, c*b.CostWeight(t, s), v, s)
				}
				switch {
				case r.Tech == registry.MustRun:
					b.Constrain(cell("cMustRun", r.ID, t, s), model.V(v), model.EQ, capacity.Scaled(avail))
				case committed(b, r):
					// bounded by the commitment module
				default:
					b.Constrain(cell("cMaxPower", r.ID, t, s), model.V(v), model.LE, capacity.Scaled(avail))
				}
				if b.Setup.EnergyShare {
					for k, share := range r.ESR {
						if share != 0 {
							b.AddTerm(assembly.AccEnergyShare, share*b.Time.Weight(t), v, k, s)
						}
					}
				}
				for _, k := range margins {
					b.AddExpr(assembly.AccCapacityMargin, r.CRM[k]*avail, capacity, k, t, s)
				}
			}
		}
	}
	return nil
}
