package modules

import (
	"slices"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/registry"
)

// storage adds charging and state of charge to storage resources. The
// balance wraps at period boundaries; for long-duration resources the
// period-start balance is left to the inter-period linker.
type storage struct{}

func newStorage(plan.Setup) assembly.Module { return storage{} }

func (storage) Name() string { return "storage" }

func (storage) Contributes() assembly.Contribution {
	return assembly.PowerBalance | assembly.Objective | assembly.Policy
}

func storageSet(b *assembly.Builder) []int {
	return b.Registry.ByTech(registry.Storage)
}

func (storage) Declare(b *assembly.Builder) error {
	set := storageSet(b)
	if _, err := b.NewGrid(assembly.VarCharge, set, hourly(b), 0, inf, model.Continuous); err != nil {
		return err
	}
	_, err := b.NewGrid(assembly.VarSOC, set, hourly(b), 0, inf, model.Continuous)
	return err
}

// linkedByLDS reports whether r's period-start balance belongs to the
// long-duration linker.
func linkedByLDS(b *assembly.Builder, r *registry.Resource) bool {
	return b.Setup.LongDurationStorage && r.Has(registry.CapLongDuration)
}

func (storage) Constrain(b *assembly.Builder) error {
	g, err := grids(b, assembly.VarCharge, assembly.VarSOC, assembly.VarDischarge)
	if err != nil {
		return err
	}
	charge, soc, power := g[0], g[1], g[2]
	reg := b.Registry
	pol := reg.Policies()
	ti := b.Time
	for _, y := range charge.Keys() {
		r := reg.Resource(y)
		z := reg.ResourceZone(y)
		capacity := b.Capacity(y)
		energy := b.EnergyCapacity(y)
		var margins []int
		if b.Setup.CapacityReserveMargin {
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
				tb := ti.Before(t, 1)
				c, e, p := charge.At(y, t, s), soc.At(y, t, s), power.At(y, t, s)

				b.AddTerm(assembly.AccPowerBalance, -1, c, z, t, s)
				if r.VarOMChargePerMWh > 0 {
					b.AddTerm(assembly.AccOperatingCost, r.VarOMChargePerMWh*b.CostWeight(t, s), c, s)
				}

				b.Constrain(cell("cChargeMax", r.ID, t, s), model.V(p).Plus(1, c), model.LE, capacity)
				b.Constrain(cell("cSocMax", r.ID, t, s), model.V(e), model.LE, energy)
				b.Constrain(cell("cDischargeSoc", r.ID, t, s), model.V(p).Scaled(1/r.EffDown), model.LE, model.V(soc.At(y, tb, s)))

				if !(ti.IsStart(t) && linkedByLDS(b, r)) {
					// soc[t] = (1-sd)*soc[t-1] - p/eff_down + eff_up*charge
					lhs := model.V(e).Plus(-(1 - r.SelfDischarge), soc.At(y, tb, s)).Plus(1/r.EffDown, p).Plus(-r.EffUp, c)
					b.Constrain(cell("cSocBalance", r.ID, t, s), lhs, model.EQ, model.C(0))
				}

				for _, k := range margins {
					b.AddTerm(assembly.AccCapacityMargin, r.CRM[k], p, k, t, s)
					b.AddTerm(assembly.AccCapacityMargin, -r.CRM[k], c, k, t, s)
				}
			}
		}
	}
	return nil
}
