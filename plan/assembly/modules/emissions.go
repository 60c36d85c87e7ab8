package modules

import (
	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
)

// emissions derives zonal CO2 from dispatch and, for committed units, from
// starts. It creates no variables.
type emissions struct{}

func newEmissions(plan.Setup) assembly.Module { return emissions{} }

func (emissions) Name() string                       { return "emissions" }
func (emissions) Contributes() assembly.Contribution { return assembly.Emissions }
func (emissions) Declare(*assembly.Builder) error    { return nil }

func (emissions) Constrain(b *assembly.Builder) error {
	power, err := b.Grid(assembly.VarDischarge)
	if err != nil {
		return err
	}
	start, _ := b.Grid(assembly.VarStart)
	reg := b.Registry
	for y := range reg.Resources() {
		r := reg.Resource(y)
		perStart := 0.0
		if start != nil && start.Has(y) {
			perStart = r.CO2PerStart * r.UnitSize()
		}
		if r.CO2PerMWh == 0 && perStart == 0 {
			continue
		}
		z := reg.ResourceZone(y)
		for s := 0; s < b.S(); s++ {
			for t := 0; t < b.T(); t++ {
				if r.CO2PerMWh != 0 {
					b.AddTerm(assembly.AccEmissions, r.CO2PerMWh, power.At(y, t, s), z, t, s)
				}
				if perStart != 0 {
					b.AddTerm(assembly.AccEmissions, perStart, start.At(y, t, s), z, t, s)
				}
			}
		}
	}
	return nil
}
