package modules

import (
	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/registry"
)

// flexdemand lets demand move in time. The resource's output is demand
// deferred at hour t; vCHARGE_FLEX is deferred demand served later. The
// signed state is positive while demand is deferred and negative while it
// has been served early, and either must be repaid inside its window.
type flexdemand struct{}

func newFlexDemand(plan.Setup) assembly.Module { return flexdemand{} }

func (flexdemand) Name() string                       { return "flexdemand" }
func (flexdemand) Contributes() assembly.Contribution { return assembly.PowerBalance }

func (flexdemand) Declare(b *assembly.Builder) error {
	set := b.Registry.ByTech(registry.FlexDemand)
	if _, err := b.NewGrid(assembly.VarFlexCharge, set, hourly(b), 0, inf, model.Continuous); err != nil {
		return err
	}
	_, err := b.NewGrid(assembly.VarFlexState, set, hourly(b), -inf, inf, model.Continuous)
	return err
}

func (flexdemand) Constrain(b *assembly.Builder) error {
	g, err := grids(b, assembly.VarFlexCharge, assembly.VarFlexState, assembly.VarDischarge)
	if err != nil {
		return err
	}
	charge, state, power := g[0], g[1], g[2]
	ti := b.Time
	for _, y := range charge.Keys() {
		r := b.Registry.Resource(y)
		z := b.Registry.ResourceZone(y)
		capacity := b.Capacity(y)
		eff := r.FlexEfficiency
		if eff == 0 {
			eff = 1
		}
		for s := 0; s < b.S(); s++ {
			for t := 0; t < b.T(); t++ {
				c, x, p := charge.At(y, t, s), state.At(y, t, s), power.At(y, t, s)
				b.AddTerm(assembly.AccPowerBalance, -1, c, z, t, s)

				// state[t] = state[t-1] + eff*deferred - repaid, wrapping at period starts
				lhs := model.V(x).Plus(-1, state.At(y, ti.Before(t, 1), s)).Plus(-eff, p).Plus(1, c)
				b.Constrain(cell("cFlexState", r.ID, t, s), lhs, model.EQ, model.C(0))
				b.Constrain(cell("cFlexChargeMax", r.ID, t, s), model.V(c), model.LE, capacity.Scaled(b.Availability(y, t, s)))

				var repaid model.Expr
				for _, tau := range ti.Ahead(t, r.FlexDelay) {
					repaid.Add(1, charge.At(y, tau, s))
				}
				b.Constrain(cell("cFlexDelay", r.ID, t, s), repaid, model.GE, model.V(x))

				advanced := model.V(x)
				for _, tau := range ti.Ahead(t, r.FlexAdvance) {
					advanced.Add(1, power.At(y, tau, s))
				}
				b.Constrain(cell("cFlexAdvance", r.ID, t, s), advanced, model.GE, model.C(0))
			}
		}
	}
	return nil
}
