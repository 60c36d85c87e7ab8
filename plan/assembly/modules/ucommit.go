package modules

import (
	"math"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/registry"
)

// ucommit cycles commitment-eligible units through commit/start/shut
// indicators. Inactive when commitment is off; eligible units then dispatch
// like any thermal resource.
type ucommit struct{}

func newUCommit(setup plan.Setup) assembly.Module {
	if setup.UCommit == plan.UCommitOff {
		return nil
	}
	return ucommit{}
}

func (ucommit) Name() string                       { return "ucommit" }
func (ucommit) Contributes() assembly.Contribution { return assembly.Objective }

func (ucommit) Declare(b *assembly.Builder) error {
	set, err := b.Subset(registry.CapCommit)
	if err != nil {
		return err
	}
	for _, name := range []string{assembly.VarCommit, assembly.VarStart, assembly.VarShut} {
		if _, err := b.NewGrid(name, set, hourly(b), 0, inf, b.CommitKind()); err != nil {
			return err
		}
	}
	return nil
}

func (ucommit) Constrain(b *assembly.Builder) error {
	g, err := grids(b, assembly.VarCommit, assembly.VarStart, assembly.VarShut, assembly.VarDischarge)
	if err != nil {
		return err
	}
	commit, start, shut, power := g[0], g[1], g[2], g[3]
	ti := b.Time
	for _, y := range commit.Keys() {
		r := b.Registry.Resource(y)
		size := r.UnitSize()
		capacity := b.Capacity(y)
		for s := 0; s < b.S(); s++ {
			for t := 0; t < b.T(); t++ {
				tb := ti.Before(t, 1)
				x, su, sd, p := commit.At(y, t, s), start.At(y, t, s), shut.At(y, t, s), power.At(y, t, s)
				avail := b.Availability(y, t, s)

				// commit[t] = commit[t-1] + start[t] - shut[t], wrapping at period starts
				b.Constrain(cell("cCommitBalance", r.ID, t, s),
					model.V(x).Plus(-1, commit.At(y, tb, s)).Plus(-1, su).Plus(1, sd), model.EQ, model.C(0))
				b.Constrain(cell("cCommitCap", r.ID, t, s), model.V(x).Scaled(size), model.LE, capacity)
				b.Constrain(cell("cStartCap", r.ID, t, s), model.V(su).Scaled(size), model.LE, capacity)
				b.Constrain(cell("cShutCap", r.ID, t, s), model.V(sd).Scaled(size), model.LE, capacity)

				b.Constrain(cell("cMaxPower", r.ID, t, s), model.V(p), model.LE, model.V(x).Scaled(avail*size))
				if r.MinPower > 0 {
					b.Constrain(cell("cMinPower", r.ID, t, s), model.V(p), model.GE, model.V(x).Scaled(r.MinPower*size))
				}

				pb := power.At(y, tb, s)
				if r.RampUp > 0 && r.RampUp < 1 {
					lim := model.V(x).Scaled(r.RampUp * size)
					lim.Add(-r.RampUp*size, su)
					lim.Add(math.Min(avail, math.Max(r.MinPower, r.RampUp))*size, su)
					lim.Add(-r.MinPower*size, sd)
					b.Constrain(cell("cRampUp", r.ID, t, s), model.V(p).Plus(-1, pb), model.LE, lim)
				}
				if r.RampDown > 0 && r.RampDown < 1 {
					lim := model.V(x).Scaled(r.RampDown * size)
					lim.Add(-r.RampDown*size, su)
					lim.Add(-r.MinPower*size, su)
					lim.Add(math.Max(r.MinPower, r.RampDown)*size, sd)
					b.Constrain(cell("cRampDown", r.ID, t, s), model.V(pb).Plus(-1, p), model.LE, lim)
				}

				if r.UpTime > 0 {
					var started model.Expr
					for _, tau := range ti.Window(t, r.UpTime) {
						started.Add(1, start.At(y, tau, s))
					}
					b.Constrain(cell("cMinUp", r.ID, t, s), model.V(x), model.GE, started)
				}
				if r.DownTime > 0 {
					lhs := model.V(x).Scaled(size)
					for _, tau := range ti.Window(t, r.DownTime) {
						lhs.Add(size, shut.At(y, tau, s))
					}
					b.Constrain(cell("cMinDown", r.ID, t, s), lhs, model.LE, capacity)
				}

				if r.StartCostPerMW > 0 {
					b.AddTerm(assembly.AccOperatingCost, r.StartCostPerMW*size*b.CostWeight(t, s), su, s)
				}
			}
		}
	}
	return nil
}
