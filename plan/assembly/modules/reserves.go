package modules

import (
	"fmt"
	"math"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/registry"
)

// defaultBigM bounds capacity in the contingency links when neither the
// setup nor the resource gives a tighter value.
const defaultBigM = 1e5

// reserves provides regulation and spinning reserve and enforces the system
// requirements: fractions of demand and of variable output, plus an optional
// contingency term.
type reserves struct {
	contingency string
	staticMW    float64
	bigM        float64
}

func newReserves(setup plan.Setup) assembly.Module {
	if !setup.Reserves {
		return nil
	}
	return reserves{contingency: setup.Contingency, staticMW: setup.StaticContingencyMW, bigM: setup.ContingencyBigM}
}

func (reserves) Name() string { return "reserves" }

func (reserves) Contributes() assembly.Contribution {
	return assembly.Objective | assembly.Reserves
}

func (m reserves) Declare(b *assembly.Builder) error {
	set, err := b.Subset(registry.CapReserves)
	if err != nil {
		return err
	}
	if _, err := b.NewGrid(assembly.VarReg, set, hourly(b), 0, inf, model.Continuous); err != nil {
		return err
	}
	if _, err := b.NewGrid(assembly.VarRsv, set, hourly(b), 0, inf, model.Continuous); err != nil {
		return err
	}
	system := func(int) string { return "system" }
	if b.Registry.Policies().Reserves.UnmetRsvCost > 0 {
		if _, err := b.NewLabeledGrid(assembly.VarUnmetRsv, []int{0}, system, hourly(b), 0, inf, model.Continuous); err != nil {
			return err
		}
	}
	switch m.contingency {
	case plan.ContingencyDynamicInstalled:
		cont, err := b.Subset(registry.CapContingency)
		if err != nil {
			return err
		}
		if _, err := b.NewGrid(assembly.VarContAux, cont, nil, 0, 1, model.Binary); err != nil {
			return err
		}
		_, err = b.NewLabeledGrid(assembly.VarLargestCont, []int{0}, system, nil, 0, inf, model.Continuous)
		return err
	case plan.ContingencyDynamicCommitted:
		cont, err := b.Subset(registry.CapContingency)
		if err != nil {
			return err
		}
		if _, err := b.NewGrid(assembly.VarContAux, cont, hourly(b), 0, 1, model.Binary); err != nil {
			return err
		}
		_, err = b.NewLabeledGrid(assembly.VarLargestCont, []int{0}, system, hourly(b), 0, inf, model.Continuous)
		return err
	}
	return nil
}

// bigMFor is the capacity bound used to switch r's contingency auxiliary.
func (m reserves) bigMFor(r *registry.Resource) float64 {
	switch {
	case m.bigM > 0:
		return m.bigM
	case !math.IsInf(r.MaxCapMW, 1) && r.MaxCapMW > 0:
		return r.MaxCapMW
	default:
		return defaultBigM
	}
}

func (m reserves) Constrain(b *assembly.Builder) error {
	g, err := grids(b, assembly.VarReg, assembly.VarRsv, assembly.VarDischarge)
	if err != nil {
		return err
	}
	reg, rsv, power := g[0], g[1], g[2]
	var commit *model.Grid
	if b.HasGrid(assembly.VarCommit) {
		commit, _ = b.Grid(assembly.VarCommit)
	}
	params := b.Registry.Policies().Reserves

	for _, y := range reg.Keys() {
		r := b.Registry.Resource(y)
		capacity := b.Capacity(y)
		uc := commit != nil && commit.Has(y)
		for s := 0; s < b.S(); s++ {
			for t := 0; t < b.T(); t++ {
				vr, vs, p := reg.At(y, t, s), rsv.At(y, t, s), power.At(y, t, s)
				avail := b.Availability(y, t, s)
				b.Constrain(cell("cRegMax", r.ID, t, s), model.V(vr), model.LE, capacity.Scaled(r.RegMax))
				b.Constrain(cell("cRsvMax", r.ID, t, s), model.V(vs), model.LE, capacity.Scaled(r.RsvMax))

				up := model.V(p).Plus(1, vr).Plus(1, vs)
				down := model.V(p).Plus(-1, vr)
				if uc {
					x := commit.At(y, t, s)
					b.Constrain(cell("cReserveUp", r.ID, t, s), up, model.LE, model.V(x).Scaled(avail*r.UnitSize()))
					b.Constrain(cell("cReserveDown", r.ID, t, s), down, model.GE, model.V(x).Scaled(r.MinPower*r.UnitSize()))
				} else {
					b.Constrain(cell("cReserveUp", r.ID, t, s), up, model.LE, capacity.Scaled(avail))
					b.Constrain(cell("cReserveDown", r.ID, t, s), down, model.GE, model.C(0))
				}

				w := b.CostWeight(t, s)
				if r.RegCost > 0 {
					b.AddTerm(assembly.AccOperatingCost, r.RegCost*w, vr, s)
				}
				if r.RsvCost > 0 {
					b.AddTerm(assembly.AccOperatingCost, r.RsvCost*w, vs, s)
				}
				b.AddTerm(assembly.AccRegulation, 1, vr, t, s)
				b.AddTerm(assembly.AccSpinning, 1, vs, t, s)
			}
		}
	}

	// requirement side: load and variable-output fractions
	vre := b.Registry.ByTech(registry.VRE)
	for s := 0; s < b.S(); s++ {
		for t := 0; t < b.T(); t++ {
			var load float64
			for z := range b.Registry.Zones() {
				load += b.Demand(z, t, s)
			}
			b.AddConst(assembly.AccRegulation, -params.RegLoad*load, t, s)
			b.AddConst(assembly.AccSpinning, -params.RsvLoad*load, t, s)
			for _, y := range vre {
				avail := b.Availability(y, t, s)
				if params.RegVRE > 0 {
					b.AddExpr(assembly.AccRegulation, -params.RegVRE*avail, b.Capacity(y), t, s)
				}
				if params.RsvVRE > 0 {
					b.AddExpr(assembly.AccSpinning, -params.RsvVRE*avail, b.Capacity(y), t, s)
				}
			}
		}
	}

	if b.HasGrid(assembly.VarUnmetRsv) {
		unmet, _ := b.Grid(assembly.VarUnmetRsv)
		for s := 0; s < b.S(); s++ {
			for t := 0; t < b.T(); t++ {
				v := unmet.At(0, t, s)
				b.AddTerm(assembly.AccSpinning, 1, v, t, s)
				b.AddTerm(assembly.AccOperatingCost, params.UnmetRsvCost*b.CostWeight(t, s), v, s)
			}
		}
	}
	return m.constrainContingency(b, commit)
}

func (m reserves) constrainContingency(b *assembly.Builder, commit *model.Grid) error {
	switch m.contingency {
	case plan.ContingencyStatic:
		for s := 0; s < b.S(); s++ {
			for t := 0; t < b.T(); t++ {
				b.AddConst(assembly.AccSpinning, -m.staticMW, t, s)
			}
		}
	case plan.ContingencyDynamicInstalled:
		g, err := grids(b, assembly.VarContAux, assembly.VarLargestCont)
		if err != nil {
			return err
		}
		aux, largest := g[0], g[1].At(0)
		for _, y := range aux.Keys() {
			r := b.Registry.Resource(y)
			a := aux.At(y)
			capacity := b.Capacity(y)
			b.Constrain(fmt.Sprintf("cContAuxOn[%s]", r.ID), capacity, model.LE, model.V(a).Scaled(m.bigMFor(r)))
			b.Constrain(fmt.Sprintf("cContAuxOff[%s]", r.ID), model.V(a), model.LE, capacity)
			b.Constrain(fmt.Sprintf("cLargestCont[%s]", r.ID), model.V(largest), model.GE, model.V(a).Scaled(r.UnitSize()))
		}
		for s := 0; s < b.S(); s++ {
			for t := 0; t < b.T(); t++ {
				b.AddTerm(assembly.AccSpinning, -1, largest, t, s)
			}
		}
	case plan.ContingencyDynamicCommitted:
		g, err := grids(b, assembly.VarContAux, assembly.VarLargestCont)
		if err != nil {
			return err
		}
		if commit == nil {
			return fmt.Errorf("%s contingency references undeclared variable set %q", m.contingency, assembly.VarCommit)
		}
		aux, largest := g[0], g[1]
		for s := 0; s < b.S(); s++ {
			for t := 0; t < b.T(); t++ {
				l := largest.At(0, t, s)
				for _, y := range aux.Keys() {
					if !commit.Has(y) {
						continue
					}
					r := b.Registry.Resource(y)
					a, x := aux.At(y, t, s), commit.At(y, t, s)
					b.Constrain(cell("cContAuxOn", r.ID, t, s), model.V(x), model.LE, model.V(a).Scaled(m.bigMFor(r)))
					b.Constrain(cell("cContAuxOff", r.ID, t, s), model.V(a), model.LE, model.V(x))
					b.Constrain(cell("cLargestCont", r.ID, t, s), model.V(l), model.GE, model.V(a).Scaled(r.UnitSize()))
				}
				b.AddTerm(assembly.AccSpinning, -1, l, t, s)
			}
		}
	}
	return nil
}

func (reserves) Finalize(b *assembly.Builder) error {
	for s := 0; s < b.S(); s++ {
		for t := 0; t < b.T(); t++ {
			b.Constrain(fmt.Sprintf("cRegRequirement[%d,%d]", t, s), b.Sum(assembly.AccRegulation, t, s), model.GE, model.C(0))
			b.Constrain(fmt.Sprintf("cRsvRequirement[%d,%d]", t, s), b.Sum(assembly.AccSpinning, t, s), model.GE, model.C(0))
		}
	}
	return nil
}
