// Package lds links the state of charge of long-duration storage across
// representative periods.
//
// The intra-period storage balance wraps at every period boundary, which
// forces each representative period to end where it started. For resources
// flagged long-duration the linker replaces the period-start balance with one
// that carries a per-period drift, and chains modeled (chronological) periods
// through the period map:
//
//	soc[start(p)]  = (1-sd)*(soc[end(p)] - drift[p]) - out/eff_down + eff_up*charge
//	socw[n+1]      = socw[n] + drift[rep(n)]          (n+1 wraps to 0)
//	socw[n]        = soc[end(p)] - drift[p]           (n the source of p)
//	socw[n]       <= energy capacity
//
// The wrap of the chain makes the count-weighted sum of drifts zero, so the
// chronological trajectory is cyclic over the year.
package lds

import (
	"fmt"
	"math"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/registry"
)

// Linker is the long-duration storage module. Active when the setup enables
// long-duration storage.
type Linker struct{}

// New returns the linker, or nil when long-duration storage is off.
func New(setup plan.Setup) assembly.Module {
	if !setup.LongDurationStorage {
		return nil
	}
	return Linker{}
}

func (Linker) Name() string                       { return "lds" }
func (Linker) Contributes() assembly.Contribution { return 0 }

// eligible returns the long-duration storage resources.
func eligible(b *assembly.Builder) ([]int, error) {
	set, err := b.Subset(registry.CapLongDuration)
	if err != nil {
		return nil, err
	}
	var out []int
	for _, y := range set {
		if b.Registry.Resource(y).IsStorage() {
			out = append(out, y)
		}
	}
	return out, nil
}

// modeled returns the number of modeled periods, which every build scenario
// must agree on.
func modeled(b *assembly.Builder) (int, error) {
	n := -1
	for s := 0; s < b.S(); s++ {
		pm, ok := b.PeriodMap(s)
		if !ok {
			return 0, plan.Configf("period_map", "scenario %d has no period map", b.Scenario(s).ID())
		}
		if n >= 0 && pm.Modeled() != n {
			return 0, plan.Configf("period_map", "scenario %d maps %d modeled periods, others map %d",
				b.Scenario(s).ID(), pm.Modeled(), n)
		}
		n = pm.Modeled()
	}
	return n, nil
}

func (Linker) Declare(b *assembly.Builder) error {
	set, err := eligible(b)
	if err != nil || len(set) == 0 {
		return err
	}
	n, err := modeled(b)
	if err != nil {
		return err
	}
	if _, err := b.NewGrid(assembly.VarDrift, set, []int{b.Time.Periods, b.S()}, math.Inf(-1), math.Inf(1), model.Continuous); err != nil {
		return err
	}
	_, err = b.NewGrid(assembly.VarSOCModeled, set, []int{n, b.S()}, 0, math.Inf(1), model.Continuous)
	return err
}

func (Linker) Constrain(b *assembly.Builder) error {
	set, err := eligible(b)
	if err != nil || len(set) == 0 {
		return err
	}
	var g [5]*model.Grid
	for i, name := range []string{assembly.VarSOC, assembly.VarCharge, assembly.VarDischarge, assembly.VarDrift, assembly.VarSOCModeled} {
		if g[i], err = b.Grid(name); err != nil {
			return err
		}
	}
	soc, charge, power, drift, socw := g[0], g[1], g[2], g[3], g[4]
	ti := b.Time
	for _, y := range set {
		if !soc.Has(y) {
			return fmt.Errorf("resource %q has no state of charge in %s", b.Registry.Name(y), assembly.VarSOC)
		}
		r := b.Registry.Resource(y)
		energy := b.EnergyCapacity(y)
		for s := 0; s < b.S(); s++ {
			pm, _ := b.PeriodMap(s)
			for p := 0; p < ti.Periods; p++ {
				t0, tEnd := ti.Start(p), ti.End(p)
				d := drift.At(y, p, s)
				// soc[t0] = (1-sd)*(soc[tEnd] - drift) - out/eff_down + eff_up*charge
				lhs := model.V(soc.At(y, t0, s)).
					Plus(-(1 - r.SelfDischarge), soc.At(y, tEnd, s)).
					Plus(1-r.SelfDischarge, d).
					Plus(1/r.EffDown, power.At(y, t0, s)).
					Plus(-r.EffUp, charge.At(y, t0, s))
				b.Constrain(fmt.Sprintf("cSocBalanceLDS[%s,%d,%d]", r.ID, t0, s), lhs, model.EQ, model.C(0))
			}
			N := pm.Modeled()
			for n := 0; n < N; n++ {
				w := socw.At(y, n, s)
				next := socw.At(y, (n+1)%N, s)
				b.Constrain(fmt.Sprintf("cSocChain[%s,%d,%d]", r.ID, n, s),
					model.V(next).Plus(-1, w).Plus(-1, drift.At(y, pm.RepIndex[n], s)), model.EQ, model.C(0))
				b.Constrain(fmt.Sprintf("cSocModeledMax[%s,%d,%d]", r.ID, n, s), model.V(w), model.LE, energy)
			}
			for p, n := range pm.RepModeled {
				b.Constrain(fmt.Sprintf("cSocTie[%s,%d,%d]", r.ID, n, s),
					model.V(socw.At(y, n, s)).Plus(-1, soc.At(y, ti.End(p), s)).Plus(1, drift.At(y, p, s)), model.EQ, model.C(0))
			}
		}
	}
	return nil
}

// NetDrift returns the count-weighted sum of resource y's drifts in build
// scenario s at primal: the net energy the modeled year gains. It is zero
// for every feasible point.
func NetDrift(p *assembly.Problem, primal []float64, y, s int, pm plan.PeriodMap) (float64, error) {
	drift, ok := p.Grid(assembly.VarDrift)
	if !ok || !drift.Has(y) {
		return 0, fmt.Errorf("problem has no drift variables for resource %d", y)
	}
	var sum float64
	for rep := range pm.RepModeled {
		sum += float64(pm.Count(rep)) * primal[drift.At(y, rep, s)]
	}
	return sum, nil
}

// Trajectory returns resource y's modeled-period state of charge in build
// scenario s at primal, one value per modeled period.
func Trajectory(p *assembly.Problem, primal []float64, y, s, periods int) ([]float64, error) {
	socw, ok := p.Grid(assembly.VarSOCModeled)
	if !ok || !socw.Has(y) {
		return nil, fmt.Errorf("problem has no modeled state of charge for resource %d", y)
	}
	out := make([]float64, periods)
	for n := range out {
		out[n] = primal[socw.At(y, n, s)]
	}
	return out, nil
}
