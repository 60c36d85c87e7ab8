package modules

import (
	"fmt"
	"math"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/registry"
)

// investment owns capacity. In investing scopes it creates build and retire
// decisions and their annualised cost; in operating scopes it fixes each
// decided capacity to the candidate through a linking equality.
type investment struct{}

func newInvestment(plan.Setup) assembly.Module { return investment{} }

func (investment) Name() string                       { return "investment" }
func (investment) Contributes() assembly.Contribution { return assembly.Objective }

func (investment) Declare(b *assembly.Builder) error {
	if b.Scope.Invests() {
		return declareDecisions(b)
	}
	return declareFixed(b)
}

func declareDecisions(b *assembly.Builder) error {
	reg := b.Registry
	build, err := b.Subset(registry.CapNewBuild)
	if err != nil {
		return err
	}
	retire, err := b.Subset(registry.CapRetire)
	if err != nil {
		return err
	}
	isStorage := func(r *registry.Resource) bool { return r.IsStorage() }
	newCap, err := b.NewGrid(assembly.VarNewCap, build, nil, 0, math.Inf(1), model.Continuous)
	if err != nil {
		return err
	}
	retCap, err := b.NewGrid(assembly.VarRetCap, retire, nil, 0, math.Inf(1), model.Continuous)
	if err != nil {
		return err
	}
	newE, err := b.NewGrid(assembly.VarNewEnergyCap, intersect(build, reg.Filter(isStorage)), nil, 0, math.Inf(1), model.Continuous)
	if err != nil {
		return err
	}
	retE, err := b.NewGrid(assembly.VarRetEnergyCap, intersect(retire, reg.Filter(isStorage)), nil, 0, math.Inf(1), model.Continuous)
	if err != nil {
		return err
	}

	m := b.Model()
	for y := range reg.Resources() {
		r := reg.Resource(y)
		power := model.C(r.ExistingCapMW)
		if v, ok := newCap.Lookup(y); ok {
			m.SetBounds(v, 0, headroom(r.MaxCapMW, r.ExistingCapMW))
			power.Add(1, v)
		}
		if v, ok := retCap.Lookup(y); ok {
			m.SetBounds(v, 0, r.ExistingCapMW)
			power.Add(-1, v)
		}
		b.SetCapacity(assembly.CapacityKey{Resource: y}, power, r.Invests())
		if !r.IsStorage() {
			continue
		}
		energy := model.C(r.ExistingCapMWh)
		if v, ok := newE.Lookup(y); ok {
			m.SetBounds(v, 0, headroom(r.MaxCapMWh, r.ExistingCapMWh))
			energy.Add(1, v)
		}
		if v, ok := retE.Lookup(y); ok {
			m.SetBounds(v, 0, r.ExistingCapMWh)
			energy.Add(-1, v)
		}
		b.SetCapacity(assembly.CapacityKey{Resource: y, Energy: true}, energy, r.Invests())
	}
	return nil
}

// headroom is the largest buildable addition; unlimited when max is +Inf.
func headroom(max, existing float64) float64 {
	if math.IsInf(max, 1) {
		return max
	}
	return math.Max(0, max-existing)
}

func declareFixed(b *assembly.Builder) error {
	reg := b.Registry
	investing := reg.Filter((*registry.Resource).Invests)
	storage := reg.Filter(func(r *registry.Resource) bool { return r.Invests() && r.IsStorage() })
	capV, err := b.NewGrid(assembly.VarCap, investing, nil, 0, math.Inf(1), model.Continuous)
	if err != nil {
		return err
	}
	capE, err := b.NewGrid(assembly.VarEnergyCap, storage, nil, 0, math.Inf(1), model.Continuous)
	if err != nil {
		return err
	}
	if b.Scope == assembly.Feasibility {
		keys := append(append([]int(nil), investing...), energyKeys(storage)...)
		label := func(k int) string {
			if k < 0 {
				return reg.Name(-k-1) + "/energy"
			}
			return reg.Name(k)
		}
		if _, err := b.NewLabeledGrid(assembly.VarLinkPlus, keys, label, nil, 0, math.Inf(1), model.Continuous); err != nil {
			return err
		}
		if _, err := b.NewLabeledGrid(assembly.VarLinkMinus, keys, label, nil, 0, math.Inf(1), model.Continuous); err != nil {
			return err
		}
	}
	for y := range reg.Resources() {
		r := reg.Resource(y)
		if v, ok := capV.Lookup(y); ok {
			b.SetCapacity(assembly.CapacityKey{Resource: y}, model.V(v), true)
		} else {
			b.SetCapacity(assembly.CapacityKey{Resource: y}, model.C(r.ExistingCapMW), false)
		}
		if !r.IsStorage() {
			continue
		}
		if v, ok := capE.Lookup(y); ok {
			b.SetCapacity(assembly.CapacityKey{Resource: y, Energy: true}, model.V(v), true)
		} else {
			b.SetCapacity(assembly.CapacityKey{Resource: y, Energy: true}, model.C(r.ExistingCapMWh), false)
		}
	}
	return nil
}

// energyKeys encodes energy-capacity slack keys as -(y+1) so they share a
// grid with power keys.
func energyKeys(ys []int) []int {
	out := make([]int, len(ys))
	for i, y := range ys {
		out[i] = -y - 1
	}
	return out
}

func slackKey(k assembly.CapacityKey) int {
	if k.Energy {
		return -k.Resource - 1
	}
	return k.Resource
}

func (investment) Constrain(b *assembly.Builder) error {
	if b.Scope.Invests() {
		return constrainDecisions(b)
	}
	return constrainLinks(b)
}

func constrainDecisions(b *assembly.Builder) error {
	reg := b.Registry
	newCap, err := b.Grid(assembly.VarNewCap)
	if err != nil {
		return err
	}
	retCap, err := b.Grid(assembly.VarRetCap)
	if err != nil {
		return err
	}
	newE, err := b.Grid(assembly.VarNewEnergyCap)
	if err != nil {
		return err
	}
	retE, err := b.Grid(assembly.VarRetEnergyCap)
	if err != nil {
		return err
	}
	for y := range reg.Resources() {
		r := reg.Resource(y)
		b.AddConst(assembly.AccInvestmentCost, r.FixedOMPerMWyr*r.ExistingCapMW)
		if v, ok := newCap.Lookup(y); ok {
			b.AddTerm(assembly.AccInvestmentCost, r.InvCostPerMWyr+r.FixedOMPerMWyr, v)
		}
		if v, ok := retCap.Lookup(y); ok {
			b.AddTerm(assembly.AccInvestmentCost, -r.FixedOMPerMWyr, v)
		}
		if !r.Invests() {
			continue
		}
		power := b.Capacity(y)
		if r.MinCapMW > 0 {
			b.Constrain(fmt.Sprintf("cMinCap[%s]", r.ID), power, model.GE, model.C(r.MinCapMW))
		}
		if r.Has(registry.CapRetire) && !r.Has(registry.CapNewBuild) && !math.IsInf(r.MaxCapMW, 1) {
			b.Constrain(fmt.Sprintf("cMaxCap[%s]", r.ID), power, model.LE, model.C(r.MaxCapMW))
		}
		if !r.IsStorage() {
			continue
		}
		b.AddConst(assembly.AccInvestmentCost, r.FixedOMPerMWhyr*r.ExistingCapMWh)
		if v, ok := newE.Lookup(y); ok {
			b.AddTerm(assembly.AccInvestmentCost, r.InvCostPerMWhyr+r.FixedOMPerMWhyr, v)
		}
		if v, ok := retE.Lookup(y); ok {
			b.AddTerm(assembly.AccInvestmentCost, -r.FixedOMPerMWhyr, v)
		}
		energy := b.EnergyCapacity(y)
		if r.MinDuration > 0 {
			b.Constrain(fmt.Sprintf("cMinDuration[%s]", r.ID), energy, model.GE, power.Scaled(r.MinDuration))
		}
		if r.MaxDuration > 0 {
			b.Constrain(fmt.Sprintf("cMaxDuration[%s]", r.ID), energy, model.LE, power.Scaled(r.MaxDuration))
		}
	}
	return nil
}

// constrainLinks fixes every decided capacity to the candidate. A
// feasibility build relaxes each link as cap - plus + minus = candidate.
func constrainLinks(b *assembly.Builder) error {
	cand := b.Candidate()
	var plus, minus *model.Grid
	if b.Scope == assembly.Feasibility {
		var err error
		if plus, err = b.Grid(assembly.VarLinkPlus); err != nil {
			return err
		}
		if minus, err = b.Grid(assembly.VarLinkMinus); err != nil {
			return err
		}
	}
	for y := range b.Registry.Resources() {
		r := b.Registry.Resource(y)
		if !r.Invests() {
			continue
		}
		keys := []assembly.CapacityKey{{Resource: y}}
		if r.IsStorage() {
			keys = append(keys, assembly.CapacityKey{Resource: y, Energy: true})
		}
		for _, k := range keys {
			target, ok := cand[k]
			if !ok {
				return fmt.Errorf("candidate has no capacity for %s %s", r.ID, k)
			}
			lhs := b.Capacity(y)
			name := fmt.Sprintf("cLink[%s]", r.ID)
			if k.Energy {
				lhs = b.EnergyCapacity(y)
				name = fmt.Sprintf("cLinkEnergy[%s]", r.ID)
			}
			link := assembly.Link{Key: k}
			if plus != nil {
				link.Plus, link.Minus, link.Relaxed = plus.At(slackKey(k)), minus.At(slackKey(k)), true
				lhs = lhs.Plus(-1, link.Plus).Plus(1, link.Minus)
			}
			link.Constraint = b.Constrain(name, lhs, model.EQ, model.C(target))
			b.AddLink(link)
		}
	}
	return nil
}

func intersect(a, b []int) []int {
	in := make(map[int]bool, len(b))
	for _, x := range b {
		in[x] = true
	}
	var out []int
	for _, x := range a {
		if in[x] {
			out = append(out, x)
		}
	}
	return out
}
