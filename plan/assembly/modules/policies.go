package modules

import (
	"fmt"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/registry"
)

// policies enforces the system-level policy sets on the accumulated
// emissions, qualifying energy and derated capacity. A policy with a slack
// price may be violated at that price per unit; otherwise it is hard.
type policies struct {
	co2, esr, crm bool
}

func newPolicies(setup plan.Setup) assembly.Module {
	m := policies{co2: setup.CO2Cap, esr: setup.EnergyShare, crm: setup.CapacityReserveMargin}
	if !m.co2 && !m.esr && !m.crm {
		return nil
	}
	return m
}

func (policies) Name() string { return "policies" }

func (policies) Contributes() assembly.Contribution {
	return assembly.Objective | assembly.Policy
}

// priced returns the indices of policies with a positive slack price.
func priced(prices []float64) []int {
	var out []int
	for i, p := range prices {
		if p > 0 {
			out = append(out, i)
		}
	}
	return out
}

func (m policies) Declare(b *assembly.Builder) error {
	pol := b.Registry.Policies()
	scen := []int{b.S()}
	if m.esr {
		prices := make([]float64, len(pol.EnergyShares))
		for i, p := range pol.EnergyShares {
			prices[i] = p.SlackPrice
		}
		label := func(i int) string { return pol.EnergyShares[i].ID }
		if _, err := b.NewLabeledGrid(assembly.VarESRSlack, priced(prices), label, scen, 0, inf, model.Continuous); err != nil {
			return err
		}
	}
	if m.crm {
		prices := make([]float64, len(pol.ReserveMargin))
		for i, p := range pol.ReserveMargin {
			prices[i] = p.SlackPrice
		}
		label := func(i int) string { return pol.ReserveMargin[i].ID }
		if _, err := b.NewLabeledGrid(assembly.VarCRMSlack, priced(prices), label, hourly(b), 0, inf, model.Continuous); err != nil {
			return err
		}
	}
	if m.co2 {
		prices := make([]float64, len(pol.CO2Caps))
		for i, p := range pol.CO2Caps {
			prices[i] = p.SlackPrice
		}
		label := func(i int) string { return pol.CO2Caps[i].ID }
		if _, err := b.NewLabeledGrid(assembly.VarCO2Slack, priced(prices), label, scen, 0, inf, model.Continuous); err != nil {
			return err
		}
	}
	return nil
}

func (m policies) Constrain(b *assembly.Builder) error {
	reg := b.Registry
	pol := reg.Policies()
	if m.esr {
		slack, err := b.Grid(assembly.VarESRSlack)
		if err != nil {
			return err
		}
		for k, p := range pol.EnergyShares {
			zones := zoneList(reg, p.Zones)
			for s := 0; s < b.S(); s++ {
				var demand float64
				for t := 0; t < b.T(); t++ {
					for _, z := range zones {
						demand += b.Time.Weight(t) * b.Demand(z, t, s)
					}
				}
				b.AddConst(assembly.AccEnergyShare, -p.Share*demand, k, s)
				if v, ok := slack.Lookup(k, s); ok {
					b.AddTerm(assembly.AccEnergyShare, 1, v, k, s)
					b.AddTerm(assembly.AccOperatingCost, p.SlackPrice*b.Scenario(s).Probability, v, s)
				}
			}
		}
	}
	if m.crm {
		slack, err := b.Grid(assembly.VarCRMSlack)
		if err != nil {
			return err
		}
		for k, p := range pol.ReserveMargin {
			zones := zoneList(reg, p.Zones)
			for s := 0; s < b.S(); s++ {
				for t := 0; t < b.T(); t++ {
					var demand float64
					for _, z := range zones {
						demand += b.Demand(z, t, s)
					}
					b.AddConst(assembly.AccCapacityMargin, -(1+p.Margin)*demand, k, t, s)
					if v, ok := slack.Lookup(k, t, s); ok {
						b.AddTerm(assembly.AccCapacityMargin, 1, v, k, t, s)
						b.AddTerm(assembly.AccOperatingCost, p.SlackPrice*b.CostWeight(t, s), v, s)
					}
				}
			}
		}
	}
	if m.co2 {
		slack, err := b.Grid(assembly.VarCO2Slack)
		if err != nil {
			return err
		}
		for k, p := range pol.CO2Caps {
			for s := 0; s < b.S(); s++ {
				if v, ok := slack.Lookup(k, s); ok {
					b.AddTerm(assembly.AccOperatingCost, p.SlackPrice*b.Scenario(s).Probability, v, s)
				}
			}
		}
	}
	return nil
}

func (m policies) Finalize(b *assembly.Builder) error {
	reg := b.Registry
	pol := reg.Policies()
	for s := 0; s < b.S(); s++ {
		if m.esr {
			for k, p := range pol.EnergyShares {
				b.Constrain(fmt.Sprintf("cESR[%s,%d]", p.ID, s), b.Sum(assembly.AccEnergyShare, k, s), model.GE, model.C(0))
			}
		}
		if m.crm {
			for k, p := range pol.ReserveMargin {
				for t := 0; t < b.T(); t++ {
					b.Constrain(fmt.Sprintf("cCRM[%s,%d,%d]", p.ID, t, s), b.Sum(assembly.AccCapacityMargin, k, t, s), model.GE, model.C(0))
				}
			}
		}
		if m.co2 {
			slack, err := b.Grid(assembly.VarCO2Slack)
			if err != nil {
				return err
			}
			for k, p := range pol.CO2Caps {
				b.Constrain(fmt.Sprintf("cCO2Cap[%s,%d]", p.ID, s), weightedEmissions(b, reg, p, s, slack, k), model.LE, model.C(p.CapTonnes))
			}
		}
	}
	return nil
}

// weightedEmissions is the period-weighted emissions of p's zones in build
// scenario s, less any priced slack.
func weightedEmissions(b *assembly.Builder, reg *registry.Registry, p registry.CO2Cap, s int, slack *model.Grid, k int) model.Expr {
	var e model.Expr
	for _, z := range zoneList(reg, p.Zones) {
		for t := 0; t < b.T(); t++ {
			e.AddExpr(b.Time.Weight(t), b.Sum(assembly.AccEmissions, z, t, s))
		}
	}
	if v, ok := slack.Lookup(k, s); ok {
		e.Add(-1, v)
	}
	return e
}
