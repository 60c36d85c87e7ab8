// Package testutil provides small synthetic power systems shared by the
// plan/ package tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/registry"
	"github.com/gridplan/gridplan/plan/scenario"
)

// System bundles everything an engine is built from.
type System struct {
	Setup     plan.Setup
	Registry  *registry.Registry
	Scenarios *scenario.Set
	Inputs    *plan.Inputs
}

// TwoPeriodDemand is the zone demand of TwoPeriod, hours 1-8.
var TwoPeriodDemand = plan.Series{20, 25, 30, 35, 40, 35, 30, 25}

// TwoPeriodRecords describes TwoPeriod's resources: a committed gas unit, a
// buildable wind farm, a long-duration battery and a flexible load.
func TwoPeriodRecords() []registry.Record {
	return []registry.Record{
		{
			"resource": "gas", "zone": "z1", "tech": "thermal", "existing_cap_mw": "40", "max_cap_mw": "40",
			"unit_size_mw": "10", "commit": "1", "up_time": "3", "down_time": "2", "min_power": "0.2",
			"ramp_up": "0.5", "ramp_down": "0.5", "var_om_per_mwh": "2", "heat_rate": "7", "fuel": "ng",
			"start_cost_per_mw": "5", "co2_per_mwh": "0.4", "co2_per_start": "0.1",
			"reserves": "1", "reg_max": "0.1", "rsv_max": "0.2", "contingency": "1",
		},
		{
			"resource": "wind", "zone": "z1", "tech": "vre", "existing_cap_mw": "30", "max_cap_mw": "-1",
			"new_build": "1", "inv_cost_per_mwyr": "1000",
		},
		{
			"resource": "battery", "zone": "z1", "tech": "storage", "existing_cap_mw": "10", "max_cap_mw": "10",
			"existing_cap_mwh": "40", "eff_up": "0.9", "eff_down": "0.9", "long_duration": "1",
		},
		{
			"resource": "flex", "zone": "z1", "tech": "flex", "existing_cap_mw": "5", "max_cap_mw": "5",
			"flex_delay": "2", "flex_advance": "1",
		},
	}
}

// TwoPeriodZones is the single zone of TwoPeriod with two curtailment blocks.
func TwoPeriodZones() []registry.Zone {
	return []registry.Zone{{
		ID:          "z1",
		Curtailment: []registry.Segment{{Cost: 1000, MaxFraction: 0.5}, {Cost: 2000, MaxFraction: 0.5}},
	}}
}

// TwoPeriod is a one-zone, one-scenario system over 2 representative periods
// of 4 hours, each weighted 1, with linearised commitment.
func TwoPeriod(t testing.TB) *System {
	t.Helper()
	reg, err := registry.Load(TwoPeriodRecords(), TwoPeriodZones(), nil, registry.Policies{})
	require.NoError(t, err)
	set, err := scenario.New([]float64{1}, []float64{1})
	require.NoError(t, err)
	ti, err := plan.NewTimeIndex(4, 2, nil)
	require.NoError(t, err)
	setup := plan.DefaultSetup()
	setup.UCommit = plan.UCommitLinear
	return &System{
		Setup:     setup,
		Registry:  reg,
		Scenarios: set,
		Inputs: &plan.Inputs{
			Time:   ti,
			Demand: map[string][]plan.Series{"z1": {TwoPeriodDemand}},
			Availability: map[string][]plan.Series{
				"gas":     {ones(8)},
				"wind":    {{0.5, 0.4, 0.3, 0.2, 0.6, 0.7, 0.8, 0.5}},
				"battery": {ones(8)},
				"flex":    {ones(8)},
			},
			FuelPrice:  map[string][]plan.Series{"ng": {constant(8, 3)}},
			PeriodMaps: []plan.PeriodMap{{RepIndex: []int{0, 1}, RepModeled: []int{0, 1}}},
		},
	}
}

// Toy is the two-resource decomposition instance: 2 periods of 2 hours, one
// fuel draw and two equally likely weather draws, buildable gas and wind, and
// curtailment at 1000 $/MWh. curtail=false drops curtailment so capacity
// shortfalls make subproblems infeasible.
func Toy(t testing.TB, curtail bool) *System {
	t.Helper()
	records := []registry.Record{
		{
			"resource": "gas", "zone": "z", "tech": "thermal", "existing_cap_mw": "0", "max_cap_mw": "100",
			"new_build": "1", "inv_cost_per_mwyr": "50", "var_om_per_mwh": "10",
		},
		{
			"resource": "wind", "zone": "z", "tech": "vre", "existing_cap_mw": "0", "max_cap_mw": "100",
			"new_build": "1", "inv_cost_per_mwyr": "20",
		},
	}
	zone := registry.Zone{ID: "z"}
	if curtail {
		zone.Curtailment = []registry.Segment{{Cost: 1000, MaxFraction: 1}}
	}
	reg, err := registry.Load(records, []registry.Zone{zone}, nil, registry.Policies{})
	require.NoError(t, err)
	set, err := scenario.New([]float64{1}, []float64{0.5, 0.5})
	require.NoError(t, err)
	ti, err := plan.NewTimeIndex(2, 2, nil)
	require.NoError(t, err)
	return &System{
		Setup:     plan.DefaultSetup(),
		Registry:  reg,
		Scenarios: set,
		Inputs: &plan.Inputs{
			Time:   ti,
			Demand: map[string][]plan.Series{"z": {{50, 60, 40, 70}, {55, 45, 65, 50}}},
			Availability: map[string][]plan.Series{
				"gas":  {ones(4), ones(4)},
				"wind": {{0.8, 0.2, 0.5, 0.9}, {0.3, 0.6, 0.1, 0.4}},
			},
		},
	}
}

func ones(n int) plan.Series { return constant(n, 1) }

func constant(n int, v float64) plan.Series {
	s := make(plan.Series, n)
	for i := range s {
		s[i] = v
	}
	return s
}
