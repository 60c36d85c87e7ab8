package registry

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridplan/gridplan/plan"
)

func testZones() []Zone {
	return []Zone{
		{ID: "north", Curtailment: []Segment{{Cost: 9000, MaxFraction: 1}}},
		{ID: "south", Curtailment: []Segment{{Cost: 9000, MaxFraction: 1}}},
	}
}

func testRecords() []Record {
	return []Record{
		{"resource": "ccgt", "zone": "north", "tech": "thermal", "existing_cap_mw": "400", "max_cap_mw": "-1",
			"commit": "1", "reserves": "1", "new_build": "1", "unit_size_mw": "200", "up_time": "4", "esr_2": "0"},
		{"resource": "wind", "zone": "south", "tech": "vre", "existing_cap_mw": "0", "max_cap_mw": "500",
			"new_build": "1", "esr_1": "1", "crm_1": "0.2"},
		{"resource": "battery", "zone": "south", "tech": "storage", "existing_cap_mw": "10", "max_cap_mw": "100",
			"long_duration": "1", "eff_up": "0.9", "eff_down": "0.9", "existing_cap_mwh": "40"},
	}
}

func testPolicies() Policies {
	return Policies{
		EnergyShares:  []EnergyShare{{ID: "rps", Zones: []string{"south"}, Share: 0.3}},
		ReserveMargin: []ReserveMargin{{ID: "crm", Zones: []string{"north", "south"}, Margin: 0.1}},
	}
}

func TestLoad_ValidRecords_BuildsTypedSubsets(t *testing.T) {
	reg, err := Load(testRecords(), testZones(), nil, testPolicies())
	require.NoError(t, err)

	assert.Equal(t, 3, reg.NumResources())
	commit, err := reg.Subset(CapCommit)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, commit)

	newBuild, err := reg.Subset(CapNewBuild)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, newBuild)

	lds, err := reg.Subset(CapLongDuration)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, lds)

	retire, err := reg.Subset(CapRetire)
	require.NoError(t, err)
	assert.Empty(t, retire)

	assert.Equal(t, []int{1}, reg.ByTech(VRE))
	assert.True(t, math.IsInf(reg.Resource(0).MaxCapMW, 1))
	assert.Equal(t, 4, reg.Resource(0).UpTime)
	assert.Equal(t, 200.0, reg.Resource(0).UnitSize())
	assert.Equal(t, 1.0, reg.Resource(1).ESR[0])
	assert.Equal(t, 0.2, reg.Resource(1).CRM[0])
	assert.Equal(t, 1, reg.ResourceZone(1))
	assert.Equal(t, []string{"ccgt", "wind", "battery"}, reg.IDs())
}

func TestLoad_MissingOptionalColumns_DefaultToZero(t *testing.T) {
	reg, err := Load(testRecords(), testZones(), nil, Policies{})
	require.NoError(t, err)
	wind := reg.Resource(1)
	assert.Zero(t, wind.VarOMPerMWh)
	assert.Zero(t, wind.HeatRate)
	assert.False(t, wind.Has(CapReserves))
	assert.Equal(t, "", wind.Fuel)
}

func TestLoad_MissingRequiredColumn_ReturnsMissingColumnError(t *testing.T) {
	for _, col := range requiredColumns {
		t.Run(col, func(t *testing.T) {
			recs := testRecords()
			delete(recs[1], col)
			_, err := Load(recs, testZones(), nil, Policies{})
			require.Error(t, err)
			var missing *plan.MissingColumnError
			require.True(t, errors.As(err, &missing))
			assert.Equal(t, col, missing.Column)
			assert.ErrorIs(t, err, plan.ErrConfiguration)
		})
	}
}

func TestLoad_InvalidValues_ReturnConfigurationError(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(recs []Record)
	}{
		{"unknown tech", func(r []Record) { r[0]["tech"] = "fusion" }},
		{"unknown zone", func(r []Record) { r[0]["zone"] = "east" }},
		{"bad number", func(r []Record) { r[0]["var_om_per_mwh"] = "cheap" }},
		{"negative existing power", func(r []Record) { r[1]["existing_cap_mw"] = "-5" }},
		{"negative existing energy", func(r []Record) { r[2]["existing_cap_mwh"] = "-5" }},
		{"fractional up time", func(r []Record) { r[0]["up_time"] = "2.5" }},
		{"min power above one", func(r []Record) { r[0]["min_power"] = "1.5" }},
		{"long duration on thermal", func(r []Record) { r[0]["long_duration"] = "1" }},
		{"duplicate resource", func(r []Record) { r[1]["resource"] = "ccgt" }},
		{"malformed policy column", func(r []Record) { r[1]["esr_x"] = "1" }},
		{"negative variable cost", func(r []Record) { r[0]["var_om_per_mwh"] = "-1" }},
		{"negative charge cost", func(r []Record) { r[2]["var_om_charge_per_mwh"] = "-0.5" }},
		{"negative reserve cost", func(r []Record) { r[0]["rsv_cost"] = "-2" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recs := testRecords()
			tc.mutate(recs)
			_, err := Load(recs, testZones(), nil, Policies{})
			require.Error(t, err)
			assert.ErrorIs(t, err, plan.ErrConfiguration)
		})
	}
}

func TestLoad_TopologyErrors(t *testing.T) {
	_, err := Load(testRecords(), nil, nil, Policies{})
	assert.ErrorIs(t, err, plan.ErrConfiguration)

	zones := testZones()
	zones[0].Curtailment[0].Cost = -9000
	_, err = Load(testRecords(), zones, nil, Policies{})
	assert.ErrorIs(t, err, plan.ErrConfiguration)
	assert.ErrorContains(t, err, "cost is negative")

	_, err = Load(testRecords(), testZones(), []Line{{ID: "l1", From: "north", To: "west", MaxFlowMW: 10}}, Policies{})
	assert.ErrorIs(t, err, plan.ErrConfiguration)

	_, err = Load(testRecords(), testZones(), nil, Policies{CO2Caps: []CO2Cap{{ID: "c", Zones: []string{"mars"}}}})
	assert.ErrorIs(t, err, plan.ErrConfiguration)
}

func TestSubset_UndefinedCapability_ReturnsError(t *testing.T) {
	reg, err := Load(testRecords(), testZones(), nil, Policies{})
	require.NoError(t, err)
	_, err = reg.Subset(CapCommit | CapReserves)
	assert.Error(t, err)
	_, err = reg.Subset(Capability(1 << 12))
	assert.Error(t, err)
}

func TestCapability_Valid(t *testing.T) {
	assert.True(t, CapCommit.Valid())
	assert.True(t, CapContingency.Valid())
	assert.False(t, Capability(0).Valid())
	assert.False(t, (CapCommit | CapRetire).Valid())
	assert.Equal(t, "commit", CapCommit.String())
}

func TestStorageDefaults_EfficiencyFilledWhenAbsent(t *testing.T) {
	recs := testRecords()
	delete(recs[2], "eff_up")
	delete(recs[2], "eff_down")
	reg, err := Load(recs, testZones(), nil, Policies{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, reg.Resource(2).EffUp)
	assert.Equal(t, 1.0, reg.Resource(2).EffDown)
}
