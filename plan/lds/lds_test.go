package lds

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/internal/testutil"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/registry"
	"github.com/gridplan/gridplan/plan/solver"
	"github.com/gridplan/gridplan/plan/solver/simplex"
)

// yearOfFour maps four modeled periods onto two representative ones:
// 0 -> 0, 1 -> 1, 2 -> 1, 3 -> 0, with periods 0 and 1 drawn from modeled
// periods 0 and 1.
var yearOfFour = plan.PeriodMap{RepIndex: []int{0, 1, 1, 0}, RepModeled: []int{0, 1}}

func linkedSystem(t *testing.T, records []registry.Record) *testutil.System {
	t.Helper()
	sys := testutil.TwoPeriod(t)
	sys.Setup.UCommit = plan.UCommitOff
	sys.Setup.LongDurationStorage = true
	if records != nil {
		reg, err := registry.Load(records, []registry.Zone{{
			ID:          "z1",
			Curtailment: []registry.Segment{{Cost: 1000, MaxFraction: 1}},
		}}, nil, registry.Policies{})
		require.NoError(t, err)
		sys.Registry = reg
	}
	ti, err := plan.NewTimeIndex(4, 2, []float64{2, 2})
	require.NoError(t, err)
	sys.Inputs.Time = ti
	sys.Inputs.PeriodMaps = []plan.PeriodMap{yearOfFour}
	return sys
}

func monolithic(t *testing.T, sys *testutil.System) *assembly.Problem {
	t.Helper()
	e, err := assembly.NewEngine(sys.Setup, sys.Registry, sys.Scenarios, sys.Inputs)
	require.NoError(t, err)
	p, err := e.BuildMonolithic()
	require.NoError(t, err)
	return p
}

func coef(t *testing.T, m *model.Model, constraint, variable string) float64 {
	t.Helper()
	c, ok := m.FindConstraint(constraint)
	require.True(t, ok, "constraint %s", constraint)
	v, ok := m.Find(variable)
	require.True(t, ok, "variable %s", variable)
	return m.Constraint(c).Expr.Coef(v)
}

func TestNew_Inactive_ReturnsNil(t *testing.T) {
	assert.Nil(t, New(plan.DefaultSetup()))

	setup := plan.DefaultSetup()
	setup.LongDurationStorage = true
	assert.NotNil(t, New(setup))
}

func TestConstrain_ReplacesPeriodStartBalance(t *testing.T) {
	p := monolithic(t, linkedSystem(t, nil))
	m := p.Model
	assert.Contains(t, p.Modules(), "lds")

	for _, t0 := range []int{0, 4} {
		_, ok := m.FindConstraint(fmt.Sprintf("cSocBalance[battery,%d,0]", t0))
		assert.False(t, ok, "intra-period balance kept at hour %d", t0)
		_, ok = m.FindConstraint(fmt.Sprintf("cSocBalanceLDS[battery,%d,0]", t0))
		assert.True(t, ok, "linked balance missing at hour %d", t0)
	}
	_, ok := m.FindConstraint("cSocBalance[battery,1,0]")
	assert.True(t, ok)

	assert.InDelta(t, 1, coef(t, m, "cSocBalanceLDS[battery,4,0]", "vS[battery,4,0]"), 1e-12)
	assert.InDelta(t, -1, coef(t, m, "cSocBalanceLDS[battery,4,0]", "vS[battery,7,0]"), 1e-12)
	assert.InDelta(t, 1, coef(t, m, "cSocBalanceLDS[battery,4,0]", "vdSOC[battery,1,0]"), 1e-12)
	assert.InDelta(t, -0.9, coef(t, m, "cSocBalanceLDS[battery,4,0]", "vCHARGE[battery,4,0]"), 1e-12)
}

func TestConstrain_ChainFollowsPeriodMap(t *testing.T) {
	m := monolithic(t, linkedSystem(t, nil)).Model

	for n, rep := range yearOfFour.RepIndex {
		name := fmt.Sprintf("cSocChain[battery,%d,0]", n)
		next := (n + 1) % len(yearOfFour.RepIndex)
		assert.InDelta(t, 1, coef(t, m, name, fmt.Sprintf("vSOCw[battery,%d,0]", next)), 1e-12)
		assert.InDelta(t, -1, coef(t, m, name, fmt.Sprintf("vSOCw[battery,%d,0]", n)), 1e-12)
		assert.InDelta(t, -1, coef(t, m, name, fmt.Sprintf("vdSOC[battery,%d,0]", rep)), 1e-12)

		_, ok := m.FindConstraint(fmt.Sprintf("cSocModeledMax[battery,%d,0]", n))
		assert.True(t, ok)
	}
	// representative period 1 is drawn from modeled period 1 and ends at hour 7
	assert.InDelta(t, -1, coef(t, m, "cSocTie[battery,1,0]", "vS[battery,7,0]"), 1e-12)
	assert.InDelta(t, 1, coef(t, m, "cSocTie[battery,1,0]", "vdSOC[battery,1,0]"), 1e-12)
}

func TestConstrain_WrapForcesZeroNetDrift(t *testing.T) {
	p := monolithic(t, linkedSystem(t, nil))
	m := p.Model
	y := 2 // battery

	tests := []struct {
		name     string
		drift    [2]float64
		socw     [4]float64
		violated []string
	}{
		{"balanced drifts close the year", [2]float64{3, -3}, [4]float64{10, 13, 10, 7}, nil},
		{"net gain breaks the wrap", [2]float64{3, -2}, [4]float64{10, 13, 11, 9}, []string{"cSocChain[battery,3,0]"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			values := make([]float64, m.NumVars())
			for rep, d := range tc.drift {
				v, ok := m.Find(fmt.Sprintf("vdSOC[battery,%d,0]", rep))
				require.True(t, ok)
				values[v] = d
			}
			for n, w := range tc.socw {
				v, ok := m.Find(fmt.Sprintf("vSOCw[battery,%d,0]", n))
				require.True(t, ok)
				values[v] = w
			}

			var got []string
			for _, v := range m.Violations(values, 1e-9, func(name string) bool {
				return strings.HasPrefix(name, "cSocChain[")
			}) {
				got = append(got, v.Name)
			}
			assert.Equal(t, tc.violated, got)

			net, err := NetDrift(p, values, y, 0, yearOfFour)
			require.NoError(t, err)
			assert.InDelta(t, 2*tc.drift[0]+2*tc.drift[1], net, 1e-12)

			traj, err := Trajectory(p, values, y, 0, len(yearOfFour.RepIndex))
			require.NoError(t, err)
			assert.Equal(t, tc.socw[:], traj)
		})
	}
}

func TestNetDrift_UnlinkedResource_ReturnsError(t *testing.T) {
	p := monolithic(t, linkedSystem(t, nil))
	values := make([]float64, p.Model.NumVars())

	_, err := NetDrift(p, values, 0, 0, yearOfFour)
	assert.Error(t, err)
	_, err = Trajectory(p, values, 0, 0, 4)
	assert.Error(t, err)
}

func TestDeclare_NoEligibleStorage_AddsNothing(t *testing.T) {
	records := testutil.TwoPeriodRecords()
	delete(records[2], "long_duration")
	p := monolithic(t, linkedSystem(t, records))

	_, ok := p.Grid(assembly.VarDrift)
	assert.False(t, ok)
	_, ok = p.Model.FindConstraint("cSocBalance[battery,0,0]")
	assert.True(t, ok)
}

func TestSolve_ChronologicalTrajectoryIsCyclic(t *testing.T) {
	records := []registry.Record{
		{"resource": "gas", "zone": "z1", "tech": "thermal", "existing_cap_mw": "30", "max_cap_mw": "30", "var_om_per_mwh": "20"},
		testutil.TwoPeriodRecords()[2],
	}
	p := monolithic(t, linkedSystem(t, records))

	sol, err := simplex.New().Solve(context.Background(), p.Model, solver.Options{})
	require.NoError(t, err)
	require.Equal(t, plan.StatusOptimal, sol.Status)
	assert.Empty(t, p.Model.Violations(sol.Primal, 1e-6, nil))

	y := 1 // battery
	net, err := NetDrift(p, sol.Primal, y, 0, yearOfFour)
	require.NoError(t, err)
	assert.InDelta(t, 0, net, 1e-6)

	traj, err := Trajectory(p, sol.Primal, y, 0, 4)
	require.NoError(t, err)
	for n, w := range traj {
		assert.GreaterOrEqual(t, w, -1e-6, "modeled period %d", n)
		assert.LessOrEqual(t, w, 40+1e-6, "modeled period %d", n)
	}
}
