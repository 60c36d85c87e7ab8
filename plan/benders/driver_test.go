package benders

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/internal/testutil"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/solver"
	"github.com/gridplan/gridplan/plan/solver/simplex"
)

func newEngine(t *testing.T, sys *testutil.System) *assembly.Engine {
	t.Helper()
	e, err := assembly.NewEngine(sys.Setup, sys.Registry, sys.Scenarios, sys.Inputs)
	require.NoError(t, err)
	return e
}

func options() plan.BendersSetup {
	o := plan.DefaultSetup().Benders
	o.Enabled = true
	o.AbsTolerance = 1e-4
	o.RelTolerance = 1e-7
	o.Parallelism = 2
	return o
}

// monolithicCost solves investment and every scenario in one LP.
func monolithicCost(t *testing.T, sys *testutil.System) float64 {
	t.Helper()
	p, err := newEngine(t, sys).BuildMonolithic()
	require.NoError(t, err)
	sol, err := simplex.New().Solve(context.Background(), p.Model, solver.Options{})
	require.NoError(t, err)
	require.Equal(t, plan.StatusOptimal, sol.Status)
	return sol.Objective
}

func run(t *testing.T, sys *testutil.System, slv solver.Solver, opts plan.BendersSetup) (*Driver, *Result, error) {
	t.Helper()
	d, err := New(newEngine(t, sys), slv, opts)
	require.NoError(t, err)
	res, err := d.Run(context.Background())
	return d, res, err
}

func assertMonotoneBounds(t *testing.T, history []plan.Bounds) {
	t.Helper()
	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, history[i].Lower, history[i-1].Lower, "lower bound fell at iteration %d", history[i].Iteration)
		assert.LessOrEqual(t, history[i].Upper, history[i-1].Upper, "upper bound rose at iteration %d", history[i].Iteration)
	}
}

func TestRun_ToyWithCurtailment_ConvergesToMonolithicOptimum(t *testing.T) {
	want := monolithicCost(t, testutil.Toy(t, true))

	_, res, err := run(t, testutil.Toy(t, true), simplex.New(), options())
	require.NoError(t, err)

	assert.LessOrEqual(t, res.Iterations, 20)
	assert.Len(t, res.History, res.Iterations)
	assertMonotoneBounds(t, res.History)
	testutil.AssertRelEqual(t, "upper bound", want, res.UpperBound, 1e-6)
	assert.LessOrEqual(t, res.LowerBound, want+1e-3)
	assert.LessOrEqual(t, res.Gap(), 1e-4+1e-7*res.UpperBound)
	assert.Zero(t, res.Count(Feasibility))
	assert.Positive(t, res.Count(Optimality))
	for k, v := range res.Capacity {
		assert.GreaterOrEqual(t, v, -1e-9, "capacity %s", k)
	}
}

func TestRun_ToyWithoutCurtailment_AddsFeasibilityCuts(t *testing.T) {
	// GIVEN a system that cannot shed load, so zero capacity is infeasible
	want := monolithicCost(t, testutil.Toy(t, false))

	// WHEN the driver starts from the empty master solution
	_, res, err := run(t, testutil.Toy(t, false), simplex.New(), options())
	require.NoError(t, err)

	// THEN the first iteration cuts off infeasible plans and the loop still
	// reaches the monolithic optimum
	require.NotEmpty(t, res.Cuts)
	assert.Equal(t, Feasibility, res.Cuts[0].Kind)
	assert.Equal(t, 1, res.Cuts[0].Iteration)
	assert.Positive(t, res.Count(Feasibility))
	assertMonotoneBounds(t, res.History)
	testutil.AssertRelEqual(t, "upper bound", want, res.UpperBound, 1e-6)
}

func TestRun_Variants_ReachSameOptimum(t *testing.T) {
	want := monolithicCost(t, testutil.Toy(t, true))
	tests := []struct {
		name string
		edit func(o *plan.BendersSetup)
	}{
		{"single cut", func(o *plan.BendersSetup) { o.Cuts = plan.CutsSingle }},
		{"in-out stabilization", func(o *plan.BendersSetup) {
			o.Stabilization = plan.StabilizationInOut
			o.InOutAlpha = 0.5
		}},
		{"sequential solves", func(o *plan.BendersSetup) { o.Parallelism = 1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := options()
			opts.MaxIterations = 100
			tc.edit(&opts)
			_, res, err := run(t, testutil.Toy(t, true), simplex.New(), opts)
			require.NoError(t, err)
			assertMonotoneBounds(t, res.History)
			testutil.AssertRelEqual(t, "upper bound", want, res.UpperBound, 1e-6)
		})
	}
}

func TestRun_SingleCut_AddsOneOptimalityCutPerIteration(t *testing.T) {
	opts := options()
	opts.Cuts = plan.CutsSingle
	opts.MaxIterations = 100
	_, res, err := run(t, testutil.Toy(t, true), simplex.New(), opts)
	require.NoError(t, err)
	assert.Equal(t, res.Iterations, res.Count(Optimality))
	for _, c := range res.Cuts {
		assert.Equal(t, -1, c.Scenario)
	}
}

func TestRun_ParallelismDoesNotChangeResult(t *testing.T) {
	seq := options()
	seq.Parallelism = 1
	_, a, err := run(t, testutil.Toy(t, true), simplex.New(), seq)
	require.NoError(t, err)
	_, b, err := run(t, testutil.Toy(t, true), simplex.New(), options())
	require.NoError(t, err)

	assert.Equal(t, a.History, b.History)
	assert.Equal(t, a.Capacity, b.Capacity)
}

// countingSolver records the peak number of concurrent subproblem solves.
type countingSolver struct {
	inner  solver.Solver
	active atomic.Int32
	peak   atomic.Int32
}

func (c *countingSolver) Solve(ctx context.Context, m *model.Model, opts solver.Options) (*solver.Solution, error) {
	if strings.HasPrefix(m.Name, assembly.Subproblem.String()) {
		n := c.active.Add(1)
		defer c.active.Add(-1)
		for {
			p := c.peak.Load()
			if n <= p || c.peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	return c.inner.Solve(ctx, m, opts)
}

func TestRun_SubproblemSolves_RespectParallelism(t *testing.T) {
	opts := options()
	opts.Parallelism = 1
	c := &countingSolver{inner: simplex.New()}
	_, _, err := run(t, testutil.Toy(t, true), c, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(1), c.peak.Load())
}

func TestRun_IterationCap_ReturnsConvergenceErrorWithHistory(t *testing.T) {
	opts := options()
	opts.MaxIterations = 1
	_, res, err := run(t, testutil.Toy(t, true), simplex.New(), opts)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, plan.ErrConvergence))

	var ce *plan.ConvergenceError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Iterations)
	require.Len(t, ce.History, 1)
	assert.Equal(t, ce.LowerBound, ce.History[0].Lower)
	assert.Equal(t, ce.UpperBound, ce.History[0].Upper)
	assert.Greater(t, ce.UpperBound, ce.LowerBound)
}

// stub wraps the reference solver, overriding the outcome for models whose
// name starts with scope.
func stub(scope assembly.Scope, override func(sol *solver.Solution) (*solver.Solution, error)) solver.Solver {
	inner := simplex.New()
	return solver.Func(func(ctx context.Context, m *model.Model, opts solver.Options) (*solver.Solution, error) {
		sol, err := inner.Solve(ctx, m, opts)
		if err != nil || !strings.HasPrefix(m.Name, scope.String()) {
			return sol, err
		}
		return override(sol)
	})
}

func TestRun_SolverFailures_AreFatal(t *testing.T) {
	tests := []struct {
		name     string
		slv      solver.Solver
		status   plan.SolveStatus
		scenario func(int) bool
	}{
		{
			name: "infeasible master",
			slv: stub(assembly.Master, func(*solver.Solution) (*solver.Solution, error) {
				return &solver.Solution{Status: plan.StatusInfeasible}, nil
			}),
			status:   plan.StatusInfeasible,
			scenario: func(s int) bool { return s == -1 },
		},
		{
			name: "subproblem timeout",
			slv: stub(assembly.Subproblem, func(*solver.Solution) (*solver.Solution, error) {
				return nil, &plan.SolverError{Status: plan.StatusTimedOut, Problem: "subproblem", Scenario: -1, Err: context.DeadlineExceeded}
			}),
			status:   plan.StatusTimedOut,
			scenario: func(s int) bool { return s == 1 || s == 2 },
		},
		{
			name: "subproblem without duals",
			slv: stub(assembly.Subproblem, func(sol *solver.Solution) (*solver.Solution, error) {
				sol.Duals = nil
				return sol, nil
			}),
			status:   plan.StatusFailed,
			scenario: func(s int) bool { return s == 1 || s == 2 },
		},
		{
			name: "unbounded subproblem",
			slv: stub(assembly.Subproblem, func(*solver.Solution) (*solver.Solution, error) {
				return &solver.Solution{Status: plan.StatusUnbounded}, nil
			}),
			status:   plan.StatusUnbounded,
			scenario: func(s int) bool { return s == 1 || s == 2 },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, res, err := run(t, testutil.Toy(t, true), tc.slv, options())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, plan.ErrSolver))
			var se *plan.SolverError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tc.status, se.Status)
			assert.True(t, tc.scenario(se.Scenario), "scenario %d", se.Scenario)
		})
	}
}

func TestRun_CanceledContext_StopsBeforeBuilding(t *testing.T) {
	d, err := New(newEngine(t, testutil.Toy(t, true)), simplex.New(), options())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_InvalidOptions_ReturnConfigurationError(t *testing.T) {
	tests := []struct {
		name string
		edit func(o *plan.BendersSetup)
	}{
		{"no iterations", func(o *plan.BendersSetup) { o.MaxIterations = 0 }},
		{"negative tolerance", func(o *plan.BendersSetup) { o.AbsTolerance = -1 }},
		{"unknown cuts", func(o *plan.BendersSetup) { o.Cuts = "triple" }},
		{"unknown stabilization", func(o *plan.BendersSetup) { o.Stabilization = "trust-region" }},
		{"alpha out of range", func(o *plan.BendersSetup) {
			o.Stabilization = plan.StabilizationInOut
			o.InOutAlpha = 1.5
		}},
	}
	e := newEngine(t, testutil.Toy(t, true))
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := options()
			tc.edit(&opts)
			_, err := New(e, simplex.New(), opts)
			assert.True(t, errors.Is(err, plan.ErrConfiguration), "got %v", err)
		})
	}
}

func TestResult_ScenarioCostSummary(t *testing.T) {
	_, res, err := run(t, testutil.Toy(t, true), simplex.New(), options())
	require.NoError(t, err)

	require.Len(t, res.ScenarioCosts, 2)
	// equal probabilities: the expectation is the plain mean
	mean := (res.ScenarioCosts[0] + res.ScenarioCosts[1]) / 2
	assert.InDelta(t, mean, res.ExpectedCost, 1e-9)
	assert.InDelta(t, res.UpperBound-res.InvestmentCost, res.ExpectedCost, 1e-6)
	half := (res.ScenarioCosts[0] - res.ScenarioCosts[1]) / 2
	assert.InDelta(t, half*half, res.CostStdDev*res.CostStdDev, 1e-6)
}

// metricValue returns the value of the series name whose labels include
// want, or 0 when there is none.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue series
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestMetrics_TrackBoundsAndCuts(t *testing.T) {
	d, res, err := run(t, testutil.Toy(t, false), simplex.New(), options())
	require.NoError(t, err)
	reg := d.Metrics()

	assert.Equal(t, float64(res.Iterations), metricValue(t, reg, "gridplan_benders_iterations_total", nil))
	assert.Equal(t, res.LowerBound, metricValue(t, reg, "gridplan_benders_lower_bound", nil))
	assert.Equal(t, res.UpperBound, metricValue(t, reg, "gridplan_benders_upper_bound", nil))
	assert.Equal(t, float64(res.Count(Optimality)),
		metricValue(t, reg, "gridplan_benders_cuts_total", map[string]string{"kind": "optimality"}))
	assert.Equal(t, float64(res.Count(Feasibility)),
		metricValue(t, reg, "gridplan_benders_cuts_total", map[string]string{"kind": "feasibility"}))
	assert.Equal(t, float64(res.Iterations),
		metricValue(t, reg, "gridplan_benders_iterations_total", map[string]string{"session": res.Session.String()}))
}

func TestRun_LogsBoundsEveryIteration(t *testing.T) {
	var buf bytes.Buffer
	origOutput := logrus.StandardLogger().Out
	origLevel := logrus.GetLevel()
	logrus.SetOutput(&buf)
	logrus.SetLevel(logrus.InfoLevel)
	defer func() {
		if origOutput != nil {
			logrus.SetOutput(origOutput)
		} else {
			logrus.SetOutput(os.Stderr)
		}
		logrus.SetLevel(origLevel)
	}()

	_, res, err := run(t, testutil.Toy(t, true), simplex.New(), options())
	require.NoError(t, err)

	out := buf.String()
	assert.Equal(t, res.Iterations, strings.Count(out, "lower="))
	assert.Contains(t, out, "iteration=1")
	assert.NotContains(t, out, "BUILD_MASTER")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "BUILD_MASTER", BuildMaster.String())
	assert.Equal(t, "CHECK_CONVERGENCE", CheckConvergence.String())
	assert.Equal(t, "DONE", Done.String())
	assert.Equal(t, "State(42)", State(42).String())
}
