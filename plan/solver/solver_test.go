package solver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/model"
)

func TestBounded_SlowSolve_ReportsTimedOutSolverError(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	_, err := Bounded(context.Background(), 10*time.Millisecond, "slow", func(context.Context) (*Solution, error) {
		<-release
		return &Solution{Status: plan.StatusOptimal}, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, plan.ErrSolver)
	var se *plan.SolverError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, plan.StatusTimedOut, se.Status)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBounded_CanceledContext_ReportsFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	release := make(chan struct{})
	defer close(release)
	_, err := Bounded(ctx, 0, "cancelled", func(context.Context) (*Solution, error) {
		<-release
		return nil, nil
	})
	var se *plan.SolverError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, plan.StatusFailed, se.Status)
}

func TestBounded_FastSolve_PassesResultThrough(t *testing.T) {
	sol, err := Bounded(context.Background(), time.Second, "fast", func(context.Context) (*Solution, error) {
		return &Solution{Status: plan.StatusOptimal, Objective: 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, sol.Objective)
}

func TestBounded_Timeout_CancelsSolveContext(t *testing.T) {
	// GIVEN a solve that polls its context
	stopped := make(chan struct{})
	_, err := Bounded(context.Background(), 10*time.Millisecond, "polling", func(ctx context.Context) (*Solution, error) {
		defer close(stopped)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	// THEN the timeout is reported and the solve goroutine exits
	var se *plan.SolverError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, plan.StatusTimedOut, se.Status)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("solve still running after the timeout")
	}
}

func TestCheck_NonOptimal_CarriesScenario(t *testing.T) {
	assert.NoError(t, Check(&Solution{Status: plan.StatusOptimal}, "p", -1))

	err := Check(&Solution{Status: plan.StatusInfeasible}, "subproblem", 6)
	var se *plan.SolverError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 6, se.Scenario)
	assert.Contains(t, err.Error(), "scenario 6")
	assert.Contains(t, err.Error(), "infeasible")
}

func TestFunc_AdaptsFunction(t *testing.T) {
	var s Solver = Func(func(_ context.Context, m *model.Model, _ Options) (*Solution, error) {
		return &Solution{Status: plan.StatusOptimal, Primal: make([]float64, m.NumVars())}, nil
	})
	m := model.New("f")
	m.AddVar("x", 0, 1, model.Continuous)
	sol, err := s.Solve(context.Background(), m, Options{})
	require.NoError(t, err)
	assert.Len(t, sol.Primal, 1)
	assert.False(t, sol.HasDuals())
}
