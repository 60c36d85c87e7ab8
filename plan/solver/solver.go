// Package solver defines the contract between the engine and an external
// optimisation solver. The engine hands over a fully assembled model and a
// budget; it never inspects solver internals beyond the returned Solution.
package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/model"
)

// Options is the budget for one solve. Zero values mean unlimited.
// Adapters that cannot bound iterations ignore IterationLimit.
type Options struct {
	TimeLimit      time.Duration
	IterationLimit int
}

// Solution is what a solver reports back.
type Solution struct {
	Status    plan.SolveStatus
	Objective float64
	// Primal holds one value per model variable, indexed by VarID.
	Primal []float64
	// Duals holds one shadow price per constraint, indexed by ConstrID:
	// the rate of change of the optimal objective per unit increase of the
	// constraint's right-hand side. Nil when the solver could not produce them.
	Duals []float64
	// Relaxed is set when integer variables were solved as continuous.
	Relaxed bool
}

// Value returns the primal value of v.
func (s *Solution) Value(v model.VarID) float64 { return s.Primal[v] }

// Dual returns the shadow price of constraint c.
func (s *Solution) Dual(c model.ConstrID) float64 { return s.Duals[c] }

// HasDuals reports whether dual values are available.
func (s *Solution) HasDuals() bool { return s.Duals != nil }

// Solver solves a minimisation model. Infeasible and unbounded outcomes are
// reported through Solution.Status with a nil error; errors are reserved for
// timeouts and solver failures, as *plan.SolverError.
type Solver interface {
	Solve(ctx context.Context, m *model.Model, opts Options) (*Solution, error)
}

// Func adapts an ordinary function to the Solver interface.
type Func func(ctx context.Context, m *model.Model, opts Options) (*Solution, error)

// Solve calls f.
func (f Func) Solve(ctx context.Context, m *model.Model, opts Options) (*Solution, error) {
	return f(ctx, m, opts)
}

// Check converts a non-optimal solution into a *plan.SolverError for the named
// problem. scenario is -1 for problems that are not scenario subproblems.
func Check(sol *Solution, problem string, scenario int) error {
	if sol.Status == plan.StatusOptimal {
		return nil
	}
	return &plan.SolverError{Status: sol.Status, Problem: problem, Scenario: scenario}
}

// Bounded runs solve under ctx and limit. solve receives the bounded
// context and should return soon after it is done; a solve that ignores it
// keeps running in the background after Bounded has returned the timeout.
func Bounded(ctx context.Context, limit time.Duration, problem string, solve func(ctx context.Context) (*Solution, error)) (*Solution, error) {
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}
	type result struct {
		sol *Solution
		err error
	}
	done := make(chan result, 1)
	go func() {
		sol, err := solve(ctx)
		done <- result{sol, err}
	}()
	expired := func() error {
		status := plan.StatusFailed
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = plan.StatusTimedOut
		}
		return &plan.SolverError{
			Status:   status,
			Problem:  problem,
			Scenario: -1,
			Err:      fmt.Errorf("after %s: %w", limit, ctx.Err()),
		}
	}
	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			return nil, expired()
		}
		return r.sol, r.err
	case <-ctx.Done():
		return nil, expired()
	}
}
