// Package benders splits a capacity-expansion problem into an investment-only
// master and one operating subproblem per scenario, and iterates cut
// generation until the bounds meet.
//
// Each iteration the master proposes a candidate capacity plan. Every
// scenario's subproblem is solved with capacities fixed to the candidate and
// the duals of the linking equalities give an optimality cut
//
//	theta_s >= Q_s + sum_k pi_k (cap_k(x) - xhat_k)
//
// or, when the subproblem is infeasible, the slack-relaxed subproblem gives a
// feasibility cut
//
//	v_s + sum_k pi_k (cap_k(x) - xhat_k) <= 0
//
// Subproblems of one iteration are solved concurrently; everything else in
// the loop is sequential.
package benders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/model"
	"github.com/gridplan/gridplan/plan/solver"
)

// Driver runs one decomposition session. It is not safe for concurrent use;
// each session owns its own driver.
type Driver struct {
	engine  *assembly.Engine
	solver  solver.Solver
	opts    plan.BendersSetup
	session uuid.UUID
	log     *logrus.Entry
	metrics *Metrics

	state     State
	iteration int

	master    *assembly.Problem
	theta     []model.VarID
	masterSol *solver.Solution

	// in-out stabilization
	alpha float64
	core  []float64
	point []float64

	candidate assembly.Candidate
	subs      []scenarioSolve

	lower, upper float64
	best         assembly.Candidate
	bestInvest   float64
	bestCosts    []float64
	history      []plan.Bounds
	cuts         []Cut
}

// scenarioSolve is one scenario's subproblem and, when it was infeasible,
// its feasibility problem.
type scenarioSolve struct {
	sub     *assembly.Problem
	sol     *solver.Solution
	feas    *assembly.Problem
	feasSol *solver.Solution
}

func (s scenarioSolve) feasible() bool { return s.feas == nil }

// New returns a driver over engine's problem. opts is validated here.
func New(engine *assembly.Engine, slv solver.Solver, opts plan.BendersSetup) (*Driver, error) {
	if opts.MaxIterations <= 0 {
		return nil, plan.Configf("benders.max_iterations", "must be positive, got %d", opts.MaxIterations)
	}
	if opts.AbsTolerance < 0 || opts.RelTolerance < 0 {
		return nil, plan.Configf("benders.tolerance", "must be non-negative")
	}
	if !plan.ValidCutSchemes[opts.Cuts] {
		return nil, plan.Configf("benders.cuts", "unknown cut scheme %q", opts.Cuts)
	}
	if !plan.ValidStabilizations[opts.Stabilization] {
		return nil, plan.Configf("benders.stabilization", "unknown stabilization %q", opts.Stabilization)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	alpha := 1.0
	if opts.Stabilization == plan.StabilizationInOut {
		if opts.InOutAlpha < 0 || opts.InOutAlpha > 1 {
			return nil, plan.Configf("benders.in_out_alpha", "must be in [0, 1], got %g", opts.InOutAlpha)
		}
		alpha = opts.InOutAlpha
	}
	session := uuid.New()
	return &Driver{
		engine:  engine,
		solver:  slv,
		opts:    opts,
		session: session,
		log:     logrus.WithFields(logrus.Fields{"session": engine.Session().String(), "benders": session.String()}),
		metrics: newMetrics(session.String()),
		alpha:   alpha,
		lower:   math.Inf(-1),
		upper:   math.Inf(1),
	}, nil
}

// Metrics returns the registry holding the driver's bound and cut series.
func (d *Driver) Metrics() *prometheus.Registry { return d.metrics.Registry() }

// Run iterates until the gap closes, returning the best plan found. Reaching
// the iteration cap is a *plan.ConvergenceError; an infeasible master or any
// solver failure is a *plan.SolverError.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	d.state = BuildMaster
	for d.state != Done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := d.step(ctx)
		if err != nil {
			return nil, err
		}
		d.log.Debugf("%s -> %s", d.state, next)
		d.state = next
	}
	return d.result(), nil
}

func (d *Driver) step(ctx context.Context) (State, error) {
	switch d.state {
	case BuildMaster:
		return d.buildMaster(ctx)
	case BuildSubproblems:
		return d.buildSubproblems()
	case SolveSubproblems:
		return d.solveSubproblems(ctx)
	case AddCuts:
		return d.addCuts()
	case SolveMaster:
		return d.solveMaster(ctx)
	case CheckConvergence:
		return d.checkConvergence()
	}
	return Done, fmt.Errorf("benders: no transition from %s", d.state)
}

func (d *Driver) buildMaster(ctx context.Context) (State, error) {
	p, err := d.engine.BuildMaster()
	if err != nil {
		return Done, err
	}
	n := d.engine.Scenarios().Len()
	if d.opts.Cuts == plan.CutsSingle {
		n = 1
	}
	obj := p.InvestmentCost.Clone()
	for s := 0; s < n; s++ {
		name := "vTHETA[all]"
		if d.opts.Cuts != plan.CutsSingle {
			name = fmt.Sprintf("vTHETA[%d]", s)
		}
		// Operating costs are non-negative, so 0 is a valid initial bound.
		th := p.Model.AddVar(name, 0, math.Inf(1), model.Continuous)
		d.theta = append(d.theta, th)
		obj.Add(1, th)
	}
	p.Model.SetObjective(obj)
	d.master = p
	if err := d.solveMasterModel(ctx); err != nil {
		return Done, err
	}
	return BuildSubproblems, nil
}

// separation moves the point the subproblems are evaluated at. Without
// stabilization it is the master solution; with in-out it is a convex
// combination of the master solution and the previous point.
func (d *Driver) separation() []float64 {
	x := d.masterSol.Primal
	if d.core == nil || d.alpha >= 1 {
		d.core = append([]float64(nil), x...)
		return d.core
	}
	point := make([]float64, len(x))
	for i := range x {
		point[i] = d.alpha*x[i] + (1-d.alpha)*d.core[i]
	}
	d.core = point
	return point
}

func (d *Driver) buildSubproblems() (State, error) {
	d.iteration++
	d.point = d.separation()
	d.candidate = d.master.Candidate(d.point)
	n := d.engine.Scenarios().Len()
	d.subs = make([]scenarioSolve, n)
	for s := 0; s < n; s++ {
		p, err := d.engine.BuildSubproblem(s, d.candidate)
		if err != nil {
			return Done, err
		}
		d.subs[s].sub = p
	}
	return SolveSubproblems, nil
}

// solve runs one solver call under the configured timeout and tags failures
// with the scenario id (-1 outside subproblems).
func (d *Driver) solve(ctx context.Context, p *assembly.Problem, scenario int) (*solver.Solution, error) {
	start := time.Now()
	sol, err := d.solver.Solve(ctx, p.Model, solver.Options{TimeLimit: d.opts.SolveTimeout})
	d.metrics.solve(p.Scope.String(), time.Since(start))
	if err != nil {
		var se *plan.SolverError
		if errors.As(err, &se) {
			tagged := *se
			tagged.Problem, tagged.Scenario = p.Model.Name, scenario
			return nil, &tagged
		}
		return nil, &plan.SolverError{Status: plan.StatusFailed, Problem: p.Model.Name, Scenario: scenario, Err: err}
	}
	return sol, nil
}

// parallel runs f for every index in idx on at most Parallelism
// goroutines and waits for all of them.
func (d *Driver) parallel(ctx context.Context, idx []int, f func(ctx context.Context, s int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Parallelism)
	for _, s := range idx {
		s := s
		g.Go(func() error { return f(gctx, s) })
	}
	return g.Wait()
}

func (d *Driver) solveSubproblems(ctx context.Context) (State, error) {
	all := make([]int, len(d.subs))
	for s := range all {
		all[s] = s
	}
	err := d.parallel(ctx, all, func(ctx context.Context, s int) error {
		id := d.subs[s].sub.Scenarios[0].ID()
		sol, err := d.solve(ctx, d.subs[s].sub, id)
		if err != nil {
			return err
		}
		switch sol.Status {
		case plan.StatusOptimal:
			if !sol.HasDuals() {
				return &plan.SolverError{Status: plan.StatusFailed, Problem: d.subs[s].sub.Model.Name, Scenario: id,
					Err: errors.New("no duals for cut generation")}
			}
		case plan.StatusInfeasible:
		default:
			return solver.Check(sol, d.subs[s].sub.Model.Name, id)
		}
		d.subs[s].sol = sol
		return nil
	})
	if err != nil {
		return Done, err
	}

	var infeasible []int
	for s := range d.subs {
		if d.subs[s].sol.Status == plan.StatusInfeasible {
			p, err := d.engine.BuildFeasibility(s, d.candidate)
			if err != nil {
				return Done, err
			}
			d.subs[s].feas = p
			infeasible = append(infeasible, s)
		}
	}
	if len(infeasible) > 0 {
		d.log.WithField("iteration", d.iteration).Debugf("%d of %d subproblems infeasible", len(infeasible), len(d.subs))
	}
	err = d.parallel(ctx, infeasible, func(ctx context.Context, s int) error {
		id := d.subs[s].feas.Scenarios[0].ID()
		sol, err := d.solve(ctx, d.subs[s].feas, id)
		if err != nil {
			return err
		}
		if err := solver.Check(sol, d.subs[s].feas.Model.Name, id); err != nil {
			return err
		}
		if !sol.HasDuals() {
			return &plan.SolverError{Status: plan.StatusFailed, Problem: d.subs[s].feas.Model.Name, Scenario: id,
				Err: errors.New("no duals for cut generation")}
		}
		d.subs[s].feasSol = sol
		return nil
	})
	if err != nil {
		return Done, err
	}
	d.updateUpper()
	return AddCuts, nil
}

// updateUpper records the separation point's total cost when every scenario
// was feasible there.
func (d *Driver) updateUpper() {
	costs := make([]float64, len(d.subs))
	invest := d.master.InvestmentCost.Eval(d.point)
	total := invest
	for s, sc := range d.subs {
		if !sc.feasible() {
			return
		}
		costs[s] = sc.sol.Objective
		total += costs[s]
	}
	if total < d.upper {
		d.upper = total
		d.best = d.candidate
		d.bestInvest = invest
		d.bestCosts = costs
	}
}

func (d *Driver) addCuts() (State, error) {
	m := d.master.Model
	allFeasible := true
	for _, sc := range d.subs {
		allFeasible = allFeasible && sc.feasible()
	}

	var aggregate model.Expr
	var cost float64
	for s, sc := range d.subs {
		if !sc.feasible() {
			lin, err := linearization(d.master, sc.feas, sc.feasSol, d.candidate)
			if err != nil {
				return Done, err
			}
			name := fmt.Sprintf("cFeasCut[%d,%d]", s, d.iteration)
			d.addCut(Cut{Kind: Feasibility, Iteration: d.iteration, Scenario: s, Name: name,
				Constraint: feasibilityCut(m, name, sc.feasSol.Objective, lin)})
			continue
		}
		lin, err := linearization(d.master, sc.sub, sc.sol, d.candidate)
		if err != nil {
			return Done, err
		}
		if d.opts.Cuts == plan.CutsSingle {
			aggregate.AddExpr(1, lin)
			cost += sc.sol.Objective
			continue
		}
		name := fmt.Sprintf("cOptCut[%d,%d]", s, d.iteration)
		d.addCut(Cut{Kind: Optimality, Iteration: d.iteration, Scenario: s, Name: name,
			Constraint: optimalityCut(m, name, d.theta[s], sc.sol.Objective, lin)})
	}
	if d.opts.Cuts == plan.CutsSingle && allFeasible {
		name := fmt.Sprintf("cOptCut[all,%d]", d.iteration)
		d.addCut(Cut{Kind: Optimality, Iteration: d.iteration, Scenario: -1, Name: name,
			Constraint: optimalityCut(m, name, d.theta[0], cost, aggregate)})
	}
	return SolveMaster, nil
}

func (d *Driver) addCut(c Cut) {
	d.cuts = append(d.cuts, c)
	d.metrics.cut(c.Kind)
}

func (d *Driver) solveMaster(ctx context.Context) (State, error) {
	prev := d.lower
	if err := d.solveMasterModel(ctx); err != nil {
		return Done, err
	}
	if d.alpha < 1 && d.lower <= prev+d.opts.AbsTolerance {
		d.log.WithField("iteration", d.iteration).Debug("lower bound stalled; dropping stabilization")
		d.alpha = 1
	}
	return CheckConvergence, nil
}

func (d *Driver) solveMasterModel(ctx context.Context) error {
	sol, err := d.solve(ctx, d.master, -1)
	if err != nil {
		return err
	}
	if err := solver.Check(sol, d.master.Model.Name, -1); err != nil {
		return err
	}
	d.masterSol = sol
	d.lower = math.Max(d.lower, sol.Objective)
	return nil
}

func (d *Driver) gap() float64 { return d.upper - d.lower }

func (d *Driver) converged() bool {
	if math.IsInf(d.upper, 1) {
		return false
	}
	gap := d.gap()
	return gap <= d.opts.AbsTolerance || gap <= d.opts.RelTolerance*math.Abs(d.upper)
}

func (d *Driver) checkConvergence() (State, error) {
	d.history = append(d.history, plan.Bounds{Iteration: d.iteration, Lower: d.lower, Upper: d.upper})
	d.metrics.iterations.Inc()
	d.metrics.bounds(d.lower, d.upper)
	d.log.WithField("iteration", d.iteration).Infof("lower=%g upper=%g gap=%g", d.lower, d.upper, d.gap())

	if d.converged() {
		return Done, nil
	}
	if d.iteration >= d.opts.MaxIterations {
		return Done, &plan.ConvergenceError{
			Iterations: d.iteration,
			LowerBound: d.lower,
			UpperBound: d.upper,
			History:    append([]plan.Bounds(nil), d.history...),
		}
	}
	return BuildSubproblems, nil
}
