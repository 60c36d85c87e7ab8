package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/benders"
	"github.com/gridplan/gridplan/plan/solver"
	"github.com/gridplan/gridplan/plan/solver/simplex"
)

// runCmd builds the case and solves it, monolithically or by decomposition
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build and solve a planning case",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := loadSystem()
		if err != nil {
			return err
		}
		engine, err := assembly.NewEngine(sys.Setup, sys.Registry, sys.Scenarios, sys.Inputs)
		if err != nil {
			return err
		}
		logrus.Infof("Solving case %s: %d resources, %d scenarios, modules [%v]",
			casePath, sys.Registry.NumResources(), sys.Scenarios.Len(), engine.Modules())

		start := time.Now()
		if useBenders || sys.Setup.Benders.Enabled {
			opts := sys.Setup.Benders
			if parallelism > 0 {
				opts.Parallelism = parallelism
			}
			return runBenders(cmd.Context(), cmd, engine, opts, start)
		}
		return runMonolithic(cmd.Context(), cmd, engine, start)
	},
}

func loadSystem() (*System, error) {
	if casePath == "" {
		return nil, fmt.Errorf("no case file given (--case)")
	}
	c, err := LoadCase(casePath)
	if err != nil {
		return nil, err
	}
	return c.Resolve()
}

func runMonolithic(ctx context.Context, cmd *cobra.Command, engine *assembly.Engine, start time.Time) error {
	p, err := engine.BuildMonolithic()
	if err != nil {
		return err
	}
	sol, err := simplex.New().Solve(ctx, p.Model, solver.Options{TimeLimit: engine.Setup().Benders.SolveTimeout})
	if err != nil {
		return err
	}
	if err := solver.Check(sol, p.Model.Name, -1); err != nil {
		return err
	}
	if sol.Relaxed {
		logrus.Warnf("integer commitment relaxed to continuous by the reference solver")
	}
	if err := p.CheckCapacities(sol.Primal, 1e-6); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	probs := engine.Scenarios().Probabilities()
	costs := make([]float64, len(p.OperatingCost))
	for s, e := range p.OperatingCost {
		// operating costs are probability-weighted in the objective
		if probs[s] > 0 {
			costs[s] = e.Eval(sol.Primal) / probs[s]
		}
	}
	printPlan(out, engine.Registry(), p.Candidate(sol.Primal))
	printCosts(out, engine.Scenarios(), p.InvestmentCost.Eval(sol.Primal), costs)
	fmt.Fprintf(out, "Objective: %.6g\n", sol.Objective)
	fmt.Fprintf(out, "Solved in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func runBenders(ctx context.Context, cmd *cobra.Command, engine *assembly.Engine, opts plan.BendersSetup, start time.Time) error {
	d, err := benders.New(engine, simplex.New(), opts)
	if err != nil {
		return err
	}
	res, runErr := d.Run(ctx)
	if metricsPath != "" {
		if err := writeMetrics(metricsPath, d); err != nil {
			return err
		}
	}
	out := cmd.OutOrStdout()
	if runErr != nil {
		var ce *plan.ConvergenceError
		if errors.As(runErr, &ce) {
			printHistory(out, ce.History)
		}
		return runErr
	}
	printPlan(out, engine.Registry(), res.Capacity)
	printCosts(out, engine.Scenarios(), res.InvestmentCost, res.ScenarioCosts)
	fmt.Fprintf(out, "Benders: %d iterations, lower %.6g, upper %.6g, %d optimality and %d feasibility cuts\n",
		res.Iterations, res.LowerBound, res.UpperBound, res.Count(benders.Optimality), res.Count(benders.Feasibility))
	fmt.Fprintf(out, "Solved in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// writeMetrics dumps every metric family of the driver in text exposition
// format.
func writeMetrics(path string, d *benders.Driver) error {
	families, err := d.Metrics().Gather()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	defer f.Close()
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}
