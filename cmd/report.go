package cmd

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/stat"

	"github.com/gridplan/gridplan/plan"
	"github.com/gridplan/gridplan/plan/assembly"
	"github.com/gridplan/gridplan/plan/registry"
	"github.com/gridplan/gridplan/plan/scenario"
)

// printPlan lists every capacity decision by resource name.
func printPlan(w io.Writer, reg *registry.Registry, cand assembly.Candidate) {
	fmt.Fprintln(w, "=== Capacity Plan ===")
	for _, k := range cand.Keys() {
		unit := "MW"
		if k.Energy {
			unit = "MWh"
		}
		fmt.Fprintf(w, "%-20s: %12.3f %s\n", reg.Name(k.Resource), cand[k], unit)
	}
}

// printCosts prints the investment cost and each scenario's operating cost,
// unweighted, followed by their probability-weighted summary.
func printCosts(w io.Writer, set *scenario.Set, investment float64, costs []float64) {
	fmt.Fprintln(w, "=== Costs ===")
	fmt.Fprintf(w, "%-20s: %14.3f\n", "Investment", investment)
	for s, c := range costs {
		sc := set.At(s)
		fmt.Fprintf(w, "%-20s: %14.3f (p=%.4f)\n", fmt.Sprintf("Scenario %d", sc.ID()), c, sc.Probability)
	}
	mean, std := stat.PopMeanStdDev(costs, set.Probabilities())
	fmt.Fprintf(w, "%-20s: %14.3f\n", "Expected operating", mean)
	fmt.Fprintf(w, "%-20s: %14.3f\n", "Operating std dev", std)
	fmt.Fprintf(w, "%-20s: %14.3f\n", "Expected total", investment+mean)
}

// printHistory prints the bound history of an unconverged decomposition.
func printHistory(w io.Writer, history []plan.Bounds) {
	fmt.Fprintln(w, "=== Bound History ===")
	for _, b := range history {
		fmt.Fprintf(w, "%4d  lower %14.6g  upper %14.6g  gap %14.6g\n", b.Iteration, b.Lower, b.Upper, b.Upper-b.Lower)
	}
}
