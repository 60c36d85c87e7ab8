package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridplan/gridplan/plan/scenario"
)

// scenariosCmd prints the joint scenario table of a case
var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Print the joint fuel x weather scenario table of a case",
	RunE: func(cmd *cobra.Command, args []string) error {
		if casePath == "" {
			return fmt.Errorf("no case file given (--case)")
		}
		c, err := LoadCase(casePath)
		if err != nil {
			return err
		}
		set, err := scenario.New(c.Scenarios.Fuel, c.Scenarios.Weather)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%8s %6s %8s %12s\n", "scenario", "fuel", "weather", "probability")
		for _, s := range set.All() {
			fmt.Fprintf(out, "%8d %6d %8d %12.6f\n", s.ID(), s.Fuel, s.Weather, s.Probability)
		}
		return nil
	},
}
