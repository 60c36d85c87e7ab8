package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	// operating modules and the long-duration linker register with the
	// engine from init()
	_ "github.com/gridplan/gridplan/plan/assembly/modules"
	_ "github.com/gridplan/gridplan/plan/lds"
)

var (
	casePath    string // Case file
	logLevel    string // Log verbosity level
	useBenders  bool   // Decompose instead of solving the monolithic problem
	metricsPath string // Where to write the driver's metrics
	parallelism int    // Concurrent subproblem solves; 0 keeps the case file value
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "gridplan",
	Short: "Capacity-expansion planning under weather and fuel-price uncertainty",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&casePath, "case", "", "Path to the case YAML file")

	runCmd.Flags().BoolVar(&useBenders, "benders", false, "Solve by Benders decomposition (also enabled by setup.benders.enabled)")
	runCmd.Flags().StringVar(&metricsPath, "metrics", "", "Write decomposition metrics in Prometheus text format to this file")
	runCmd.Flags().IntVar(&parallelism, "parallelism", 0, "Concurrent subproblem solves (0 keeps the case value)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scenariosCmd)
}
