package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridplan/gridplan/plan"
)

// execute runs the root command with args and returns its standard output.
// Flag variables are package state, so they are reset first.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	casePath, logLevel, useBenders, metricsPath, parallelism = "", "warn", false, "", 0
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRun_Monolithic_PrintsPlanAndCosts(t *testing.T) {
	out, err := execute(t, "run", "--case", writeCase(t, toyCase))
	require.NoError(t, err)

	assert.Contains(t, out, "=== Capacity Plan ===")
	assert.Contains(t, out, "gas")
	assert.Contains(t, out, "wind")
	assert.Contains(t, out, "Scenario 2")
	assert.Contains(t, out, "Objective:")
}

func TestRun_Benders_PrintsBoundsAndWritesMetrics(t *testing.T) {
	metrics := filepath.Join(t.TempDir(), "metrics.prom")
	out, err := execute(t, "run", "--case", writeCase(t, toyCase), "--benders", "--parallelism", "2", "--metrics", metrics)
	require.NoError(t, err)

	assert.Contains(t, out, "Benders:")
	assert.Contains(t, out, "Expected total")
	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "gridplan_benders_lower_bound")
	assert.Contains(t, string(data), `gridplan_benders_cuts_total{kind="optimality"`)
}

func TestRun_Benders_IterationCapPrintsHistory(t *testing.T) {
	body := strings.Replace(toyCase, "max_iterations: 40", "max_iterations: 1", 1)
	out, err := execute(t, "run", "--case", writeCase(t, body), "--benders")
	require.Error(t, err)
	assert.True(t, errors.Is(err, plan.ErrConvergence))
	assert.Contains(t, out, "=== Bound History ===")
}

func TestRun_MissingCase_ReturnsError(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err)
}

func TestRun_InvalidLogLevel_ReturnsError(t *testing.T) {
	_, err := execute(t, "run", "--case", writeCase(t, toyCase), "--log", "loud")
	assert.Error(t, err)
}

func TestScenarios_PrintsJointTable(t *testing.T) {
	body := strings.Replace(toyCase, "fuel: [1]", "fuel: [0.25, 0.75]", 1)
	out, err := execute(t, "scenarios", "--case", writeCase(t, body))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "probability")
	// fuel-major order: scenario 3 is fuel 2, weather 1
	assert.Equal(t, []string{"3", "2", "1", "0.375000"}, strings.Fields(lines[3]))
}
