package plan

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrModelBuild    = errors.New("model build error")
	ErrSolver        = errors.New("solver error")
	ErrConvergence   = errors.New("convergence error")
)

// ConfigurationError reports invalid or inconsistent input, detected before
// any solve attempt. Always fatal.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Msg
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Msg)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Configf builds a ConfigurationError for field.
func Configf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// DataShapeError is a ConfigurationError raised when input dimensions or
// probability masses do not line up.
type DataShapeError struct {
	What string
	Msg  string
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("data shape: %s: %s", e.What, e.Msg)
}

func (e *DataShapeError) Is(target error) bool { return target == ErrConfiguration }

// MissingColumnError is a ConfigurationError raised when a required
// resource-capability column is absent from the input records.
type MissingColumnError struct {
	Column string
	Table  string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required column %q in %s", e.Column, e.Table)
}

func (e *MissingColumnError) Is(target error) bool { return target == ErrConfiguration }

// ModelBuildError reports a module that could not be assembled, e.g. one that
// references variables or sets that were never defined.
type ModelBuildError struct {
	Module string
	Err    error
}

func (e *ModelBuildError) Error() string {
	return fmt.Sprintf("build module %s: %v", e.Module, e.Err)
}

func (e *ModelBuildError) Unwrap() error { return e.Err }

func (e *ModelBuildError) Is(target error) bool { return target == ErrModelBuild }

// SolveStatus is the outcome reported by the solver collaborator.
type SolveStatus int

const (
	StatusUnknown SolveStatus = iota
	StatusOptimal
	StatusInfeasible
	StatusUnbounded
	StatusTimedOut
	StatusFailed
)

func (s SolveStatus) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusTimedOut:
		return "timed-out"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SolverError wraps a non-optimal solve. Scenario is -1 for problems that are
// not scenario subproblems (master, monolithic).
type SolverError struct {
	Status   SolveStatus
	Problem  string
	Scenario int
	Err      error
}

func (e *SolverError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "solve %s", e.Problem)
	if e.Scenario >= 0 {
		fmt.Fprintf(&b, " (scenario %d)", e.Scenario)
	}
	fmt.Fprintf(&b, ": %s", e.Status)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *SolverError) Unwrap() error { return e.Err }

func (e *SolverError) Is(target error) bool { return target == ErrSolver }

// Bounds is one (lower, upper) pair recorded by the Benders driver.
type Bounds struct {
	Iteration int
	Lower     float64
	Upper     float64
}

// ConvergenceError reports that the Benders iteration cap was reached with the
// gap still open. History holds every iteration's bounds.
type ConvergenceError struct {
	Iterations int
	LowerBound float64
	UpperBound float64
	History    []Bounds
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("benders did not converge after %d iterations: lower=%g upper=%g gap=%g",
		e.Iterations, e.LowerBound, e.UpperBound, e.UpperBound-e.LowerBound)
}

func (e *ConvergenceError) Is(target error) bool { return target == ErrConvergence }
