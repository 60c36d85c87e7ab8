package benders

import "fmt"

// State is a step of the decomposition loop.
type State int

const (
	BuildMaster State = iota
	BuildSubproblems
	SolveSubproblems
	AddCuts
	SolveMaster
	CheckConvergence
	Done
)

func (s State) String() string {
	switch s {
	case BuildMaster:
		return "BUILD_MASTER"
	case BuildSubproblems:
		return "BUILD_SUBPROBLEMS"
	case SolveSubproblems:
		return "SOLVE_SUBPROBLEMS"
	case AddCuts:
		return "ADD_CUTS"
	case SolveMaster:
		return "SOLVE_MASTER"
	case CheckConvergence:
		return "CHECK_CONVERGENCE"
	case Done:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
