// Package plan holds the shared vocabulary of the capacity-expansion engine:
// the error taxonomy, the policy toggles (Setup), the representative-period
// time index and the per-scenario input series.
//
// # Reading Guide
//
//   - time.go: TimeIndex and the wraparound hour arithmetic every
//     period-coupled constraint relies on
//   - setup.go: policy toggles, resolved once at model-build start
//   - inputs.go: demand, availability and fuel-price series plus period maps
//   - errors.go: ConfigurationError, ModelBuildError, SolverError, ConvergenceError
//
// # Architecture
//
// Implementations live in sub-packages:
//   - plan/scenario/: joint fuel x weather scenario set
//   - plan/registry/: resources, zones, lines and policy sets
//   - plan/model/: linear-model algebra and shared accumulators
//   - plan/assembly/: the engine that composes operating modules into one model
//   - plan/assembly/modules/: per-resource-family operating modules
//   - plan/lds/: long-duration-storage inter-period linking
//   - plan/benders/: master/subproblem decomposition driver
//   - plan/solver/: the solver contract and a gonum-backed LP adapter
//
// Operating modules register their constructors with plan/assembly from init()
// functions, so importing plan/assembly/modules (and plan/lds) is what makes
// them available to the engine.
package plan
