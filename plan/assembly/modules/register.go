// Package modules holds the operating modules: one per resource family plus
// the policy finalizers. Each registers itself with plan/assembly from
// init(); importing this package is what makes them available to an engine.
package modules

import "github.com/gridplan/gridplan/plan/assembly"

func init() {
	assembly.Register("investment", assembly.StageInvestment, newInvestment)
	assembly.Register("discharge", assembly.StageOperation, newDischarge)
	assembly.Register("nse", assembly.StageOperation, newNSE)
	assembly.Register("ucommit", assembly.StageOperation, newUCommit)
	assembly.Register("storage", assembly.StageOperation, newStorage)
	assembly.Register("flexdemand", assembly.StageOperation, newFlexDemand)
	assembly.Register("reserves", assembly.StageOperation, newReserves)
	assembly.Register("emissions", assembly.StageOperation, newEmissions)
	assembly.Register("transmission", assembly.StageOperation, newTransmission)
	assembly.Register("policies", assembly.StageOperation, newPolicies)
}
