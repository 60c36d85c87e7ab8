// register.go makes the linker available to assembly engines. Production code
// imports plan/lds directly; tests outside this package use a blank import.
package lds

import "github.com/gridplan/gridplan/plan/assembly"

func init() {
	assembly.Register("lds", assembly.StageOperation, New)
}
