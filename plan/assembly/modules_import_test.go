package assembly_test

// Blank imports trigger the init() registrations of the operating modules and
// the long-duration linker, so package assembly's internal tests can build
// complete models without importing them directly (an import cycle).
import (
	_ "github.com/gridplan/gridplan/plan/assembly/modules"
	_ "github.com/gridplan/gridplan/plan/lds"
)
