package lds_test

// Engines built by this package's tests need the operating modules
// registered alongside the linker.
import _ "github.com/gridplan/gridplan/plan/assembly/modules"
