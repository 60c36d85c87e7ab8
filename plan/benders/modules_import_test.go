package benders_test

import _ "github.com/gridplan/gridplan/plan/assembly/modules"
