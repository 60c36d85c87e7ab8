// Package model is the linear-model algebra the engine assembles into:
// bounded continuous/integer variables, linear constraints, a minimisation
// objective, and lock-guarded accumulators that many modules add into.
package model

import (
	"fmt"
	"math"
)

// Kind is a variable's domain.
type Kind int

const (
	Continuous Kind = iota
	Integer
	Binary
)

// Variable is one decision variable. Bounds may be infinite.
type Variable struct {
	Name  string
	Lower float64
	Upper float64
	Kind  Kind
}

// Sense is a constraint relation.
type Sense int

const (
	LE Sense = iota
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	default:
		return "=="
	}
}

// ConstrID indexes a constraint within its Model.
type ConstrID int

// Constraint is Expr (sense) RHS with the expression's constant folded into
// RHS, so Expr.Constant is always zero.
type Constraint struct {
	Name  string
	Expr  Expr
	Sense Sense
	RHS   float64
}

// Model is a minimisation problem. It is not safe for concurrent mutation;
// concurrent contributions go through Accumulator.
type Model struct {
	Name        string
	vars        []Variable
	constraints []Constraint
	objective   Expr
}

// New returns an empty model.
func New(name string) *Model {
	return &Model{Name: name}
}

// AddVar adds a variable and returns its id.
func (m *Model) AddVar(name string, lower, upper float64, kind Kind) VarID {
	if kind == Binary {
		lower, upper = math.Max(lower, 0), math.Min(upper, 1)
	}
	m.vars = append(m.vars, Variable{Name: name, Lower: lower, Upper: upper, Kind: kind})
	return VarID(len(m.vars) - 1)
}

// AddConstraint adds lhs (sense) rhs and returns its id.
func (m *Model) AddConstraint(name string, lhs Expr, sense Sense, rhs Expr) ConstrID {
	var e Expr
	e.AddExpr(1, lhs)
	e.AddExpr(-1, rhs)
	c := e.Canonical()
	m.constraints = append(m.constraints, Constraint{
		Name:  name,
		Expr:  Expr{Terms: c.Terms},
		Sense: sense,
		RHS:   -c.Constant,
	})
	return ConstrID(len(m.constraints) - 1)
}

// SetObjective replaces the objective.
func (m *Model) SetObjective(e Expr) { m.objective = e.Canonical() }

// Objective returns the objective expression.
func (m *Model) Objective() Expr { return m.objective }

// SetBounds overrides the bounds of v.
func (m *Model) SetBounds(v VarID, lower, upper float64) {
	m.vars[v].Lower, m.vars[v].Upper = lower, upper
}

// NumVars returns the variable count.
func (m *Model) NumVars() int { return len(m.vars) }

// NumConstraints returns the constraint count.
func (m *Model) NumConstraints() int { return len(m.constraints) }

// Var returns variable v.
func (m *Model) Var(v VarID) Variable { return m.vars[v] }

// Vars returns all variables; callers must not mutate the slice.
func (m *Model) Vars() []Variable { return m.vars }

// Constraint returns constraint c.
func (m *Model) Constraint(c ConstrID) Constraint { return m.constraints[c] }

// Constraints returns all constraints; callers must not mutate the slice.
func (m *Model) Constraints() []Constraint { return m.constraints }

// HasIntegers reports whether any variable is integer or binary.
func (m *Model) HasIntegers() bool {
	for _, v := range m.vars {
		if v.Kind != Continuous {
			return true
		}
	}
	return false
}

// Violation describes one unsatisfied constraint or bound at a point.
type Violation struct {
	Name   string
	LHS    float64
	Sense  Sense
	RHS    float64
	Amount float64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %g %s %g (off by %g)", v.Name, v.LHS, v.Sense, v.RHS, v.Amount)
}

// Violations evaluates every constraint whose name satisfies match (nil
// matches all) at values and returns those violated by more than tol.
// Variable bounds are checked too, reported under the variable name.
func (m *Model) Violations(values []float64, tol float64, match func(name string) bool) []Violation {
	var out []Violation
	for _, c := range m.constraints {
		if match != nil && !match(c.Name) {
			continue
		}
		lhs := c.Expr.Eval(values)
		var off float64
		switch c.Sense {
		case LE:
			off = lhs - c.RHS
		case GE:
			off = c.RHS - lhs
		case EQ:
			off = math.Abs(lhs - c.RHS)
		}
		if off > tol {
			out = append(out, Violation{Name: c.Name, LHS: lhs, Sense: c.Sense, RHS: c.RHS, Amount: off})
		}
	}
	for i, v := range m.vars {
		if match != nil && !match(v.Name) {
			continue
		}
		x := values[i]
		if x < v.Lower-tol {
			out = append(out, Violation{Name: v.Name, LHS: x, Sense: GE, RHS: v.Lower, Amount: v.Lower - x})
		}
		if x > v.Upper+tol {
			out = append(out, Violation{Name: v.Name, LHS: x, Sense: LE, RHS: v.Upper, Amount: x - v.Upper})
		}
	}
	return out
}

// Find returns the id of the first variable with the given name.
func (m *Model) Find(name string) (VarID, bool) {
	for i, v := range m.vars {
		if v.Name == name {
			return VarID(i), true
		}
	}
	return 0, false
}

// FindConstraint returns the id of the first constraint with the given name.
func (m *Model) FindConstraint(name string) (ConstrID, bool) {
	for i, c := range m.constraints {
		if c.Name == name {
			return ConstrID(i), true
		}
	}
	return 0, false
}
