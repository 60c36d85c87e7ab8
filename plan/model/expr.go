package model

import (
	"sort"
	"strconv"
	"strings"
)

// VarID indexes a variable within its Model.
type VarID int

// Term is coef * variable.
type Term struct {
	Var  VarID
	Coef float64
}

// Expr is a linear expression: sum of terms plus a constant. The zero value
// is the empty expression. Terms may repeat a variable until Canonical is
// called.
type Expr struct {
	Terms    []Term
	Constant float64
}

// V returns the expression 1*v.
func V(v VarID) Expr { return Expr{Terms: []Term{{Var: v, Coef: 1}}} }

// C returns the constant expression c.
func C(c float64) Expr { return Expr{Constant: c} }

// Add appends coef*v and returns e for chaining.
func (e *Expr) Add(coef float64, v VarID) *Expr {
	if coef != 0 {
		e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
	}
	return e
}

// AddConst adds c to the constant part.
func (e *Expr) AddConst(c float64) *Expr {
	e.Constant += c
	return e
}

// AddExpr adds scale*o.
func (e *Expr) AddExpr(scale float64, o Expr) *Expr {
	if scale == 0 {
		return e
	}
	for _, t := range o.Terms {
		e.Terms = append(e.Terms, Term{Var: t.Var, Coef: scale * t.Coef})
	}
	e.Constant += scale * o.Constant
	return e
}

// Plus returns e + coef*v as a new expression, leaving e untouched.
func (e Expr) Plus(coef float64, v VarID) Expr {
	out := e.Clone()
	out.Add(coef, v)
	return out
}

// PlusConst returns e + c as a new expression.
func (e Expr) PlusConst(c float64) Expr {
	out := e.Clone()
	out.Constant += c
	return out
}

// Scaled returns k*e as a new expression.
func (e Expr) Scaled(k float64) Expr {
	var out Expr
	out.AddExpr(k, e)
	return out
}

// Clone returns a copy that shares no backing storage with e.
func (e Expr) Clone() Expr {
	out := Expr{Terms: make([]Term, len(e.Terms)), Constant: e.Constant}
	copy(out.Terms, e.Terms)
	return out
}

// Canonical merges repeated variables, drops zero coefficients and orders
// terms by variable id. Two expressions built from the same contributions in
// different orders have identical canonical forms.
func (e Expr) Canonical() Expr {
	if len(e.Terms) == 0 {
		return Expr{Constant: e.Constant}
	}
	sum := make(map[VarID]float64, len(e.Terms))
	for _, t := range e.Terms {
		sum[t.Var] += t.Coef
	}
	out := Expr{Terms: make([]Term, 0, len(sum)), Constant: e.Constant}
	for v, c := range sum {
		if c != 0 {
			out.Terms = append(out.Terms, Term{Var: v, Coef: c})
		}
	}
	sort.Slice(out.Terms, func(i, j int) bool { return out.Terms[i].Var < out.Terms[j].Var })
	return out
}

// Coef returns the total coefficient of v.
func (e Expr) Coef(v VarID) float64 {
	var c float64
	for _, t := range e.Terms {
		if t.Var == v {
			c += t.Coef
		}
	}
	return c
}

// Eval evaluates e at the given variable values.
func (e Expr) Eval(values []float64) float64 {
	s := e.Constant
	for _, t := range e.Terms {
		s += t.Coef * values[t.Var]
	}
	return s
}

// IsConstant reports whether e has no variable terms after merging.
func (e Expr) IsConstant() bool {
	return len(e.Canonical().Terms) == 0
}

func (e Expr) String() string {
	c := e.Canonical()
	var b strings.Builder
	for i, t := range c.Terms {
		if i > 0 {
			b.WriteString(" + ")
		}
		b.WriteString(strconv.FormatFloat(t.Coef, 'g', -1, 64))
		b.WriteString("*x")
		b.WriteString(strconv.Itoa(int(t.Var)))
	}
	if c.Constant != 0 || len(c.Terms) == 0 {
		if len(c.Terms) > 0 {
			b.WriteString(" + ")
		}
		b.WriteString(strconv.FormatFloat(c.Constant, 'g', -1, 64))
	}
	return b.String()
}
