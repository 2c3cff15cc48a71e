// Package expression parses, binds and evaluates rule expressions.
//
// Expressions form a closed set of node types. Bind-time problems are carried
// as Failed nodes instead of Go errors so a single bad parameter never aborts
// the rest of a rule.
package expression

import (
	"strings"
	"time"
)

// Expr is a node of an expression tree.
type Expr interface {
	node()
}

// Number is a numeric literal.
type Number struct{ Value float64 }

// Duration is a period literal such as 15m or -4d, used by the temporal
// functions. Anywhere else it evaluates to its length in seconds.
type Duration struct {
	Value float64
	Unit  string
}

// Duration returns the period as a time.Duration.
func (d *Duration) Duration() time.Duration {
	return time.Duration(d.Value * float64(durationUnits[strings.ToLower(d.Unit)]))
}

// Bool is a boolean literal.
type Bool struct{ Value bool }

// Text is a string literal.
type Text struct{ Value string }

// Variable references a named value: a parameter, a reserved name or `this`.
type Variable struct{ Name string }

// Point is a bracketed reference. Before binding the id may be a model id, a
// twin id or a parameter name; after binding it is always a twin id.
type Point struct{ ID string }

// Unary applies - or ! to one operand.
type Unary struct {
	Op      string
	Operand Expr
}

// Binary applies an infix operator.
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
}

// Call is a function or macro invocation.
type Call struct {
	Name string
	Args []Expr
}

// Array is a literal list `{a, b}`.
type Array struct{ Items []Expr }

// Property reads a twin property, e.g. `t.unit`.
type Property struct {
	Target Expr
	Name   string
}

// Failed marks a sub-tree that could not be bound. It keeps the original
// expression for diagnostics and propagates through every operator.
type Failed struct {
	Reason string
	Expr   Expr
}

func (*Number) node()   {}
func (*Duration) node() {}
func (*Bool) node()     {}
func (*Text) node()     {}
func (*Variable) node() {}
func (*Point) node()    {}
func (*Unary) node()    {}
func (*Binary) node()   {}
func (*Call) node()     {}
func (*Array) node()    {}
func (*Property) node() {}
func (*Failed) node()   {}

// Fail wraps expr in a Failed node.
func Fail(reason string, expr Expr) *Failed {
	return &Failed{Reason: reason, Expr: expr}
}

// Walk visits e depth first. Returning false from fn skips the children.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *Unary:
		Walk(n.Operand, fn)
	case *Binary:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Call:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *Array:
		for _, it := range n.Items {
			Walk(it, fn)
		}
	case *Property:
		Walk(n.Target, fn)
	case *Failed:
		Walk(n.Expr, fn)
	}
}

// Points returns the distinct point ids referenced by e, in order of appearance.
func Points(e Expr) []string {
	var out []string
	seen := make(map[string]bool)
	Walk(e, func(n Expr) bool {
		if _, failed := n.(*Failed); failed {
			return false
		}
		if p, ok := n.(*Point); ok && !seen[p.ID] {
			seen[p.ID] = true
			out = append(out, p.ID)
		}
		return true
	})
	return out
}

// Variables returns the distinct variable names referenced by e.
func Variables(e Expr) []string {
	var out []string
	seen := make(map[string]bool)
	Walk(e, func(n Expr) bool {
		if v, ok := n.(*Variable); ok && !seen[v.Name] {
			seen[v.Name] = true
			out = append(out, v.Name)
		}
		return true
	})
	return out
}

// FirstFailure returns the outermost Failed node in e, if any.
func FirstFailure(e Expr) *Failed {
	var found *Failed
	Walk(e, func(n Expr) bool {
		if found != nil {
			return false
		}
		if f, ok := n.(*Failed); ok {
			found = f
			return false
		}
		return true
	})
	return found
}
