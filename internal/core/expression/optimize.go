package expression

import (
	"fmt"
	"strings"
)

// Rewrite rebuilds e bottom up, replacing every node with fn(node). Children
// are rewritten before their parent. The input tree is not modified.
func Rewrite(e Expr, fn func(Expr) Expr) Expr {
	switch n := e.(type) {
	case *Unary:
		return fn(&Unary{Op: n.Op, Operand: Rewrite(n.Operand, fn)})
	case *Binary:
		return fn(&Binary{Op: n.Op, Left: Rewrite(n.Left, fn), Right: Rewrite(n.Right, fn)})
	case *Call:
		return fn(&Call{Name: n.Name, Args: rewriteAll(n.Args, fn)})
	case *Array:
		return fn(&Array{Items: rewriteAll(n.Items, fn)})
	case *Property:
		return fn(&Property{Target: Rewrite(n.Target, fn), Name: n.Name})
	case nil:
		return nil
	}
	return fn(e)
}

func rewriteAll(items []Expr, fn func(Expr) Expr) []Expr {
	out := make([]Expr, len(items))
	for i, it := range items {
		out[i] = Rewrite(it, fn)
	}
	return out
}

// Optimize folds constant sub-expressions. Anything touching a variable, a
// point or a failure is left alone.
func Optimize(e Expr) Expr {
	return Rewrite(e, func(n Expr) Expr {
		switch n.(type) {
		case *Unary, *Binary, *Call:
		default:
			return n
		}
		if !constant(n) {
			return n
		}
		if lit, ok := Evaluate(n, nil).literal(); ok {
			return lit
		}
		return n
	})
}

func constant(e Expr) bool {
	ok := true
	Walk(e, func(n Expr) bool {
		switch c := n.(type) {
		case *Variable, *Point, *Property, *Failed:
			ok = false
		case *Call:
			if _, known := Functions[strings.ToUpper(c.Name)]; !known {
				ok = false
			}
		}
		return ok
	})
	return ok
}

// Macro is a named, parameterised expression. Calls to the macro are replaced
// by its body with arguments substituted for parameters.
type Macro struct {
	Name   string
	Params []string
	Body   Expr
}

// ParseMacro compiles a macro body.
func ParseMacro(name string, params []string, body string) (Macro, error) {
	e, err := Parse(body)
	if err != nil {
		return Macro{}, fmt.Errorf("macro %s: %w", name, err)
	}
	return Macro{Name: strings.ToUpper(name), Params: params, Body: e}, nil
}

// maxMacroDepth bounds recursive expansion.
const maxMacroDepth = 16

// ExpandMacros replaces macro calls in e. A call with the wrong number of
// arguments, or expansion that recurses too deeply, becomes a Failed node.
func ExpandMacros(e Expr, macros map[string]Macro) Expr {
	return expand(e, macros, 0)
}

func expand(e Expr, macros map[string]Macro, depth int) Expr {
	if len(macros) == 0 {
		return e
	}
	return Rewrite(e, func(n Expr) Expr {
		call, ok := n.(*Call)
		if !ok {
			return n
		}
		m, ok := macros[strings.ToUpper(call.Name)]
		if !ok {
			return n
		}
		if depth >= maxMacroDepth {
			return Fail("Macro expansion too deep", n)
		}
		if len(call.Args) != len(m.Params) {
			return Fail(fmt.Sprintf("Macro %s expects %d arguments", m.Name, len(m.Params)), n)
		}
		args := make(map[string]Expr, len(m.Params))
		for i, p := range m.Params {
			args[p] = call.Args[i]
		}
		body := Rewrite(m.Body, func(b Expr) Expr {
			if v, ok := b.(*Variable); ok {
				if a, ok := args[v.Name]; ok {
					return a
				}
			}
			return b
		})
		return expand(body, macros, depth+1)
	})
}
