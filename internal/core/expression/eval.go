package expression

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Function evaluates a call over already evaluated, flattened arguments.
type Function func(args []Value) Value

// Functions is the registry of callable functions. Names are upper case.
var Functions = map[string]Function{
	"ABS":            fnAbs,
	"MIN":            numericFold(math.Min),
	"MAX":            numericFold(math.Max),
	"SUM":            numericFold(func(a, b float64) float64 { return a + b }),
	"AVERAGE":        fnAverage,
	"ANY":            fnAny,
	"ALL":            fnAll,
	"IF":             fnIf,
	"OPTION":         fnOption,
	"TOLERANTOPTION": fnOption,
	"COUNT":          fnCount,
	"STND":           fnStnd,
	"DELTA":          constantDelta,
	"DELTA_TIME":     constantDelta,
	"SLOPE":          needsPeriod("SLOPE"),
	"FORECAST":       needsPeriod("FORECAST"),
}

// FunctionNames returns the registered function names, sorted.
func FunctionNames() []string {
	names := make([]string, 0, len(Functions))
	for n := range Functions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Evaluate computes e against scope. Failed nodes evaluate to a failed value
// and missing inputs to Undefined; Evaluate never panics on a well formed tree.
func Evaluate(e Expr, scope Scope) Value {
	switch n := e.(type) {
	case *Number:
		return NumberValue(n.Value)
	case *Bool:
		return BoolValue(n.Value)
	case *Text:
		return TextValue(n.Value)
	case *Variable:
		if scope == nil {
			return Undefined
		}
		v, _ := scope.Variable(n.Name)
		return v
	case *Point:
		if scope == nil {
			return Undefined
		}
		v, _ := scope.Point(n.ID)
		return v
	case *Unary:
		return evalUnary(n.Op, Evaluate(n.Operand, scope))
	case *Binary:
		return evalBinary(n.Op, Evaluate(n.Left, scope), Evaluate(n.Right, scope))
	case *Duration:
		return NumberValue(n.Duration().Seconds())
	case *Call:
		name := strings.ToUpper(n.Name)
		if name == "TOLERANTOPTION" {
			return evalTolerantOption(n.Args, scope)
		}
		if v, ok := evalTemporal(name, n.Args, scope); ok {
			return v
		}
		fn, ok := Functions[name]
		if !ok {
			return FailedValue("Unknown function " + n.Name)
		}
		return fn(evalArgs(n.Args, scope))
	case *Array:
		return collapse(evalArgs(n.Items, scope))
	case *Failed:
		return FailedValue(n.Reason)
	}
	return Undefined
}

func evalArgs(args []Expr, scope Scope) []Value {
	out := make([]Value, 0, len(args))
	for _, a := range args {
		if arr, ok := a.(*Array); ok {
			out = append(out, evalArgs(arr.Items, scope)...)
			continue
		}
		out = append(out, Evaluate(a, scope))
	}
	return out
}

// collapse reduces a list in scalar position: the average of numbers, or
// true when any boolean is true.
func collapse(vals []Value) Value {
	if len(vals) == 1 {
		return vals[0]
	}
	allBool := true
	for _, v := range vals {
		if v.IsFailed() {
			return v
		}
		if v.Usable() && v.Kind != KindBool {
			allBool = false
		}
	}
	if allBool {
		return fnAny(vals)
	}
	return fnAverage(vals)
}

func evalUnary(op string, v Value) Value {
	if !v.Usable() {
		return v
	}
	switch op {
	case "-":
		if f, ok := v.Float(); ok {
			return NumberValue(-f)
		}
	case "!":
		if b, ok := v.Truth(); ok {
			return BoolValue(!b)
		}
	}
	return Undefined
}

func evalBinary(op string, l, r Value) Value {
	if l.IsFailed() {
		return l
	}
	if r.IsFailed() {
		return r
	}

	switch op {
	case "&", "|":
		lb, lok := l.Truth()
		rb, rok := r.Truth()
		// short circuit on a known operand even when the other is missing
		if op == "&" && ((lok && !lb) || (rok && !rb)) {
			return BoolValue(false)
		}
		if op == "|" && ((lok && lb) || (rok && rb)) {
			return BoolValue(true)
		}
		if !lok || !rok {
			return Undefined
		}
		if op == "&" {
			return BoolValue(lb && rb)
		}
		return BoolValue(lb || rb)
	}

	if l.IsUndefined() || r.IsUndefined() {
		return Undefined
	}

	if l.Kind == KindText || r.Kind == KindText {
		switch op {
		case "==":
			return BoolValue(l.Kind == r.Kind && strings.EqualFold(l.Str, r.Str))
		case "!=":
			return BoolValue(l.Kind != r.Kind || !strings.EqualFold(l.Str, r.Str))
		case "+":
			return TextValue(l.String() + r.String())
		}
		return Undefined
	}

	a, _ := l.Float()
	b, _ := r.Float()
	switch op {
	case "+":
		return NumberValue(a + b)
	case "-":
		return NumberValue(a - b)
	case "*":
		return NumberValue(a * b)
	case "/":
		if b == 0 {
			return Undefined
		}
		return NumberValue(a / b)
	case "%":
		if b == 0 {
			return Undefined
		}
		return NumberValue(math.Mod(a, b))
	case "==":
		return BoolValue(a == b)
	case "!=":
		return BoolValue(a != b)
	case "<":
		return BoolValue(a < b)
	case "<=":
		return BoolValue(a <= b)
	case ">":
		return BoolValue(a > b)
	case ">=":
		return BoolValue(a >= b)
	}
	return Undefined
}

func firstFailed(args []Value) (Value, bool) {
	for _, a := range args {
		if a.IsFailed() {
			return a, true
		}
	}
	return Undefined, false
}

func fnAbs(args []Value) Value {
	if len(args) != 1 {
		return FailedValue("ABS expects one argument")
	}
	if f, ok := args[0].Float(); ok {
		return NumberValue(math.Abs(f))
	}
	return args[0]
}

func numericFold(fold func(a, b float64) float64) Function {
	return func(args []Value) Value {
		if f, ok := firstFailed(args); ok {
			return f
		}
		acc, seen := 0.0, false
		for _, a := range args {
			f, ok := a.Float()
			if !ok {
				continue
			}
			if !seen {
				acc, seen = f, true
				continue
			}
			acc = fold(acc, f)
		}
		if !seen {
			return Undefined
		}
		return NumberValue(acc)
	}
}

func fnAverage(args []Value) Value {
	if f, ok := firstFailed(args); ok {
		return f
	}
	sum, n := 0.0, 0
	for _, a := range args {
		if f, ok := a.Float(); ok {
			sum += f
			n++
		}
	}
	if n == 0 {
		return Undefined
	}
	return NumberValue(sum / float64(n))
}

func fnAny(args []Value) Value {
	seen := false
	for _, a := range args {
		if b, ok := a.Truth(); ok {
			if b {
				return BoolValue(true)
			}
			seen = true
		}
	}
	if !seen {
		if f, ok := firstFailed(args); ok {
			return f
		}
		return Undefined
	}
	return BoolValue(false)
}

func fnAll(args []Value) Value {
	if f, ok := firstFailed(args); ok {
		return f
	}
	seen := false
	for _, a := range args {
		b, ok := a.Truth()
		if !ok {
			continue
		}
		if !b {
			return BoolValue(false)
		}
		seen = true
	}
	if !seen {
		return Undefined
	}
	return BoolValue(true)
}

func fnIf(args []Value) Value {
	if len(args) != 3 {
		return FailedValue("IF expects three arguments")
	}
	if args[0].IsFailed() {
		return args[0]
	}
	c, ok := args[0].Truth()
	if !ok {
		return Undefined
	}
	if c {
		return args[1]
	}
	return args[2]
}

// evalTolerantOption returns the first alternative whose points are all
// timely and whose value is usable. Without stored series every point counts
// as timely.
func evalTolerantOption(args []Expr, scope Scope) Value {
	h, now := historyOf(scope)
	var failed *Value
	for _, a := range args {
		if h != nil && !allTimely(h, Points(a), now) {
			continue
		}
		v := Evaluate(a, scope)
		if v.Usable() {
			return v
		}
		if v.IsFailed() && failed == nil {
			failed = &v
		}
	}
	if failed != nil {
		return *failed
	}
	return Undefined
}

func allTimely(h History, ids []string, now time.Time) bool {
	for _, id := range ids {
		if !h.Timely(id, now) {
			return false
		}
	}
	return true
}

func fnCount(args []Value) Value {
	n := 0
	for _, a := range args {
		if a.Usable() {
			n++
		}
	}
	return NumberValue(float64(n))
}

func fnStnd(args []Value) Value {
	if f, ok := firstFailed(args); ok {
		return f
	}
	var xs []float64
	for _, a := range args {
		if f, ok := a.Float(); ok {
			xs = append(xs, f)
		}
	}
	if len(xs) == 0 {
		return Undefined
	}
	return NumberValue(stddev(xs))
}

// constantDelta is DELTA and DELTA_TIME of anything that is not a stored
// series.
func constantDelta([]Value) Value { return NumberValue(0) }

func needsPeriod(name string) Function {
	return func([]Value) Value {
		return FailedValue(name + " expects a point and a period")
	}
}

// fnOption returns the first usable argument, else the first failure.
func fnOption(args []Value) Value {
	for _, a := range args {
		if a.Usable() {
			return a
		}
	}
	if f, ok := firstFailed(args); ok {
		return f
	}
	return Undefined
}
