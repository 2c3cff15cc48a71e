package expression

import (
	"math"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNumber
	KindBool
	KindText
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindText:
		return "text"
	case KindFailed:
		return "failed"
	}
	return "undefined"
}

// Value is the result of evaluating an expression. A failed value with Flag
// set means a temporal function lacked history for its period.
type Value struct {
	Kind Kind
	Num  float64
	Flag bool
	Str  string
}

// Undefined is returned when an input is missing or an operation has no result.
var Undefined = Value{}

func NumberValue(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Undefined
	}
	return Value{Kind: KindNumber, Num: v}
}

func BoolValue(b bool) Value          { return Value{Kind: KindBool, Flag: b} }
func TextValue(s string) Value        { return Value{Kind: KindText, Str: s} }
func FailedValue(reason string) Value { return Value{Kind: KindFailed, Str: reason} }

// InsufficientDataValue is the failure of a temporal function whose series
// does not reach back over the whole period.
func InsufficientDataValue(reason string) Value {
	return Value{Kind: KindFailed, Flag: true, Str: reason}
}

func (v Value) IsUndefined() bool { return v.Kind == KindUndefined }

// InsufficientData reports whether v failed for lack of history.
func (v Value) InsufficientData() bool { return v.Kind == KindFailed && v.Flag }
func (v Value) IsFailed() bool    { return v.Kind == KindFailed }

// Usable reports whether v carries a real result.
func (v Value) Usable() bool { return v.Kind != KindUndefined && v.Kind != KindFailed }

// Float returns v as a number. Booleans map to 1 and 0.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindBool:
		if v.Flag {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Truth returns v as a boolean. Non-zero numbers are true.
func (v Value) Truth() (bool, bool) {
	switch v.Kind {
	case KindBool:
		return v.Flag, true
	case KindNumber:
		return v.Num != 0, true
	}
	return false, false
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Flag)
	case KindText:
		return v.Str
	case KindFailed:
		return "FAILED(" + v.Str + ")"
	}
	return "undefined"
}

// literal converts a usable value back into an expression node.
func (v Value) literal() (Expr, bool) {
	switch v.Kind {
	case KindNumber:
		return &Number{Value: v.Num}, true
	case KindBool:
		return &Bool{Value: v.Flag}, true
	case KindText:
		return &Text{Value: v.Str}, true
	}
	return nil, false
}
