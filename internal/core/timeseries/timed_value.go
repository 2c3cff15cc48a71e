package timeseries

import (
	"math"
	"strconv"
	"time"
)

// TimedValue is a single sample. The payload is a number, a bool (stored as
// 1 or 0 with IsBool set) or text.
type TimedValue struct {
	Timestamp time.Time `json:"t"`
	Value     float64   `json:"v"`
	IsBool    bool      `json:"b,omitempty"`
	Text      string    `json:"s,omitempty"`
}

// Number builds a numeric sample.
func Number(t time.Time, v float64) TimedValue {
	return TimedValue{Timestamp: t, Value: v}
}

// Bool builds a boolean sample.
func Bool(t time.Time, b bool) TimedValue {
	v := TimedValue{Timestamp: t, IsBool: true}
	if b {
		v.Value = 1
	}
	return v
}

// Text builds a text sample.
func Text(t time.Time, s string) TimedValue {
	return TimedValue{Timestamp: t, Text: s}
}

// IsNumeric reports whether the sample carries a plain number.
func (v TimedValue) IsNumeric() bool {
	return !v.IsBool && v.Text == ""
}

// Bool returns the truthiness of the sample.
func (v TimedValue) Bool() bool {
	if v.Text != "" {
		return true
	}
	return v.Value != 0
}

// SameValue compares payloads, ignoring timestamps.
func (v TimedValue) SameValue(o TimedValue) bool {
	return v.Value == o.Value && v.IsBool == o.IsBool && v.Text == o.Text
}

// Valid rejects unset timestamps and non-finite numbers.
func (v TimedValue) Valid() bool {
	if v.Timestamp.IsZero() {
		return false
	}
	return !math.IsNaN(v.Value) && !math.IsInf(v.Value, 0)
}

func (v TimedValue) String() string {
	switch {
	case v.Text != "":
		return v.Text
	case v.IsBool:
		return strconv.FormatBool(v.Value != 0)
	default:
		return strconv.FormatFloat(v.Value, 'f', -1, 64)
	}
}
