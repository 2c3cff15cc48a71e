package templates

import (
	"fmt"
	"strings"
	"time"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
	"github.com/aevon-lab/rules-engine/internal/core/expression"
	"github.com/aevon-lab/rules-engine/internal/core/rules"
	"github.com/aevon-lab/rules-engine/internal/core/timeseries"
)

const (
	// MaxBufferTime bounds the history an actor keeps.
	MaxBufferTime = 365 * 24 * time.Hour

	maxListed = 10
)

// Reserved environment names assigned before parameters are evaluated.
const (
	VarNow             = "NOW"
	VarLastTriggerTime = "LAST_TRIGGER_TIME"
	VarIsFaulty        = "IS_FAULTY"
	VarDeltaTimeS      = "DELTA_TIME_S"
	VarTime            = "TIME"
	VarTimePercentage  = "TIME_PERCENTAGE"
)

// ValueResult classifies the outcome of evaluating an instance.
type ValueResult uint8

const (
	ResultOK ValueResult = iota
	ResultInvalid
	ResultInvalidCapability
	ResultInvalidTemporalRange
)

func (r ValueResult) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultInvalid:
		return "invalid"
	case ResultInvalidCapability:
		return "invalid_capability"
	case ResultInvalidTemporalRange:
		return "invalid_temporal_range"
	}
	return "unknown"
}

// PointLookup resolves bound points to their value in effect at now.
func PointLookup(deps Dependencies, now time.Time) expression.PointLookup {
	return func(id string) (expression.Value, bool) {
		ts, ok := deps.TryGetByTwinID(id)
		if !ok {
			return expression.Undefined, false
		}
		tv, ok := ts.ValueAt(now)
		if !ok {
			return expression.Undefined, false
		}
		return FromTimedValue(tv), true
	}
}

// FromTimedValue converts a stored sample to an expression value.
func FromTimedValue(tv timeseries.TimedValue) expression.Value {
	switch {
	case tv.Text != "":
		return expression.TextValue(tv.Text)
	case tv.IsBool:
		return expression.BoolValue(tv.Value != 0)
	}
	return expression.NumberValue(tv.Value)
}

// AllValuesTimely checks every input of ri reports regularly at now. It
// returns the missing-value text when one or more inputs are stale. Inputs
// that only appear as TOLERANTOPTION alternatives are excused while another
// alternative of that option is timely.
func AllValuesTimely(now time.Time, ri *rules.RuleInstance, deps Dependencies) (string, bool) {
	checked := make(map[string]string)
	timely := func(id string) bool {
		desc, ok := checked[id]
		if !ok {
			desc = staleness(now, id, deps)
			checked[id] = desc
		}
		return desc == ""
	}

	var entries []string
	for _, id := range requiredInputs(ri, timely) {
		if timely(id) {
			continue
		}
		if len(entries) == maxListed {
			entries = append(entries, "...")
			break
		}
		entries = append(entries, fmt.Sprintf("[%s] %s", id, checked[id]))
	}

	switch len(entries) {
	case 0:
		return "", true
	case 1:
		return "Missing value: " + entries[0], false
	}
	return "Missing values: " + strings.Join(entries, ", "), false
}

// staleness describes why id is not timely at now, or returns "".
func staleness(now time.Time, id string, deps Dependencies) string {
	ts, ok := deps.TryGetByTwinID(id)
	if !ok {
		return "never"
	}
	age, ok := ts.Age(now)
	if !ok {
		return "empty"
	}
	if ts.IsTimely(now) {
		return ""
	}
	return fmt.Sprintf("%.1f min ago", age.Minutes())
}

// requiredInputs lists the inputs of ri that must be timely, in order of
// appearance.
func requiredInputs(ri *rules.RuleInstance, timely func(string) bool) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(ids ...string) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	for _, group := range [][]rules.BoundParameter{ri.Parameters, ri.ImpactScores} {
		for _, p := range group {
			expression.Walk(p.Expr, func(n expression.Expr) bool {
				switch n := n.(type) {
				case *expression.Failed:
					return false
				case *expression.Point:
					add(n.ID)
				case *expression.Call:
					if !strings.EqualFold(n.Name, "TOLERANTOPTION") {
						return true
					}
					for _, alt := range n.Args {
						if all(expression.Points(alt), timely) {
							return false
						}
					}
					for _, alt := range n.Args {
						add(expression.Points(alt)...)
					}
					return false
				}
				return true
			})
		}
	}
	return out
}

func all(ids []string, ok func(string) bool) bool {
	for _, id := range ids {
		if !ok(id) {
			return false
		}
	}
	return true
}

// AllValuesValid refreshes the status of every input of ri and returns the
// invalid-value text when one is out of its configured range.
func AllValuesValid(now time.Time, ri *rules.RuleInstance, deps Dependencies) (string, bool) {
	var entries []string
	for _, id := range ri.Inputs() {
		ts, ok := deps.TryGetByTwinID(id)
		if !ok {
			continue
		}
		status := ts.UpdateStatus(now)
		if !status.Has(timeseries.StatusValueOutOfRange) {
			continue
		}
		if len(entries) == maxListed {
			entries = append(entries, "...")
			break
		}
		entries = append(entries, fmt.Sprintf("'%s' %s: %s", status, inputName(ri, id), id))
	}

	switch len(entries) {
	case 0:
		return "", true
	case 1:
		return "Invalid value: " + entries[0], false
	}
	return "Invalid values: " + strings.Join(entries, ", "), false
}

// inputName is the name of the first parameter reading id.
func inputName(ri *rules.RuleInstance, id string) string {
	for _, group := range [][]rules.BoundParameter{ri.Parameters, ri.ImpactScores} {
		for _, p := range group {
			for _, pid := range expression.Points(p.Expr) {
				if pid == id {
					return p.Name
				}
			}
		}
	}
	return id
}

// inputsUsable records an invalid or missing value output when an input is
// out of range or stale, and reports whether the trigger may go on.
func inputsUsable(now time.Time, ri *rules.RuleInstance, st *actor.State, deps Dependencies) bool {
	if text, ok := AllValuesValid(now, ri, deps); !ok {
		st.Apply(now, actor.InvalidValue(text))
		return false
	}
	if text, ok := AllValuesTimely(now, ri, deps); !ok {
		st.Apply(now, actor.MissingValue(text))
		return false
	}
	return true
}

// History exposes stored series to the temporal functions: points read the
// bound time series and names read the actor's timed values.
func History(deps Dependencies, st *actor.State) expression.History {
	return history{deps: deps, st: st}
}

type history struct {
	deps Dependencies
	st   *actor.State
}

func (h history) Window(ref expression.SeriesRef, start, end time.Time) ([]expression.Sample, time.Time, bool) {
	var points []timeseries.TimedValue
	var earliest time.Time
	if ref.Point {
		ts, ok := h.deps.TryGetByTwinID(ref.Name)
		if !ok {
			return nil, time.Time{}, false
		}
		points, earliest = ts.Window(start, end)
	} else {
		b, ok := h.st.TimedValues[ref.Name]
		if !ok {
			return nil, time.Time{}, false
		}
		points, earliest = b.Window(start, end)
	}
	return samples(points), earliest, true
}

func (h history) Recent(ref expression.SeriesRef, t time.Time, n int) []expression.Sample {
	if ref.Point {
		if ts, ok := h.deps.TryGetByTwinID(ref.Name); ok {
			return samples(ts.Recent(t, n))
		}
		return nil
	}
	if b, ok := h.st.TimedValues[ref.Name]; ok {
		return samples(b.Recent(t, n))
	}
	return nil
}

func (h history) Timely(id string, t time.Time) bool {
	ts, ok := h.deps.TryGetByTwinID(id)
	return ok && ts.IsTimely(t)
}

func samples(points []timeseries.TimedValue) []expression.Sample {
	out := make([]expression.Sample, 0, len(points))
	for _, p := range points {
		if p.Text != "" {
			continue
		}
		out = append(out, expression.Sample{Time: p.Timestamp, Value: p.Value})
	}
	return out
}

// Calculation holds the values of every parameter of one trigger.
type Calculation struct {
	Values map[string]expression.Value
	// Failed is the first failed parameter value, if any.
	Failed      *expression.Value
	FailedField string
	// ImpactFailures lists impact scores that could not be evaluated.
	ImpactFailures []string
}

// Get returns the value of a parameter, or Undefined.
func (c Calculation) Get(field string) expression.Value {
	return c.Values[field]
}

// CalculateValues assigns the reserved names, then evaluates the bound
// parameters and impact scores in order. Each value is recorded as a timed
// value of st (running totals for cumulative parameters) and assigned into
// env so later parameters can refer to it. Temporal functions read the
// stored series of deps and st.
//
// Only parameters decide Failed; an impact score that fails is left
// undefined and listed in ImpactFailures.
func CalculateValues(now time.Time, env *expression.Env, ri *rules.RuleInstance, st *actor.State, deps Dependencies) Calculation {
	assignReserved(now, env, st)
	env.WithHistory(History(deps, st), now)

	calc := Calculation{Values: make(map[string]expression.Value, len(ri.Parameters)+len(ri.ImpactScores))}
	for _, p := range ri.Parameters {
		v := expression.Evaluate(p.Expr, env)
		if v.IsFailed() && calc.Failed == nil {
			failed := v
			calc.Failed = &failed
			calc.FailedField = p.FieldID
		}
		calc.record(now, env, st, p, v)
	}
	for _, p := range ri.ImpactScores {
		v := expression.Evaluate(p.Expr, env)
		if v.IsFailed() {
			calc.ImpactFailures = append(calc.ImpactFailures, p.FieldID+": "+v.Str)
			v = expression.Undefined
		}
		calc.record(now, env, st, p, v)
	}
	return calc
}

func (c Calculation) record(now time.Time, env *expression.Env, st *actor.State, p rules.BoundParameter, v expression.Value) {
	v = st.TimedValue(p.FieldID, now, v, p.Cumulative)
	env.Assign(p.FieldID, v)
	c.Values[p.FieldID] = v
}

func assignReserved(now time.Time, env *expression.Env, st *actor.State) {
	env.Assign(VarNow, expression.NumberValue(float64(now.Unix())))
	env.Assign(VarIsFaulty, expression.BoolValue(st.ValueBool))
	if !st.Timestamp.IsZero() {
		env.Assign(VarLastTriggerTime, expression.NumberValue(float64(st.Timestamp.Unix())))
		env.Assign(VarDeltaTimeS, expression.NumberValue(now.Sub(st.Timestamp).Seconds()))
	} else {
		env.Assign(VarDeltaTimeS, expression.NumberValue(0))
	}
	for _, name := range []string{VarTime, VarTimePercentage} {
		if b, ok := st.TimedValues[name]; ok {
			if last, ok := b.Last(); ok {
				env.Assign(name, expression.NumberValue(last.Value))
			}
		}
	}
}

// classify maps an unusable result to an output.
func classify(field string, v expression.Value) (actor.Output, ValueResult) {
	if v.InsufficientData() {
		return actor.InsufficientData(v.Str), ResultInvalidTemporalRange
	}
	switch v.Kind {
	case expression.KindFailed:
		return actor.InvalidOutput(fmt.Sprintf("Failed to evaluate %s: %s", field, v.Str)), ResultInvalidCapability
	case expression.KindUndefined:
		return actor.InsufficientData(fmt.Sprintf("Could not calculate %s", field)), ResultInvalid
	}
	return actor.InvalidValue(fmt.Sprintf("%s is not a valid value: %s", field, v.String())), ResultInvalid
}

// accumulateTime returns the hours the result has been continuously true,
// including the gap since the previous trigger. prev is the result of the
// previous trigger.
func accumulateTime(now time.Time, st *actor.State, prev, result bool) float64 {
	if !result || !prev || st.Timestamp.IsZero() {
		return 0
	}
	hours := 0.0
	if b, ok := st.TimedValues[VarTime]; ok {
		if last, ok := b.Last(); ok {
			hours = last.Value
		}
	}
	return hours + now.Sub(st.Timestamp).Hours()
}

// lastBool returns the previous value of a boolean series before it is
// updated for the current trigger.
func lastBool(st *actor.State, name string) (bool, bool) {
	b, ok := st.TimedValues[name]
	if !ok {
		return false, false
	}
	last, ok := b.Last()
	if !ok {
		return false, false
	}
	return last.Bool(), true
}

// timePercentage is the share of [now-window, now] during which the boolean
// series was true. Time before the first sample is not counted.
func timePercentage(b *timeseries.Buffer, now time.Time, window time.Duration) float64 {
	if b == nil || b.Count() == 0 || window <= 0 {
		return 0
	}
	start := now.Add(-window)
	first, _ := b.First()
	if first.Timestamp.After(start) {
		start = first.Timestamp
	}
	total := now.Sub(start)
	if total <= 0 {
		last, _ := b.Last()
		if last.Bool() {
			return 100
		}
		return 0
	}

	var on time.Duration
	cursor := start
	current, _ := b.ValueAt(start)
	for _, p := range b.GetRange(start, now) {
		if !p.Timestamp.After(cursor) {
			current = p
			continue
		}
		if current.Bool() {
			on += p.Timestamp.Sub(cursor)
		}
		cursor = p.Timestamp
		current = p
	}
	if current.Bool() {
		on += now.Sub(cursor)
	}
	return 100 * on.Seconds() / total.Seconds()
}
