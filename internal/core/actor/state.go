// Package actor holds the per rule instance state driven by templates.
package actor

import (
	"time"

	"github.com/aevon-lab/rules-engine/internal/core/expression"
	"github.com/aevon-lab/rules-engine/internal/core/timeseries"
	"github.com/shopspring/decimal"
)

// DefaultTimedValueCount bounds every named series of an actor.
const DefaultTimedValueCount = timeseries.DefaultMaxCount

// Accumulator is the exact running total behind a cumulative parameter.
type Accumulator struct {
	Total         decimal.Decimal `json:"total"`
	LastTimestamp time.Time       `json:"last_timestamp"`
}

// State is the mutable state of one rule instance. A State is owned by a
// single worker; readers get clones.
type State struct {
	ID                string                        `json:"id"`
	RuleID            string                        `json:"rule_id"`
	Version           int64                         `json:"version"`
	Timestamp         time.Time                     `json:"timestamp"`
	EarliestSeen      time.Time                     `json:"earliest_seen"`
	LastChangedOutput time.Time                     `json:"last_changed_output"`
	TriggerCount      int64                         `json:"trigger_count"`
	ValueBool         bool                          `json:"value_bool"`
	TimedValues       map[string]*timeseries.Buffer `json:"timed_values"`
	Accumulators      map[string]*Accumulator       `json:"accumulators,omitempty"`
	OutputValues      OutputValues                  `json:"output_values"`

	maxCount int
}

// New creates empty state for an instance.
func New(id, ruleID string) *State {
	return &State{
		ID:           id,
		RuleID:       ruleID,
		TimedValues:  make(map[string]*timeseries.Buffer),
		Accumulators: make(map[string]*Accumulator),
		maxCount:     DefaultTimedValueCount,
	}
}

// limit is the per series point cap. State decoded from a snapshot has no
// cap set and falls back to the default.
func (s *State) limit() int {
	if s.maxCount <= 0 {
		return DefaultTimedValueCount
	}
	return s.maxCount
}

// IsValid reports whether the latest output was valid.
func (s *State) IsValid() bool {
	last, ok := s.OutputValues.Last()
	return ok && last.IsValid
}

// Series returns the named series, creating it on first use.
func (s *State) Series(name string) *timeseries.Buffer {
	if s.TimedValues == nil {
		s.TimedValues = make(map[string]*timeseries.Buffer)
	}
	b, ok := s.TimedValues[name]
	if !ok {
		b = timeseries.NewBuffer(s.limit(), 0)
		s.TimedValues[name] = b
	}
	return b
}

// TimedValue records v for name at t and returns the value to use from now
// on. For a cumulative type the returned value is the running total; the
// first value seeds the total and later values are folded in with the time
// elapsed since the previous one. Unusable values are returned unchanged and
// not stored.
func (s *State) TimedValue(name string, t time.Time, v expression.Value, cumulative expression.CumulativeType) expression.Value {
	if v.Kind == expression.KindText {
		s.Series(name).AddPoint(timeseries.Text(t, v.Str), true)
		return v
	}
	f, ok := v.Float()
	if !ok {
		return v
	}

	if c, ok := expression.Cumulatives[cumulative]; ok {
		f = s.accumulate(name, c, t, decimal.NewFromFloat(f))
		// every total is kept so a rollback can resume from any trigger
		s.Series(name).AddPoint(timeseries.Number(t, f), false)
		return expression.NumberValue(f)
	}

	if v.Kind == expression.KindBool {
		s.Series(name).AddPoint(timeseries.Bool(t, v.Flag), true)
	} else {
		s.Series(name).AddPoint(timeseries.Number(t, f), true)
	}
	return v
}

func (s *State) accumulate(name string, c expression.Cumulative, t time.Time, v decimal.Decimal) float64 {
	if s.Accumulators == nil {
		s.Accumulators = make(map[string]*Accumulator)
	}
	acc, ok := s.Accumulators[name]
	switch {
	case !ok:
		acc = &Accumulator{Total: c.Initial(v), LastTimestamp: t}
		s.Accumulators[name] = acc
	case t.After(acc.LastTimestamp):
		acc.Total = c.Apply(acc.Total, v, t.Sub(acc.LastTimestamp))
		acc.LastTimestamp = t
	}
	f, _ := acc.Total.Float64()
	return f
}

// Accumulated returns the exact running total of a cumulative parameter.
func (s *State) Accumulated(name string) (decimal.Decimal, bool) {
	acc, ok := s.Accumulators[name]
	if !ok {
		return decimal.Zero, false
	}
	return acc.Total, true
}

// Apply records the template output for a trigger at now.
func (s *State) Apply(now time.Time, out Output) {
	if s.EarliestSeen.IsZero() || now.Before(s.EarliestSeen) {
		s.EarliestSeen = now
	}
	last, had := s.OutputValues.Last()
	s.OutputValues.Add(now, out)
	if !had || !last.sameState(out) {
		s.LastChangedOutput = now
	}
	if now.After(s.Timestamp) {
		s.Timestamp = now
	}
	s.ValueBool = out.Faulted
	s.TriggerCount++
	s.Version++
}

// Reset clears everything but the identity. Used when time moves back past
// EarliestSeen.
func (s *State) Reset() {
	*s = State{
		ID:           s.ID,
		RuleID:       s.RuleID,
		Version:      s.Version + 1,
		TimedValues:  make(map[string]*timeseries.Buffer),
		Accumulators: make(map[string]*Accumulator),
		maxCount:     s.maxCount,
	}
}

// NeedsReset reports whether a trigger at now is earlier than anything the
// actor has seen.
func (s *State) NeedsReset(now time.Time) bool {
	return !s.EarliestSeen.IsZero() && now.Before(s.EarliestSeen)
}

// RemoveValuesAfter rolls the actor back to t. Running totals resume from
// the last total recorded at or before t, or start over when there is none.
func (s *State) RemoveValuesAfter(t time.Time) {
	for _, b := range s.TimedValues {
		b.RemovePointsAfter(t)
	}
	for name, acc := range s.Accumulators {
		if !acc.LastTimestamp.After(t) {
			continue
		}
		var last timeseries.TimedValue
		found := false
		if b, ok := s.TimedValues[name]; ok {
			last, found = b.Last()
		}
		if !found {
			delete(s.Accumulators, name)
			continue
		}
		acc.Total = decimal.NewFromFloat(last.Value)
		acc.LastTimestamp = last.Timestamp
	}
	s.OutputValues.RemoveValuesAfter(t)
	if s.Timestamp.After(t) {
		s.Timestamp = t
	}
	s.Version++
}

// ApplyLimits trims history older than maxAge.
func (s *State) ApplyLimits(now time.Time, maxAge time.Duration) {
	for _, b := range s.TimedValues {
		b.ApplyLimits(now, maxAge, s.limit())
	}
	s.OutputValues.ApplyLimits(now, maxAge, s.limit())
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *State) Clone() *State {
	c := *s
	c.TimedValues = make(map[string]*timeseries.Buffer, len(s.TimedValues))
	for k, b := range s.TimedValues {
		c.TimedValues[k] = b.Clone()
	}
	c.Accumulators = make(map[string]*Accumulator, len(s.Accumulators))
	for k, a := range s.Accumulators {
		cp := *a
		c.Accumulators[k] = &cp
	}
	c.OutputValues = s.OutputValues.clone()
	return &c
}
