package actor

import (
	"testing"
	"time"

	"github.com/aevon-lab/rules-engine/internal/core/expression"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var airflow = []float64{50, 52, 55, 58, 60, 57, 54, 51, 49, 53, 56, 59, 61, 55, 52, 47, 49}

func TestState_TimedValueAccumulates(t *testing.T) {
	tests := []struct {
		cumulative expression.CumulativeType
		want       int64
	}{
		{cumulative: expression.Accumulate, want: 919},
		{cumulative: expression.AccumulateTimeSeconds, want: 330480 + 1},
		{cumulative: expression.AccumulateTimeMinutes, want: 5508 + 1},
	}

	for _, tc := range tests {
		t.Run(string(tc.cumulative), func(t *testing.T) {
			s := New("twin1_rule1", "rule1")
			s.TimedValue("result", at(0), expression.NumberValue(1), tc.cumulative)
			var last expression.Value
			for i, v := range airflow {
				last = s.TimedValue("result", at((i+1)*6), expression.NumberValue(v), tc.cumulative)
			}

			total, ok := s.Accumulated("result")
			require.True(t, ok)
			require.True(t, decimal.NewFromInt(tc.want).Equal(total), "got %s", total)
			require.Equal(t, expression.NumberValue(float64(tc.want)), last)

			stored, ok := s.TimedValues["result"].Last()
			require.True(t, ok)
			require.Equal(t, float64(tc.want), stored.Value)
		})
	}
}

func TestState_TimedValueSameTimestampDoesNotAccumulate(t *testing.T) {
	s := New("a", "r")
	s.TimedValue("x", at(0), expression.NumberValue(5), expression.Accumulate)
	s.TimedValue("x", at(0), expression.NumberValue(7), expression.Accumulate)
	got := s.TimedValue("x", at(1), expression.NumberValue(2), expression.Accumulate)
	require.Equal(t, expression.NumberValue(7), got)
}

func TestState_TimedValueKinds(t *testing.T) {
	s := New("a", "r")
	s.TimedValue("flag", at(0), expression.BoolValue(true), expression.CumulativeNone)
	s.TimedValue("flag", at(1), expression.BoolValue(true), expression.CumulativeNone)
	s.TimedValue("flag", at(2), expression.BoolValue(false), expression.CumulativeNone)
	s.TimedValue("label", at(0), expression.TextValue("on"), expression.CumulativeNone)

	got := s.TimedValue("missing", at(0), expression.Undefined, expression.CumulativeNone)
	require.True(t, got.IsUndefined())
	_, stored := s.TimedValues["missing"]
	require.False(t, stored)

	require.Equal(t, 2, s.TimedValues["flag"].Count(), "equal values are step compressed")
	require.Equal(t, 1, s.TimedValues["label"].Count())
}

func TestState_ApplyAndReset(t *testing.T) {
	s := New("twin1_rule1", "rule1")
	s.Apply(at(10), ValidOutput(""))
	s.Apply(at(20), ValidOutput(""))
	s.Apply(at(30), FaultedOutput("hot"))

	assert.Equal(t, at(10), s.EarliestSeen)
	assert.Equal(t, at(30), s.Timestamp)
	assert.Equal(t, at(30), s.LastChangedOutput)
	assert.Equal(t, int64(3), s.TriggerCount)
	assert.Equal(t, int64(3), s.Version)
	assert.True(t, s.ValueBool)
	assert.True(t, s.IsValid())
	assert.Equal(t, 2, s.OutputValues.Count())

	assert.False(t, s.NeedsReset(at(15)))
	assert.True(t, s.NeedsReset(at(5)))

	s.TimedValue("x", at(30), expression.NumberValue(1), expression.Accumulate)
	s.Reset()
	assert.Equal(t, "twin1_rule1", s.ID)
	assert.Equal(t, int64(4), s.Version)
	assert.Empty(t, s.TimedValues)
	assert.Empty(t, s.Accumulators)
	assert.Zero(t, s.OutputValues.Count())
	assert.True(t, s.EarliestSeen.IsZero())
}

func TestState_CloneIsIndependent(t *testing.T) {
	s := New("a", "r")
	s.TimedValue("x", at(0), expression.NumberValue(1), expression.Accumulate)
	s.Apply(at(0), ValidOutput(""))

	c := s.Clone()
	s.TimedValue("x", at(1), expression.NumberValue(1), expression.Accumulate)
	s.Apply(at(1), FaultedOutput(""))

	assert.Equal(t, 1, c.TimedValues["x"].Count())
	total, _ := c.Accumulated("x")
	assert.True(t, decimal.NewFromInt(1).Equal(total))
	assert.Equal(t, 1, c.OutputValues.Count())
}

func TestState_RemoveValuesAfterAndLimits(t *testing.T) {
	s := New("a", "r")
	for i := 0; i < 10; i++ {
		s.TimedValue("x", at(i*60), expression.NumberValue(float64(i)), expression.CumulativeNone)
		s.Apply(at(i*60), ValidOutput(""))
	}

	s.RemoveValuesAfter(at(300))
	assert.Equal(t, 6, s.TimedValues["x"].Count())
	assert.Equal(t, at(300), s.Timestamp)

	s.ApplyLimits(at(300), 2*time.Hour)
	assert.Equal(t, 4, s.TimedValues["x"].Count(), "the point in effect at the cutoff is kept")
	assert.Equal(t, 1, s.OutputValues.Count())
}

func TestState_RemoveValuesAfterRewindsTotals(t *testing.T) {
	s := New("a", "r")
	for i, v := range []float64{1, 2, 3} {
		s.TimedValue("sum", at(i*10), expression.NumberValue(v), expression.Accumulate)
		s.TimedValue("area", at(i*10), expression.NumberValue(0), expression.AccumulateTimeMinutes)
	}

	s.RemoveValuesAfter(at(15))
	total, ok := s.Accumulated("sum")
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(3).Equal(total), total.String())
	assert.Equal(t, at(10), s.Accumulators["sum"].LastTimestamp)
	assert.Equal(t, at(10), s.Accumulators["area"].LastTimestamp, "equal totals are still recorded")

	got := s.TimedValue("sum", at(15), expression.NumberValue(100), expression.Accumulate)
	assert.Equal(t, expression.NumberValue(103), got)
	got = s.TimedValue("area", at(15), expression.NumberValue(2), expression.AccumulateTimeMinutes)
	assert.Equal(t, expression.NumberValue(10), got, "2 over the 5 minutes since the last kept total")

	s.RemoveValuesAfter(at(-5))
	_, ok = s.Accumulated("sum")
	assert.False(t, ok, "no total before the rollback point")
}
