package templates

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
	"github.com/aevon-lab/rules-engine/internal/core/expression"
	"github.com/aevon-lab/rules-engine/internal/core/rules"
)

// VarWindowDelta holds the spread of the sensor over the window.
const VarWindowDelta = "RESULT2"

// Unchanging faults when the sensor parameter stays within the tolerance
// element (default 0) over the whole "hours" window. Until the sensor has
// history covering the window the output is insufficient data.
type Unchanging struct{}

func (Unchanging) ID() string { return rules.TemplateUnchanging }

func (Unchanging) Trigger(ctx context.Context, now time.Time, env *expression.Env, ri *rules.RuleInstance,
	st *actor.State, deps Dependencies, log *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !inputsUsable(now, ri, st, deps) {
		return nil
	}

	calc := CalculateValues(now, env, ri, st, deps)
	if len(calc.ImpactFailures) > 0 {
		log.Debug("[Unchanging] Impact scores failed", "instance", ri.ID, "failures", calc.ImpactFailures)
	}
	if calc.Failed != nil {
		out, result := classify(calc.FailedField, *calc.Failed)
		log.Debug("[Unchanging] Parameter failed", "instance", ri.ID, "field", calc.FailedField, "result", result, "reason", calc.Failed.Str)
		st.Apply(now, out)
		return nil
	}
	if sensor := calc.Get(rules.SensorField); sensor.Kind != expression.KindNumber && sensor.Kind != expression.KindBool {
		out, _ := classify(rules.SensorField, sensor)
		st.Apply(now, out)
		return nil
	}

	hours, _ := ri.Element(rules.ElementHours)
	tolerance, _ := ri.Element(rules.ElementTolerance)
	window := time.Duration(hours * float64(time.Hour))
	start := now.Add(-window)

	buf := st.Series(rules.SensorField)
	first, _ := buf.First()
	covered := !first.Timestamp.After(start)

	lo, hi := math.Inf(1), math.Inf(-1)
	if v, ok := buf.ValueAt(start); ok {
		lo, hi = v.Value, v.Value
	}
	for _, p := range buf.GetRange(start, now) {
		if p.Timestamp.After(start) {
			lo, hi = math.Min(lo, p.Value), math.Max(hi, p.Value)
		}
	}
	delta := 0.0
	if hi >= lo {
		delta = hi - lo
	}

	elapsed := now.Sub(first.Timestamp)
	if elapsed > window {
		elapsed = window
	}
	result := covered && delta <= tolerance

	st.TimedValue(rules.ResultField, now, expression.BoolValue(result), expression.CumulativeNone)
	st.TimedValue(VarWindowDelta, now, expression.NumberValue(delta), expression.CumulativeNone)
	st.TimedValue(VarTime, now, expression.NumberValue(elapsed.Hours()), expression.CumulativeNone)

	switch {
	case !covered:
		st.Apply(now, actor.InsufficientData(fmt.Sprintf("Waiting for %.1f hours of history, have %.1f", hours, elapsed.Hours())))
	case result:
		st.Apply(now, actor.FaultedOutput(fmt.Sprintf("Sensor unchanged for %.1f hours", hours)))
	default:
		st.Apply(now, actor.ValidOutput(fmt.Sprintf("Sensor changed by %g over %.1f hours", delta, hours)))
	}
	return nil
}
