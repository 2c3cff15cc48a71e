package templates

import (
	"context"
	"log/slog"
	"time"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
	"github.com/aevon-lab/rules-engine/internal/core/expression"
	"github.com/aevon-lab/rules-engine/internal/core/rules"
	"github.com/aevon-lab/rules-engine/internal/core/timeseries"
)

// CalculatedPoint evaluates the result parameter without fault logic. When
// the instance has an output twin the scheduler publishes every new result
// as a sample of that twin.
type CalculatedPoint struct{}

func (CalculatedPoint) ID() string { return rules.TemplateCalculatedPoint }

func (CalculatedPoint) Trigger(ctx context.Context, now time.Time, env *expression.Env, ri *rules.RuleInstance,
	st *actor.State, deps Dependencies, log *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !inputsUsable(now, ri, st, deps) {
		return nil
	}

	calc := CalculateValues(now, env, ri, st, deps)
	if len(calc.ImpactFailures) > 0 {
		log.Debug("[CalculatedPoint] Impact scores failed", "instance", ri.ID, "failures", calc.ImpactFailures)
	}
	if calc.Failed != nil {
		out, result := classify(calc.FailedField, *calc.Failed)
		log.Debug("[CalculatedPoint] Parameter failed", "instance", ri.ID, "field", calc.FailedField, "result", result, "reason", calc.Failed.Str)
		st.Apply(now, out)
		return nil
	}

	res := calc.Get(rules.ResultField)
	if !res.Usable() {
		out, _ := classify(rules.ResultField, res)
		st.Apply(now, out)
		return nil
	}
	st.Apply(now, actor.ValidOutput(res.String()))
	return nil
}

// CalculatedValue returns the result of a valid trigger at now, stamped at
// now. A repeated result is returned too so the output twin stays fresh.
func CalculatedValue(st *actor.State, now time.Time) (timeseries.TimedValue, bool) {
	if !st.Timestamp.Equal(now) || !st.IsValid() {
		return timeseries.TimedValue{}, false
	}
	b, ok := st.TimedValues[rules.ResultField]
	if !ok {
		return timeseries.TimedValue{}, false
	}
	last, ok := b.Last()
	if !ok {
		return timeseries.TimedValue{}, false
	}
	last.Timestamp = now
	return last, true
}
