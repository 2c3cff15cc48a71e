package templates

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
	"github.com/aevon-lab/rules-engine/internal/core/expression"
	"github.com/aevon-lab/rules-engine/internal/core/rules"
)

// defaultPercentageWindow applies when a percentage rule has no hours element.
const defaultPercentageWindow = 24 * time.Hour

// AnyFault faults while the result parameter is true.
//
// With an "hours" element the fault is debounced: the result must stay true
// for that many hours. With a "percentage" element the rule faults when the
// result was true for at least that share of the hours window.
type AnyFault struct{}

func (AnyFault) ID() string { return rules.TemplateAnyFault }

func (AnyFault) Trigger(ctx context.Context, now time.Time, env *expression.Env, ri *rules.RuleInstance,
	st *actor.State, deps Dependencies, log *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !inputsUsable(now, ri, st, deps) {
		return nil
	}

	prev, _ := lastBool(st, rules.ResultField)
	calc := CalculateValues(now, env, ri, st, deps)
	if len(calc.ImpactFailures) > 0 {
		log.Debug("[AnyFault] Impact scores failed", "instance", ri.ID, "failures", calc.ImpactFailures)
	}
	if calc.Failed != nil {
		out, result := classify(calc.FailedField, *calc.Failed)
		log.Debug("[AnyFault] Parameter failed", "instance", ri.ID, "field", calc.FailedField, "result", result, "reason", calc.Failed.Str)
		st.Apply(now, out)
		return nil
	}

	res := calc.Get(rules.ResultField)
	result, ok := res.Truth()
	if !ok {
		out, _ := classify(rules.ResultField, res)
		st.Apply(now, out)
		return nil
	}

	hoursTrue := accumulateTime(now, st, prev, result)
	st.TimedValue(VarTime, now, expression.NumberValue(hoursTrue), expression.CumulativeNone)

	hours, hasHours := ri.Element(rules.ElementHours)
	pct, hasPct := ri.Element(rules.ElementPercentage)

	switch {
	case hasPct && pct > 0:
		window := defaultPercentageWindow
		if hasHours && hours > 0 {
			window = time.Duration(hours * float64(time.Hour))
		}
		threshold := pct
		if threshold <= 1 {
			threshold *= 100
		}
		share := timePercentage(st.TimedValues[rules.ResultField], now, window)
		st.TimedValue(VarTimePercentage, now, expression.NumberValue(share), expression.CumulativeNone)
		if share >= threshold {
			st.Apply(now, actor.FaultedOutput(fmt.Sprintf("Fault condition true %.1f%% of the last %.1f hours", share, window.Hours())))
			return nil
		}
		st.Apply(now, actor.ValidOutput(fmt.Sprintf("Fault condition true %.1f%% of the last %.1f hours", share, window.Hours())))

	case hasHours && hours > 0:
		if result && hoursTrue >= hours {
			st.Apply(now, actor.FaultedOutput(fmt.Sprintf("Fault condition true for %.2f hours", hoursTrue)))
			return nil
		}
		st.Apply(now, actor.ValidOutput("Healthy"))

	default:
		if result {
			st.Apply(now, actor.FaultedOutput("Fault condition true"))
			return nil
		}
		st.Apply(now, actor.ValidOutput("Healthy"))
	}
	return nil
}
