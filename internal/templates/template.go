// Package templates interprets evaluated rule parameters as validity and
// fault intervals.
package templates

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
	"github.com/aevon-lab/rules-engine/internal/core/expression"
	"github.com/aevon-lab/rules-engine/internal/core/rules"
	"github.com/aevon-lab/rules-engine/internal/core/timeseries"
)

// Dependencies gives templates read access to the bound time series.
// *timeseries.Manager satisfies it.
type Dependencies interface {
	TryGetByTwinID(twinID string) (*timeseries.TimeSeries, bool)
}

// RuleTemplate drives one kind of rule. Trigger evaluates the instance at
// now and records the outcome on st. Implementations are stateless; all
// state lives in st.
type RuleTemplate interface {
	ID() string
	Trigger(ctx context.Context, now time.Time, env *expression.Env, ri *rules.RuleInstance,
		st *actor.State, deps Dependencies, log *slog.Logger) error
}

// Templates is the registry of supported templates keyed by template id.
var Templates = map[string]RuleTemplate{
	rules.TemplateAnyFault:        AnyFault{},
	rules.TemplateUnchanging:      Unchanging{},
	rules.TemplateCalculatedPoint: CalculatedPoint{},
}

// Get returns the template for id.
func Get(id string) (RuleTemplate, bool) {
	t, ok := Templates[id]
	return t, ok
}

// IDs returns the registered template ids, sorted.
func IDs() []string {
	ids := make([]string, 0, len(Templates))
	for id := range Templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
