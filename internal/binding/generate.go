package binding

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aevon-lab/rules-engine/internal/core/rules"
)

// Generate binds every rule to each twin of its primary model, plus every
// calculated point to its parent, and flags circular calculations. Binding
// failures are recorded on the instances; only cancellation is an error. The
// returned graph ranks the instances for execution.
func (r *Resolver) Generate(ctx context.Context, ruleList []rules.Rule, calcPoints []*Twin) ([]*rules.RuleInstance, *DependencyGraph, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	var mu sync.Mutex
	var out []*rules.RuleInstance
	add := func(ri *rules.RuleInstance) {
		mu.Lock()
		out = append(out, ri)
		mu.Unlock()
	}

	for i := range ruleList {
		rule := &ruleList[i]
		if rule.PrimaryModelID == "" {
			slog.Warn("[Binding] Skip rule without primary model", "rule", rule.ID)
			continue
		}
		twins, err := r.query(gctx, TwinQuery{Models: []string{rule.PrimaryModelID}, Hops: r.opts.Hops, Top: r.opts.Top})
		if err != nil {
			if ctxErr := gctx.Err(); ctxErr != nil {
				_ = g.Wait()
				return nil, nil, ctxErr
			}
			slog.Warn("[Binding] Skip rule, primary model query failed", "rule", rule.ID, "error", err)
			continue
		}
		for _, twin := range twins {
			g.Go(func() error {
				ri, err := r.Bind(gctx, rule, twin)
				if err != nil {
					return err
				}
				add(ri)
				return nil
			})
		}
	}

	for _, cp := range calcPoints {
		g.Go(func() error {
			ri, err := r.BindCalculatedPoint(gctx, cp)
			if err != nil {
				return err
			}
			add(ri)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("generate rule instances: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	graph := NewDependencyGraph(out)
	MarkCircular(out, graph)

	invalid := 0
	for _, ri := range out {
		if !ri.Valid() {
			invalid++
			slog.Debug("[Binding] Instance not runnable", "instance", ri.ID, "status", ri.Status.String(), "failures", ri.Failures())
		}
	}
	hits, misses := r.cache.stats()
	slog.Info("[Binding] Generated rule instances",
		"instances", len(out),
		"invalid", invalid,
		"circular", graph.CyclicCount(),
		"cache_hits", hits,
		"cache_misses", misses,
	)
	return out, graph, nil
}
