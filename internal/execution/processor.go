package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
	"github.com/aevon-lab/rules-engine/internal/core/expression"
	"github.com/aevon-lab/rules-engine/internal/core/partition"
	"github.com/aevon-lab/rules-engine/internal/core/rules"
	"github.com/aevon-lab/rules-engine/internal/core/timeseries"
	"github.com/aevon-lab/rules-engine/internal/templates"
)

const (
	defaultWorkerCount = 4
	defaultQueueSize   = 1024
	defaultLimitsEvery = 24 * time.Hour
	maxCascadeDepth    = 32
)

// Options tunes the processor.
type Options struct {
	WorkerCount int
	QueueSize   int
	// MaxAge bounds actor and time series history.
	MaxAge time.Duration
	// LimitsEvery is how often, in telemetry time, history limits are applied.
	LimitsEvery time.Duration
}

func (o Options) normalized() Options {
	n := o
	if n.WorkerCount <= 0 {
		n.WorkerCount = defaultWorkerCount
	}
	if n.QueueSize <= 0 {
		n.QueueSize = defaultQueueSize
	}
	if n.MaxAge <= 0 {
		n.MaxAge = templates.MaxBufferTime
	}
	if n.LimitsEvery <= 0 {
		n.LimitsEvery = defaultLimitsEvery
	}
	return n
}

// Processor routes telemetry to a fixed set of workers and triggers the
// dependent rule instances. The twins an instance reads and the twin a
// calculated point writes share one affinity group, so every actor lives on
// exactly one worker and never runs concurrently with itself.
//
// Runs are serialized; a realtime run holds the processor until its feed
// closes or its context ends.
type Processor struct {
	opts      Options
	mgr       *timeseries.Manager
	store     *Store
	metrics   *Metrics
	groups    *partition.Groups
	instances map[string]*rules.RuleInstance
	consumers map[string][]*rules.RuleInstance
	workers   []*worker
	errLog    *rate.Limiter

	runMu sync.Mutex
}

// worker is the state owned by one worker slot across runs.
type worker struct {
	actors   map[string]*actor.State
	twins    map[string]struct{}
	limitsAt time.Time
}

func (w *worker) actor(ri *rules.RuleInstance) *actor.State {
	st, ok := w.actors[ri.ID]
	if !ok {
		st = actor.New(ri.ID, ri.RuleID)
		w.actors[ri.ID] = st
	}
	return st
}

// NewProcessor indexes the runnable instances. Invalid instances are
// ignored; ranks order the instances reading the same twin.
func NewProcessor(instances []*rules.RuleInstance, ranks Ranker, mgr *timeseries.Manager, store *Store, metrics *Metrics, opts Options) *Processor {
	opts = opts.normalized()
	p := &Processor{
		opts:      opts,
		mgr:       mgr,
		store:     store,
		metrics:   metrics,
		groups:    partition.NewGroups(),
		instances: make(map[string]*rules.RuleInstance),
		consumers: make(map[string][]*rules.RuleInstance),
		workers:   make([]*worker, opts.WorkerCount),
		errLog:    rate.NewLimiter(rate.Every(time.Second), 10),
	}
	for i := range p.workers {
		p.workers[i] = &worker{
			actors: make(map[string]*actor.State),
			twins:  make(map[string]struct{}),
		}
	}

	skipped := 0
	for _, ri := range instances {
		if !ri.Valid() {
			skipped++
			continue
		}
		p.instances[ri.ID] = ri
		inputs := ri.Inputs()
		group := append([]string(nil), inputs...)
		if ri.OutputTwinID != "" {
			group = append(group, ri.OutputTwinID)
		}
		p.groups.Union(group...)
		for _, in := range inputs {
			p.consumers[in] = append(p.consumers[in], ri)
		}
	}
	for _, list := range p.consumers {
		sort.SliceStable(list, func(i, j int) bool {
			ri, rj := ranks.Rank(list[i].ID), ranks.Rank(list[j].ID)
			if ri != rj {
				return ri < rj
			}
			return list[i].ID < list[j].ID
		})
	}

	slog.Info("[Scheduler] Processor ready",
		"instances", len(p.instances),
		"not_runnable", skipped,
		"input_twins", len(p.consumers),
		"workers", opts.WorkerCount,
	)
	return p
}

// Restore seeds workers with persisted actors. Actors of unknown instances
// are dropped.
func (p *Processor) Restore(states []*actor.State) int {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	restored := make([]*actor.State, 0, len(states))
	for _, st := range states {
		ri, ok := p.instances[st.ID]
		if !ok {
			continue
		}
		w := p.groups.Worker(ri.Inputs()[0], len(p.workers))
		p.workers[w].actors[st.ID] = st
		restored = append(restored, st.Clone())
	}
	p.store.Restore(restored)
	p.metrics.setActors(p.store.Len())
	return len(restored)
}

// RunBatch replays stored telemetry in [req.Start, req.End). Cancellation
// stops triggering and returns the counts so far without an error.
func (p *Processor) RunBatch(ctx context.Context, req Request, source PointSource) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if !req.Start.IsZero() {
		// the replay rebuilds every series from its first point
		p.mgr.RemovePointsAfter(req.Start.Add(-time.Nanosecond))
	}
	r := p.start(ctx, req)
	r.log.Info("[Scheduler] Starting batch run",
		"rule", req.RuleID,
		"start", req.Start,
		"end", req.End,
		"workers", len(p.workers),
	)

	err := source.Points(ctx, req.Start, req.End, func(pt Point) error {
		r.dispatch(pt)
		return nil
	})
	res := r.finish()
	if err != nil && ctx.Err() == nil {
		return res, fmt.Errorf("read points: %w", err)
	}

	r.log.Info("[Scheduler] Batch run complete",
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"cancelled", ctx.Err() != nil,
	)
	return res, nil
}

// RunRealtime processes points from feed until it closes or ctx ends.
func (p *Processor) RunRealtime(ctx context.Context, feed <-chan Point) (Result, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	r := p.start(ctx, Request{Realtime: true})
	r.log.Info("[Scheduler] Starting realtime run", "workers", len(p.workers))

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case pt, ok := <-feed:
			if !ok {
				break loop
			}
			r.dispatch(pt)
		}
	}

	res := r.finish()
	r.log.Info("[Scheduler] Realtime run stopped",
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"skipped", res.Skipped,
	)
	return res, nil
}

type routed struct {
	twinID string
	value  timeseries.TimedValue
}

// run is the state of one RunBatch or RunRealtime call.
type run struct {
	p       *Processor
	ctx     context.Context
	req     Request
	log     *slog.Logger
	queues  []chan routed
	results []Result
	skipped int // counted by the dispatcher
	wg      sync.WaitGroup
}

func (p *Processor) start(ctx context.Context, req Request) *run {
	r := &run{
		p:       p,
		ctx:     ctx,
		req:     req,
		log:     slog.Default().With("run", uuid.NewString()),
		queues:  make([]chan routed, len(p.workers)),
		results: make([]Result, len(p.workers)),
	}
	for w := range p.workers {
		r.queues[w] = make(chan routed, p.opts.QueueSize)
		r.wg.Add(1)
		go r.work(w)
	}
	return r
}

func (r *run) dispatch(pt Point) {
	twinID, ok := r.p.mgr.ResolveTwinID(pt.TwinID, pt.TrendID, pt.ExternalID, pt.ConnectorID)
	if ok {
		_, ok = r.p.mgr.TryGetByTwinID(twinID)
	}
	if !ok {
		r.skipped++
		r.p.metrics.point("unknown_twin")
		return
	}

	w := r.p.groups.Worker(twinID, len(r.queues))
	select {
	case r.queues[w] <- routed{twinID: twinID, value: pt.TimedValue()}:
	case <-r.ctx.Done():
		r.skipped++
		r.p.metrics.point("cancelled")
	}
}

func (r *run) finish() Result {
	for _, q := range r.queues {
		close(q)
	}
	r.wg.Wait()

	res := Result{Skipped: r.skipped}
	for _, wr := range r.results {
		res.Add(wr)
	}
	r.p.metrics.setActors(r.p.store.Len())
	return res
}

func (r *run) work(w int) {
	defer r.wg.Done()
	wk := r.p.workers[w]
	res := &r.results[w]
	for m := range r.queues[w] {
		if r.ctx.Err() != nil {
			res.Skipped++
			r.p.metrics.point("cancelled")
			continue
		}
		r.process(wk, res, m)
	}
}

// cascade tracks one point through the instances it reaches.
type cascade struct {
	fired     map[string]bool
	triggered int
}

func (r *run) process(wk *worker, res *Result, m routed) {
	if !m.value.Valid() {
		res.Skipped++
		r.p.metrics.point("rejected")
		return
	}
	r.p.mgr.AddPoint(m.twinID, m.value)
	wk.twins[m.twinID] = struct{}{}

	if len(r.consumers(m.twinID)) == 0 {
		res.Skipped++
		r.p.metrics.point("no_dependents")
		return
	}

	now := m.value.Timestamp
	c := &cascade{fired: make(map[string]bool)}
	ok := r.cascade(wk, c, m.twinID, now, 0)

	for id := range c.fired {
		if st, exists := wk.actors[id]; exists {
			r.p.store.Put(st.Clone())
		}
	}
	r.applyLimits(wk, now)

	switch {
	case c.triggered == 0 && r.ctx.Err() != nil:
		res.Skipped++
		r.p.metrics.point("cancelled")
	case ok:
		res.Succeeded++
		r.p.metrics.point("succeeded")
	default:
		res.Failed++
		r.p.metrics.point("failed")
	}
}

// consumers lists the instances reading twinID that take part in this run.
func (r *run) consumers(twinID string) []*rules.RuleInstance {
	all := r.p.consumers[twinID]
	if r.req.RuleID == "" {
		return all
	}
	var out []*rules.RuleInstance
	for _, ri := range all {
		if ri.RuleID == r.req.RuleID || ri.IsCalculatedPoint() {
			out = append(out, ri)
		}
	}
	return out
}

// cascade triggers the consumers of twinID at now. A calculated point that
// produces a value publishes it on its output twin and recurses into that
// twin's consumers. It reports whether every trigger succeeded.
func (r *run) cascade(wk *worker, c *cascade, twinID string, now time.Time, depth int) bool {
	if depth > maxCascadeDepth {
		r.logError("[Scheduler] Calculated point chain too deep", "twin", twinID, "depth", depth)
		return false
	}
	ok := true
	for _, ri := range r.consumers(twinID) {
		if r.ctx.Err() != nil {
			return ok
		}
		if c.fired[ri.ID] {
			continue
		}
		c.fired[ri.ID] = true
		if !r.trigger(wk, ri, now) {
			ok = false
			continue
		}
		c.triggered++

		if ri.OutputTwinID == "" {
			continue
		}
		tv, produced := templates.CalculatedValue(wk.actors[ri.ID], now)
		if !produced {
			continue
		}
		r.p.mgr.AddPoint(ri.OutputTwinID, tv)
		wk.twins[ri.OutputTwinID] = struct{}{}
		if !r.cascade(wk, c, ri.OutputTwinID, now, depth+1) {
			ok = false
		}
	}
	return ok
}

func (r *run) trigger(wk *worker, ri *rules.RuleInstance, now time.Time) bool {
	tmpl, ok := templates.Get(ri.TemplateID)
	if !ok {
		r.p.metrics.trigger(ri.TemplateID, "unknown_template", 0)
		r.logError("[Scheduler] Unknown template", "instance", ri.ID, "template", ri.TemplateID)
		return false
	}

	st := wk.actor(ri)
	switch {
	case st.NeedsReset(now):
		r.log.Info("[Scheduler] Time moved back past actor history, resetting", "instance", ri.ID, "at", now)
		st.Reset()
	case now.Before(st.Timestamp):
		st.RemoveValuesAfter(now)
	}

	env := expression.NewEnv(templates.PointLookup(r.p.mgr, now))
	started := time.Now()
	err := tmpl.Trigger(r.ctx, now, env, ri, st, r.p.mgr, r.log)
	elapsed := time.Since(started).Seconds()

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.p.metrics.trigger(ri.TemplateID, "cancelled", elapsed)
			return true
		}
		r.p.metrics.trigger(ri.TemplateID, "error", elapsed)
		r.logError("[Scheduler] Trigger failed", "instance", ri.ID, "at", now, "error", err)
		return false
	}
	r.p.metrics.trigger(ri.TemplateID, "ok", elapsed)
	return true
}

// applyLimits trims the history of the worker's actors and series once per
// LimitsEvery of telemetry time.
func (r *run) applyLimits(wk *worker, now time.Time) {
	if wk.limitsAt.IsZero() {
		wk.limitsAt = now
		return
	}
	if now.Sub(wk.limitsAt) < r.p.opts.LimitsEvery {
		return
	}
	wk.limitsAt = now
	for _, st := range wk.actors {
		st.ApplyLimits(now, r.p.opts.MaxAge)
	}
	for id := range wk.twins {
		if ts, ok := r.p.mgr.TryGetByTwinID(id); ok {
			ts.ApplyLimits(now, r.p.opts.MaxAge)
		}
	}
}

// logError logs at most ten errors a second; the rest are only counted.
func (r *run) logError(msg string, args ...any) {
	if r.p.errLog.Allow() {
		r.log.Error(msg, args...)
		return
	}
	r.p.metrics.suppressed()
}
