package timeseries

import (
	"sort"
	"sync"
	"time"

	"github.com/aevon-lab/rules-engine/internal/core/partition"
)

// ManagerOptions configures buffers created by a Manager.
type ManagerOptions struct {
	MaxCount         int
	Compression      float64
	ApplyCompression bool
}

type externalKey struct {
	externalID  string
	connectorID string
}

type shard struct {
	mu     sync.RWMutex
	byTwin map[string]*TimeSeries
}

// Manager owns every TimeSeries of one execution context, keyed by twin id with
// secondary indexes on trend id and (external id, connector id).
//
// The map is sharded and safe for concurrent use. Writes to a single series
// must come from one goroutine; the scheduler routes each twin to one worker.
type Manager struct {
	opts   ManagerOptions
	shards [partition.Count]*shard

	aliasMu    sync.RWMutex
	byTrend    map[string]string
	byExternal map[externalKey]string
}

// NewManager creates an empty registry.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		opts:       opts,
		byTrend:    make(map[string]string),
		byExternal: make(map[externalKey]string),
	}
	for i := range m.shards {
		m.shards[i] = &shard{byTwin: make(map[string]*TimeSeries)}
	}
	return m
}

func (m *Manager) shardFor(twinID string) *shard {
	return m.shards[partition.For(twinID)]
}

// Register creates or updates the series for meta.TwinID and indexes its aliases.
func (m *Manager) Register(meta Metadata) *TimeSeries {
	ts := m.GetOrAdd(meta.TwinID, meta.ConnectorID, meta.ExternalID)

	ts.mu.Lock()
	ts.Metadata = meta
	ts.mu.Unlock()

	if meta.TrendID != "" {
		m.aliasMu.Lock()
		m.byTrend[meta.TrendID] = meta.TwinID
		m.aliasMu.Unlock()
	}
	return ts
}

// GetOrAdd returns the series for twinID, creating it on first use.
func (m *Manager) GetOrAdd(twinID, connectorID, externalID string) *TimeSeries {
	s := m.shardFor(twinID)

	s.mu.RLock()
	ts, ok := s.byTwin[twinID]
	s.mu.RUnlock()
	if ok {
		return ts
	}

	s.mu.Lock()
	if ts, ok = s.byTwin[twinID]; !ok {
		ts = NewTimeSeries(Metadata{
			TwinID:      twinID,
			ConnectorID: connectorID,
			ExternalID:  externalID,
		}, m.opts.MaxCount, m.opts.Compression)
		s.byTwin[twinID] = ts
	}
	s.mu.Unlock()

	if externalID != "" {
		m.aliasMu.Lock()
		m.byExternal[externalKey{externalID: externalID, connectorID: connectorID}] = twinID
		m.aliasMu.Unlock()
	}
	return ts
}

// TryGetByTwinID looks a series up by twin id.
func (m *Manager) TryGetByTwinID(twinID string) (*TimeSeries, bool) {
	s := m.shardFor(twinID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.byTwin[twinID]
	return ts, ok
}

// ResolveTwinID maps any of the known identifiers of a point to its twin id.
func (m *Manager) ResolveTwinID(twinID, trendID, externalID, connectorID string) (string, bool) {
	if twinID != "" {
		return twinID, true
	}
	m.aliasMu.RLock()
	defer m.aliasMu.RUnlock()
	if trendID != "" {
		if id, ok := m.byTrend[trendID]; ok {
			return id, true
		}
	}
	if externalID != "" {
		if id, ok := m.byExternal[externalKey{externalID: externalID, connectorID: connectorID}]; ok {
			return id, true
		}
	}
	return "", false
}

// AddPoint stores v on the series of twinID.
func (m *Manager) AddPoint(twinID string, v TimedValue) bool {
	return m.GetOrAdd(twinID, "", "").AddPoint(v, m.opts.ApplyCompression)
}

// RemovePointsAfter truncates every series, used when a replay restarts at t.
func (m *Manager) RemovePointsAfter(t time.Time) {
	for _, ts := range m.All() {
		ts.RemovePointsAfter(t)
	}
}

// All returns every series ordered by twin id.
func (m *Manager) All() []*TimeSeries {
	var out []*TimeSeries
	for _, s := range m.shards {
		s.mu.RLock()
		for _, ts := range s.byTwin {
			out = append(out, ts)
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TwinID < out[j].TwinID })
	return out
}

// Len returns the number of series.
func (m *Manager) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.byTwin)
		s.mu.RUnlock()
	}
	return n
}
