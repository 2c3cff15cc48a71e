package timeseries

import (
	"strings"
	"sync"
	"time"
)

// Status is a set of data quality flags for a time series.
type Status uint8

const (
	StatusOffline Status = 1 << iota
	StatusStuck
	StatusValueOutOfRange
	StatusPeriodOutOfRange
	StatusNoTwin
)

// Healthy is the zero status.
const Healthy Status = 0

const (
	offlineAfter       = 7 * 24 * time.Hour
	offlineIntervals   = 10
	stuckAfter         = 24 * time.Hour
	periodLowerFactor  = 0.1
	periodUpperFactor  = 1.9
	periodProcessNoise = 0.01
	periodMeasureNoise = 0.25
)

// Has reports whether flag is set.
func (s Status) Has(flag Status) bool {
	return s&flag != 0
}

func (s Status) String() string {
	if s == Healthy {
		return "ok"
	}
	var parts []string
	for _, f := range []struct {
		flag Status
		name string
	}{
		{StatusOffline, "offline"},
		{StatusStuck, "stuck"},
		{StatusValueOutOfRange, "value_out_of_range"},
		{StatusPeriodOutOfRange, "period_out_of_range"},
		{StatusNoTwin, "no_twin"},
	} {
		if s.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Metadata describes where a series comes from.
type Metadata struct {
	TwinID        string
	TrendID       string
	ExternalID    string
	ConnectorID   string
	ModelID       string
	Unit          string
	TrendInterval time.Duration
	ValueLow      *float64
	ValueHigh     *float64
}

// TimeSeries is the buffer of one telemetry point plus running statistics.
// It is written by one goroutine at a time and safe for concurrent readers.
type TimeSeries struct {
	mu sync.RWMutex

	Metadata

	EarliestSeen         time.Time
	LastSeen             time.Time
	TotalValuesProcessed int64
	EstimatedPeriod      time.Duration
	Min                  float64
	Max                  float64
	Total                float64
	Status               Status

	periodVariance float64
	numericCount   int64
	// sampleGap is the gap between the two newest samples received,
	// including ones folded away by compression.
	sampleGap time.Duration
	buffer    *Buffer
}

// NewTimeSeries creates an empty series.
func NewTimeSeries(meta Metadata, maxCount int, compression float64) *TimeSeries {
	return &TimeSeries{
		Metadata: meta,
		buffer:   NewBuffer(maxCount, compression),
	}
}

// ID is the trend id when known, else the twin id.
func (ts *TimeSeries) ID() string {
	if ts.TrendID != "" {
		return ts.TrendID
	}
	return ts.TwinID
}

// AddPoint stores v and updates statistics. Statistics count every received
// sample, including ones folded away by compression.
func (ts *TimeSeries) AddPoint(v TimedValue, applyCompression bool) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !v.Valid() {
		return false
	}

	if !ts.LastSeen.IsZero() && v.Timestamp.After(ts.LastSeen) {
		ts.sampleGap = v.Timestamp.Sub(ts.LastSeen)
		ts.updatePeriod(ts.sampleGap)
	}

	if ts.EarliestSeen.IsZero() || v.Timestamp.Before(ts.EarliestSeen) {
		ts.EarliestSeen = v.Timestamp
	}
	if v.Timestamp.After(ts.LastSeen) {
		ts.LastSeen = v.Timestamp
	}

	ts.TotalValuesProcessed++
	if v.IsNumeric() {
		if ts.numericCount == 0 || v.Value < ts.Min {
			ts.Min = v.Value
		}
		if ts.numericCount == 0 || v.Value > ts.Max {
			ts.Max = v.Value
		}
		ts.Total += v.Value
		ts.numericCount++

		if (ts.ValueLow != nil && v.Value < *ts.ValueLow) || (ts.ValueHigh != nil && v.Value > *ts.ValueHigh) {
			ts.Status |= StatusValueOutOfRange
		} else {
			ts.Status &^= StatusValueOutOfRange
		}
	}

	return ts.buffer.AddPoint(v, applyCompression)
}

// updatePeriod runs one step of a scalar Kalman filter over sample gaps.
func (ts *TimeSeries) updatePeriod(gap time.Duration) {
	if ts.EstimatedPeriod == 0 {
		ts.EstimatedPeriod = gap
		ts.periodVariance = 1
		return
	}
	p := ts.periodVariance + periodProcessNoise
	k := p / (p + periodMeasureNoise)
	est := float64(ts.EstimatedPeriod) + k*float64(gap-ts.EstimatedPeriod)
	ts.EstimatedPeriod = time.Duration(est)
	ts.periodVariance = (1 - k) * p
}

// Average of all numeric samples seen.
func (ts *TimeSeries) Average() float64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if ts.numericCount == 0 {
		return 0
	}
	return ts.Total / float64(ts.numericCount)
}

func (ts *TimeSeries) isOffline(now time.Time) bool {
	if ts.LastSeen.IsZero() {
		return true
	}
	silence := now.Sub(ts.LastSeen)
	if silence > offlineAfter {
		return true
	}
	return ts.TrendInterval > 0 && silence > offlineIntervals*ts.TrendInterval
}

func (ts *TimeSeries) isPeriodOutOfRange() bool {
	if ts.TrendInterval <= 0 || ts.EstimatedPeriod <= 0 {
		return false
	}
	ratio := float64(ts.EstimatedPeriod) / float64(ts.TrendInterval)
	return ratio < periodLowerFactor || ratio > periodUpperFactor
}

// UpdateStatus recomputes the time dependent flags and returns the result.
func (ts *TimeSeries) UpdateStatus(now time.Time) Status {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	status := ts.Status & StatusValueOutOfRange
	if ts.isOffline(now) {
		status |= StatusOffline
	}
	if ts.isPeriodOutOfRange() {
		status |= StatusPeriodOutOfRange
	}
	if last, ok := ts.buffer.Last(); ok && ts.LastSeen.Sub(last.Timestamp) > stuckAfter {
		status |= StatusStuck
	}
	if ts.TwinID == "" {
		status |= StatusNoTwin
	}
	ts.Status = status
	return status
}

// IsTimely reports whether the series reports often enough to be trusted at
// now. Text series are event based and always timely; so is a series with no
// trend interval. Otherwise the newest sample must be no older than three
// periods, where the period is the larger of the trend interval and the
// estimated period, and the last gap between samples must be within the same
// limit.
func (ts *TimeSeries) IsTimely(now time.Time) bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	last, ok := ts.buffer.ValueAt(now)
	if !ok {
		return false
	}
	if last.Text != "" || ts.TrendInterval <= 0 {
		return true
	}

	limit := 3 * max(ts.EstimatedPeriod, ts.TrendInterval)
	ref, gap := last.Timestamp, time.Duration(0)
	// samples after now belong to a later trigger; judge by the stored point
	if !ts.LastSeen.After(now) {
		ref, gap = ts.LastSeen, ts.sampleGap
	}
	if now.Sub(ref) > limit {
		return false
	}
	return gap <= limit
}

// Age is how long before now the series last reported, counting samples
// folded away by compression.
func (ts *TimeSeries) Age(now time.Time) (time.Duration, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	last, ok := ts.buffer.ValueAt(now)
	if !ok {
		return 0, false
	}
	ref := last.Timestamp
	if ts.LastSeen.After(ref) && !ts.LastSeen.After(now) {
		ref = ts.LastSeen
	}
	return now.Sub(ref), true
}

// Last returns the newest stored point.
func (ts *TimeSeries) Last() (TimedValue, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.buffer.Last()
}

// ValueAt returns the point in effect at t.
func (ts *TimeSeries) ValueAt(t time.Time) (TimedValue, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.buffer.ValueAt(t)
}

// Window returns the points in [start, end] preceded by the point in effect
// at start, and the timestamp of the oldest stored point.
func (ts *TimeSeries) Window(start, end time.Time) ([]TimedValue, time.Time) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.buffer.Window(start, end)
}

// Recent returns up to n points at or before t, oldest first.
func (ts *TimeSeries) Recent(t time.Time, n int) []TimedValue {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.buffer.Recent(t, n)
}

// Seen returns the earliest and latest sample times received, including
// samples folded away by compression.
func (ts *TimeSeries) Seen() (earliest, latest time.Time) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.EarliestSeen, ts.LastSeen
}

// Count returns the number of stored points.
func (ts *TimeSeries) Count() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.buffer.Count()
}

// LastGap is the gap before the newest stored point.
func (ts *TimeSeries) LastGap() time.Duration {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.buffer.LastGap
}

// Snapshot returns a copy of the buffer.
func (ts *TimeSeries) Snapshot() *Buffer {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.buffer.Clone()
}

// RemovePointsAfter truncates the buffer, used before replaying from t.
func (ts *TimeSeries) RemovePointsAfter(t time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.buffer.RemovePointsAfter(t)
	if last, ok := ts.buffer.Last(); ok {
		ts.LastSeen = last.Timestamp
	} else {
		ts.LastSeen = time.Time{}
		ts.EarliestSeen = time.Time{}
	}
}

// ApplyLimits bounds the buffer by age and count.
func (ts *TimeSeries) ApplyLimits(now time.Time, maxAge time.Duration) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.buffer.ApplyLimits(now, maxAge, ts.buffer.MaxCount)
}

// Stats is a consistent copy of the running statistics.
type Stats struct {
	EarliestSeen         time.Time     `json:"earliest_seen"`
	LastSeen             time.Time     `json:"last_seen"`
	TotalValuesProcessed int64         `json:"total_values_processed"`
	EstimatedPeriod      time.Duration `json:"estimated_period"`
	Min                  float64       `json:"min"`
	Max                  float64       `json:"max"`
	Average              float64       `json:"average"`
	Status               string        `json:"status"`
	Count                int           `json:"count"`
}

// Stats returns the statistics under the read lock.
func (ts *TimeSeries) Stats() Stats {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	s := Stats{
		EarliestSeen:         ts.EarliestSeen,
		LastSeen:             ts.LastSeen,
		TotalValuesProcessed: ts.TotalValuesProcessed,
		EstimatedPeriod:      ts.EstimatedPeriod,
		Min:                  ts.Min,
		Max:                  ts.Max,
		Status:               ts.Status.String(),
		Count:                ts.buffer.Count(),
	}
	if ts.numericCount > 0 {
		s.Average = ts.Total / float64(ts.numericCount)
	}
	return s
}
