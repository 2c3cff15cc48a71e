// Package execution feeds telemetry through the time series manager and
// triggers the rule instances that depend on each point.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
	"github.com/aevon-lab/rules-engine/internal/core/timeseries"
)

// Request scopes one run. An empty RuleID runs every rule; calculated
// points always run because other rules read them.
type Request struct {
	RuleID   string
	Start    time.Time
	End      time.Time
	Realtime bool
}

// Validate checks the batch window.
func (r Request) Validate() error {
	if r.Realtime {
		return nil
	}
	if !r.Start.IsZero() && !r.End.IsZero() && !r.End.After(r.Start) {
		return fmt.Errorf("end %s must be after start %s", r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return nil
}

// Result counts points by outcome.
type Result struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Add merges o into r.
func (r *Result) Add(o Result) {
	r.Succeeded += o.Succeeded
	r.Failed += o.Failed
	r.Skipped += o.Skipped
}

// Total is the number of points counted.
func (r Result) Total() int { return r.Succeeded + r.Failed + r.Skipped }

// Point is one telemetry sample. Any of the identifiers may be used; the
// twin id wins when present.
type Point struct {
	TwinID      string    `json:"twin_id,omitempty"`
	TrendID     string    `json:"trend_id,omitempty"`
	ExternalID  string    `json:"external_id,omitempty"`
	ConnectorID string    `json:"connector_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Value       float64   `json:"value"`
	IsBool      bool      `json:"is_bool,omitempty"`
	Text        string    `json:"text,omitempty"`
}

// TimedValue converts the payload.
func (p Point) TimedValue() timeseries.TimedValue {
	switch {
	case p.Text != "":
		return timeseries.Text(p.Timestamp, p.Text)
	case p.IsBool:
		return timeseries.Bool(p.Timestamp, p.Value != 0)
	default:
		return timeseries.Number(p.Timestamp, p.Value)
	}
}

// PointSource streams stored telemetry in timestamp order. fn returning an
// error stops the stream with that error.
type PointSource interface {
	Points(ctx context.Context, start, end time.Time, fn func(Point) error) error
}

// OutputSink persists actor state.
type OutputSink interface {
	Flush(ctx context.Context, actors []*actor.State) error
}

// Ranker orders rule instances so producers run before consumers.
type Ranker interface {
	Rank(id string) int
}

// SlicePoints is an in-memory PointSource. Points must be sorted.
type SlicePoints []Point

func (s SlicePoints) Points(ctx context.Context, start, end time.Time, fn func(Point) error) error {
	for _, p := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !inWindow(p.Timestamp, start, end) {
			continue
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// inWindow is [start, end) with zero bounds open.
func inWindow(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && !t.Before(end) {
		return false
	}
	return true
}
