package projection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
	httperr "github.com/aevon-lab/rules-engine/internal/core/errors"
	"github.com/aevon-lab/rules-engine/internal/core/timeseries"
)

// ErrInvalidQuery marks request validation errors that should return HTTP 400.
var ErrInvalidQuery = errors.New("invalid query")

var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// ActorReader is the live actor view kept by the scheduler.
type ActorReader interface {
	List() []*actor.State
	Get(id string) (*actor.State, bool)
}

// SeriesReader looks up telemetry buffers.
type SeriesReader interface {
	TryGetByTwinID(twinID string) (*timeseries.TimeSeries, bool)
}

// HistoryReader serves output intervals already trimmed from live actors.
type HistoryReader interface {
	OutputValues(ctx context.Context, actorID string, start, end time.Time) ([]actor.OutputValue, error)
}

// Service implements the read side: live actors first, persisted history
// when a time range is asked for.
type Service struct {
	actors  ActorReader
	series  SeriesReader
	history HistoryReader
}

// NewService creates a new projection service. history may be nil.
func NewService(actors ActorReader, series SeriesReader, history HistoryReader) *Service {
	return &Service{actors: actors, series: series, history: history}
}

// ListActors returns summaries sorted by id.
func (s *Service) ListActors(req ActorListRequest) []ActorSummary {
	out := []ActorSummary{}
	for _, st := range s.actors.List() {
		if req.Rule != "" && st.RuleID != req.Rule {
			continue
		}
		summary := summarize(st)
		if req.Faulted != nil && summary.Faulted != *req.Faulted {
			continue
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// QueryActor returns one actor with its intervals in the requested range.
func (s *Service) QueryActor(ctx context.Context, req ActorQueryRequest) (*ActorResponse, error) {
	if !req.Start.IsZero() && !req.End.IsZero() && !req.End.After(req.Start) {
		return nil, invalidQueryf("end must be after start")
	}
	step, err := parseGranularity(req.Granularity)
	if err != nil {
		return nil, err
	}

	st, ok := s.actors.Get(req.ID)
	if !ok {
		return nil, fmt.Errorf("actor %s: %w", req.ID, httperr.ErrNotFound)
	}

	values, err := s.outputValues(ctx, st, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	resp := &ActorResponse{
		ActorSummary: summarize(st),
		Variables:    make(map[string]timeseries.TimedValue, len(st.TimedValues)),
		OutputValues: values,
	}
	for name, buf := range st.TimedValues {
		if last, ok := buf.Last(); ok {
			resp.Variables[name] = last
		}
	}

	if req.Granularity != "" {
		start, end := req.Start, req.End
		if start.IsZero() && len(values) > 0 {
			start = values[0].StartTime
		}
		if end.IsZero() {
			end = st.Timestamp
		}
		if step == 0 {
			resp.Buckets = []FaultBucket{summarizeWindow(values, start, end)}
		} else {
			resp.Buckets = rollup(values, start, end, step)
		}
	}
	return resp, nil
}

// outputValues prefers persisted history for ranged queries because live
// actors only keep the recent intervals.
func (s *Service) outputValues(ctx context.Context, st *actor.State, start, end time.Time) ([]actor.OutputValue, error) {
	if s.history != nil && !start.IsZero() {
		values, err := s.history.OutputValues(ctx, st.ID, start, end)
		if err != nil {
			return nil, fmt.Errorf("load output history: %w", err)
		}
		if len(values) > 0 {
			return values, nil
		}
	}
	values := st.OutputValues.Filter(start, end)
	if values == nil {
		values = []actor.OutputValue{}
	}
	return values, nil
}

// QuerySeries returns the buffered points of a twin in [start, end].
func (s *Service) QuerySeries(req SeriesQueryRequest) (*SeriesResponse, error) {
	if !req.Start.IsZero() && !req.End.IsZero() && req.End.Before(req.Start) {
		return nil, invalidQueryf("end must not be before start")
	}
	ts, ok := s.series.TryGetByTwinID(req.TwinID)
	if !ok {
		return nil, fmt.Errorf("time series %s: %w", req.TwinID, httperr.ErrNotFound)
	}

	end := req.End
	if end.IsZero() {
		end = farFuture
	}
	points := ts.Snapshot().GetRange(req.Start, end)
	if points == nil {
		points = []timeseries.TimedValue{}
	}

	return &SeriesResponse{
		TwinID:      ts.TwinID,
		TrendID:     ts.TrendID,
		ExternalID:  ts.ExternalID,
		ConnectorID: ts.ConnectorID,
		ModelID:     ts.ModelID,
		Unit:        ts.Unit,
		Stats:       ts.Stats(),
		Points:      points,
	}, nil
}

func summarize(st *actor.State) ActorSummary {
	last, _ := st.OutputValues.Last()
	return ActorSummary{
		ID:                st.ID,
		RuleID:            st.RuleID,
		Timestamp:         st.Timestamp,
		IsValid:           last.IsValid,
		Faulted:           last.IsValid && last.Faulted,
		Text:              last.Text,
		TriggerCount:      st.TriggerCount,
		LastChangedOutput: st.LastChangedOutput,
	}
}

func parseGranularity(g string) (time.Duration, error) {
	switch g {
	case "", "total":
		return 0, nil
	case "1h":
		return time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, invalidQueryf("unsupported granularity %q (want total, 1h or 1d)", g)
	}
}

func invalidQueryf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
