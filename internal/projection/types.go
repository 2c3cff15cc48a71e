package projection

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
	"github.com/aevon-lab/rules-engine/internal/core/timeseries"
)

// ActorListRequest filters GET /v1/actors.
type ActorListRequest struct {
	Rule    string `form:"rule"`
	Faulted *bool  `form:"faulted"`
}

// ActorQueryRequest represents the query parameters for one actor.
type ActorQueryRequest struct {
	ID          string    `uri:"id" binding:"required"`
	Start       time.Time `form:"start" time_format:"2006-01-02T15:04:05Z07:00"`
	End         time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
	Granularity string    `form:"granularity"` // empty, "total", "1h" or "1d"
}

// SeriesQueryRequest represents the query parameters for one time series.
type SeriesQueryRequest struct {
	TwinID string    `uri:"twin_id" binding:"required"`
	Start  time.Time `form:"start" time_format:"2006-01-02T15:04:05Z07:00"`
	End    time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ActorSummary is the list view of an actor.
type ActorSummary struct {
	ID                string    `json:"id"`
	RuleID            string    `json:"rule_id"`
	Timestamp         time.Time `json:"timestamp"`
	IsValid           bool      `json:"is_valid"`
	Faulted           bool      `json:"faulted"`
	Text              string    `json:"text"`
	TriggerCount      int64     `json:"trigger_count"`
	LastChangedOutput time.Time `json:"last_changed_output"`
}

// FaultBucket summarizes the output intervals falling in one window.
type FaultBucket struct {
	WindowStart    time.Time       `json:"window_start"`
	WindowEnd      time.Time       `json:"window_end"`
	FaultedSeconds decimal.Decimal `json:"faulted_seconds"`
	ValidSeconds   decimal.Decimal `json:"valid_seconds"`
	FaultedRatio   decimal.Decimal `json:"faulted_ratio"`
	Faults         int             `json:"faults"`
}

// ActorResponse is the detail view of an actor.
type ActorResponse struct {
	ActorSummary
	Variables    map[string]timeseries.TimedValue `json:"variables"`
	OutputValues []actor.OutputValue             `json:"output_values"`
	Buckets      []FaultBucket                   `json:"buckets,omitempty"`
}

// SeriesResponse is the view of one telemetry buffer.
type SeriesResponse struct {
	TwinID      string                  `json:"twin_id"`
	TrendID     string                  `json:"trend_id,omitempty"`
	ExternalID  string                  `json:"external_id,omitempty"`
	ConnectorID string                  `json:"connector_id,omitempty"`
	ModelID     string                  `json:"model_id,omitempty"`
	Unit        string                  `json:"unit,omitempty"`
	Stats       timeseries.Stats        `json:"stats"`
	Points      []timeseries.TimedValue `json:"points"`
}
