package v1

import (
	"fmt"
	"math"
	"time"

	"github.com/aevon-lab/rules-engine/internal/execution"
)

// MaxBatchPoints bounds one ingestion request.
const MaxBatchPoints = 10000

// TelemetryPoint is one sample as posted by a connector.
type TelemetryPoint struct {
	// At least one of the identifiers is required. The engine resolves
	// external and trend ids to a twin on arrival.
	TwinID      string `json:"twin_id,omitempty"`
	TrendID     string `json:"trend_id,omitempty"`
	ExternalID  string `json:"external_id,omitempty"`
	ConnectorID string `json:"connector_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// Value is a JSON number, bool or string.
	Value interface{} `json:"value"`
}

// TelemetryBatch is the POST /v1/telemetry body.
type TelemetryBatch struct {
	Points []TelemetryPoint `json:"points"`
}

// Validate checks the envelope of every point.
func (b *TelemetryBatch) Validate() error {
	if len(b.Points) == 0 {
		return fmt.Errorf("points is required")
	}
	if len(b.Points) > MaxBatchPoints {
		return fmt.Errorf("at most %d points per request, got %d", MaxBatchPoints, len(b.Points))
	}
	for i := range b.Points {
		if _, err := b.Points[i].ToPoint(); err != nil {
			return fmt.Errorf("points[%d]: %w", i, err)
		}
	}
	return nil
}

// ToPoint converts the sample to the engine representation.
func (p TelemetryPoint) ToPoint() (execution.Point, error) {
	if p.TwinID == "" && p.TrendID == "" && p.ExternalID == "" {
		return execution.Point{}, fmt.Errorf("one of twin_id, trend_id or external_id is required")
	}
	if p.Timestamp.IsZero() {
		return execution.Point{}, fmt.Errorf("timestamp is required")
	}

	out := execution.Point{
		TwinID:      p.TwinID,
		TrendID:     p.TrendID,
		ExternalID:  p.ExternalID,
		ConnectorID: p.ConnectorID,
		Timestamp:   p.Timestamp.UTC(),
	}
	switch v := p.Value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return execution.Point{}, fmt.Errorf("value must be finite")
		}
		out.Value = v
	case bool:
		out.IsBool = true
		if v {
			out.Value = 1
		}
	case string:
		if v == "" {
			return execution.Point{}, fmt.Errorf("value must not be empty")
		}
		out.Text = v
	case nil:
		return execution.Point{}, fmt.Errorf("value is required")
	default:
		return execution.Point{}, fmt.Errorf("value must be a number, bool or string")
	}
	return out, nil
}

// ToPoints converts a validated batch.
func (b *TelemetryBatch) ToPoints() []execution.Point {
	out := make([]execution.Point, 0, len(b.Points))
	for _, p := range b.Points {
		if pt, err := p.ToPoint(); err == nil {
			out = append(out, pt)
		}
	}
	return out
}
