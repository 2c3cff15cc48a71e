package v1

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTelemetryBatch_Validate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "number bool and text",
			body: `{"points":[
				{"twin_id":"a","timestamp":"2026-03-01T12:00:00Z","value":21.5},
				{"trend_id":"t","timestamp":"2026-03-01T12:00:00Z","value":true},
				{"external_id":"x","connector_id":"c","timestamp":"2026-03-01T12:00:00Z","value":"on"}
			]}`,
		},
		{name: "empty", body: `{"points":[]}`, wantErr: "points is required"},
		{
			name:    "missing identifier",
			body:    `{"points":[{"timestamp":"2026-03-01T12:00:00Z","value":1}]}`,
			wantErr: "points[0]: one of twin_id",
		},
		{
			name:    "missing timestamp",
			body:    `{"points":[{"twin_id":"a","value":1}]}`,
			wantErr: "timestamp is required",
		},
		{
			name:    "null value",
			body:    `{"points":[{"twin_id":"a","timestamp":"2026-03-01T12:00:00Z","value":null}]}`,
			wantErr: "value is required",
		},
		{
			name:    "object value",
			body:    `{"points":[{"twin_id":"a","timestamp":"2026-03-01T12:00:00Z","value":{"x":1}}]}`,
			wantErr: "value must be a number, bool or string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var batch TelemetryBatch
			require.NoError(t, json.Unmarshal([]byte(tt.body), &batch))

			err := batch.Validate()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			points := batch.ToPoints()
			require.Len(t, points, 3)
			require.Equal(t, 21.5, points[0].Value)
			require.True(t, points[1].IsBool)
			require.Equal(t, 1.0, points[1].Value)
			require.Equal(t, "on", points[2].Text)
			require.Equal(t, now, points[0].Timestamp)
		})
	}
}
