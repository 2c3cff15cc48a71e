package execution

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	in := `timestamp, trend_id, value
2026-03-01T00:10:00Z, t1, true
2026-03-01T00:00:00Z, t1, 21.5
2026-03-01T00:05:00Z, t2, off
2026-03-01T00:07:00Z, t2,
`
	points, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, points, 4)

	assert.Equal(t, at(0), points[0].Timestamp)
	assert.Equal(t, 21.5, points[0].Value)
	assert.Equal(t, "t1", points[0].TrendID)

	assert.Equal(t, "off", points[1].Text)
	assert.False(t, points[2].TimedValue().Valid(), "empty value is rejected downstream")

	assert.True(t, points[3].IsBool)
	assert.Equal(t, 1.0, points[3].TimedValue().Value)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no value column", "timestamp,twin_id\n", `missing "value" column`},
		{"no id column", "timestamp,value\n", "missing an id column"},
		{"bad timestamp", "timestamp,twin_id,value\nyesterday,a,1\n", "line 2: timestamp"},
		{"empty", "", "read header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCSVPoints_MissingFile(t *testing.T) {
	err := CSVPoints{Path: "testdata/nope.csv"}.Points(context.Background(), time.Time{}, time.Time{}, func(Point) error { return nil })
	assert.Error(t, err)
}
