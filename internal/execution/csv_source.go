package execution

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CSVPoints reads telemetry from a CSV file with a header row. Columns are
// matched by name: timestamp (RFC 3339), value, and any of twin_id,
// trend_id, external_id, connector_id. Rows are replayed in timestamp order.
type CSVPoints struct {
	Path string
}

func (c CSVPoints) Points(ctx context.Context, start, end time.Time, fn func(Point) error) error {
	f, err := os.Open(c.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.Path, err)
	}
	defer f.Close()

	points, err := ReadCSV(f)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Path, err)
	}
	return SlicePoints(points).Points(ctx, start, end, fn)
}

// ReadCSV parses CSV telemetry and sorts it by timestamp.
func ReadCSV(r io.Reader) ([]Point, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"timestamp", "value"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing %q column", required)
		}
	}
	if !hasAny(cols, "twin_id", "trend_id", "external_id") {
		return nil, errors.New("missing an id column (twin_id, trend_id or external_id)")
	}

	get := func(rec []string, name string) string {
		if i, ok := cols[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var points []Point
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ts, err := time.Parse(time.RFC3339, get(rec, "timestamp"))
		if err != nil {
			return nil, fmt.Errorf("line %d: timestamp: %w", line, err)
		}
		p := Point{
			TwinID:      get(rec, "twin_id"),
			TrendID:     get(rec, "trend_id"),
			ExternalID:  get(rec, "external_id"),
			ConnectorID: get(rec, "connector_id"),
			Timestamp:   ts,
		}
		setValue(&p, get(rec, "value"))
		points = append(points, p)
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points, nil
}

func setValue(p *Point, raw string) {
	switch {
	case raw == "":
		p.Value = math.NaN()
	case strings.EqualFold(raw, "true"):
		p.IsBool, p.Value = true, 1
	case strings.EqualFold(raw, "false"):
		p.IsBool = true
	default:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			p.Value = f
			return
		}
		p.Text = raw
	}
}

func hasAny(cols map[string]int, names ...string) bool {
	for _, n := range names {
		if _, ok := cols[n]; ok {
			return true
		}
	}
	return false
}
