package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/aevon-lab/rules-engine/internal/core/storage"
	"github.com/aevon-lab/rules-engine/internal/execution"
)

const defaultPageSize = 5000

// farPast stands in for an open range start.
var farPast = time.Unix(0, 0).UTC()

// TelemetryAdapter implements storage.TelemetryStore using PostgreSQL.
type TelemetryAdapter struct {
	db       *sql.DB
	pageSize int
}

// NewTelemetryAdapter creates an adapter reading replays in pages of
// pageSize rows.
func NewTelemetryAdapter(db *sql.DB, pageSize int) *TelemetryAdapter {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &TelemetryAdapter{db: db, pageSize: pageSize}
}

// SavePoints inserts points in one transaction. Points already stored are
// ignored; storage.ErrDuplicate is returned when none were new.
func (a *TelemetryAdapter) SavePoints(ctx context.Context, points []execution.Point) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("save telemetry: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, querySavePoint)
	if err != nil {
		return 0, fmt.Errorf("save telemetry: prepare insert: %w", err)
	}
	defer stmt.Close()

	var saved int64
	for _, p := range points {
		result, err := stmt.ExecContext(ctx,
			p.TwinID,
			p.TrendID,
			p.ExternalID,
			p.ConnectorID,
			p.Timestamp.UTC(),
			p.Value,
			p.IsBool,
			p.Text,
		)
		if err != nil {
			return 0, fmt.Errorf("save telemetry: insert: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("save telemetry: check insert: %w", err)
		}
		saved += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("save telemetry: commit: %w", err)
	}
	if saved == 0 {
		return 0, storage.ErrDuplicate
	}

	slog.Debug("[TelemetryAdapter] Saved points", "received", len(points), "saved", saved)
	return int(saved), nil
}

// Points streams telemetry in [start, end) ordered by timestamp, one keyset
// page at a time. Zero bounds are open.
func (a *TelemetryAdapter) Points(ctx context.Context, start, end time.Time, fn func(execution.Point) error) error {
	if start.IsZero() {
		start = farPast
	}
	if end.IsZero() {
		end = farFuture
	}

	cursorTS, cursorID := start, int64(0)
	for {
		page, lastID, err := a.page(ctx, start, end, cursorTS, cursorID)
		if err != nil {
			return err
		}
		for _, p := range page {
			if err := fn(p); err != nil {
				return err
			}
		}
		if len(page) < a.pageSize {
			return nil
		}
		cursorTS, cursorID = page[len(page)-1].Timestamp, lastID
	}
}

func (a *TelemetryAdapter) page(ctx context.Context, start, end, cursorTS time.Time, cursorID int64) ([]execution.Point, int64, error) {
	rows, err := a.db.QueryContext(ctx, queryPointsPage, start, end, cursorTS, cursorID, a.pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query telemetry: %w", err)
	}
	defer rows.Close()

	var (
		out    []execution.Point
		lastID int64
	)
	for rows.Next() {
		p, id, err := scanPointRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
		lastID = id
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating telemetry: %w", err)
	}
	return out, lastID, nil
}

func scanPointRow(row scanner) (execution.Point, int64, error) {
	var p execution.Point
	var id int64
	if err := row.Scan(
		&id,
		&p.TwinID,
		&p.TrendID,
		&p.ExternalID,
		&p.ConnectorID,
		&p.Timestamp,
		&p.Value,
		&p.IsBool,
		&p.Text,
	); err != nil {
		return execution.Point{}, 0, fmt.Errorf("failed to scan telemetry row: %w", err)
	}
	return p, id, nil
}
