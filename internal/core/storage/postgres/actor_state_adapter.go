package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
)

// farFuture stands in for an open range end.
var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// ActorStateAdapter implements storage.ActorStore using PostgreSQL. A flush
// writes the snapshots and the output intervals of a batch in one
// transaction.
type ActorStateAdapter struct {
	db *sql.DB
}

// NewActorStateAdapter creates an adapter sharing the given connection.
func NewActorStateAdapter(db *sql.DB) *ActorStateAdapter {
	return &ActorStateAdapter{db: db}
}

// Flush upserts actor snapshots and replaces their output intervals from
// the oldest one the snapshot still holds. Snapshots older than the stored
// version are skipped.
func (a *ActorStateAdapter) Flush(ctx context.Context, actors []*actor.State) error {
	if len(actors) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("actor flush: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	upsertStmt, err := tx.PrepareContext(ctx, queryUpsertActorState)
	if err != nil {
		return fmt.Errorf("actor flush: prepare upsert: %w", err)
	}
	defer upsertStmt.Close()

	deleteStmt, err := tx.PrepareContext(ctx, queryDeleteOutputValuesFrom)
	if err != nil {
		return fmt.Errorf("actor flush: prepare delete: %w", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, queryInsertOutputValue)
	if err != nil {
		return fmt.Errorf("actor flush: prepare insert: %w", err)
	}
	defer insertStmt.Close()

	updatedAt := time.Now().UTC()
	written := 0
	for _, st := range actors {
		snapshot, err := encodeSnapshot(st)
		if err != nil {
			return fmt.Errorf("actor flush: %w", err)
		}
		last, _ := st.OutputValues.Last()

		result, err := upsertStmt.ExecContext(ctx,
			st.ID,
			st.RuleID,
			st.Version,
			last.IsValid,
			last.Faulted,
			st.TriggerCount,
			st.Timestamp,
			snapshot,
			updatedAt,
		)
		if err != nil {
			return fmt.Errorf("actor flush: upsert %s: %w", st.ID, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("actor flush: check upsert %s: %w", st.ID, err)
		}
		if rows == 0 {
			slog.Warn("[ActorStateAdapter] Skipping stale snapshot", "actor", st.ID, "version", st.Version)
			continue
		}

		if len(st.OutputValues.Points) > 0 {
			from := st.OutputValues.Points[0].StartTime
			if _, err := deleteStmt.ExecContext(ctx, st.ID, from); err != nil {
				return fmt.Errorf("actor flush: clear output values %s: %w", st.ID, err)
			}
			for _, ov := range st.OutputValues.Points {
				if _, err := insertStmt.ExecContext(ctx,
					outputValueID(st.ID, ov.StartTime),
					st.ID,
					ov.StartTime,
					ov.EndTime,
					ov.IsValid,
					ov.Faulted,
					ov.Text,
					ov.TriggerCount,
				); err != nil {
					return fmt.Errorf("actor flush: insert output value %s@%s: %w", st.ID, ov.StartTime.Format(time.RFC3339), err)
				}
			}
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("actor flush: commit: %w", err)
	}

	slog.Info("[ActorStateAdapter] Flushed",
		"actors", len(actors),
		"written", written,
	)
	return nil
}

// outputValueID derives a stable id for an interval so rewrites of the
// same interval keep their id.
func outputValueID(actorID string, start time.Time) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(actorID+"|"+start.UTC().Format(time.RFC3339Nano)))
}

// LoadActors reads every persisted snapshot.
func (a *ActorStateAdapter) LoadActors(ctx context.Context) ([]*actor.State, error) {
	rows, err := a.db.QueryContext(ctx, queryLoadActorStates)
	if err != nil {
		return nil, fmt.Errorf("load actors: %w", err)
	}
	defer rows.Close()

	var out []*actor.State
	for rows.Next() {
		st, err := scanActorRow(rows)
		if err != nil {
			return nil, fmt.Errorf("load actors: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load actors: iterate rows: %w", err)
	}

	slog.Info("[ActorStateAdapter] Loaded actors from database", "count", len(out))
	return out, nil
}

func scanActorRow(row scanner) (*actor.State, error) {
	var id string
	var snapshot []byte
	if err := row.Scan(&id, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to scan actor row: %w", err)
	}
	st, err := decodeSnapshot(snapshot)
	if err != nil {
		return nil, fmt.Errorf("actor %s: %w", id, err)
	}
	if st.ID == "" {
		st.ID = id
	}
	return st, nil
}

// OutputValues returns the persisted intervals of actorID overlapping
// [start, end). A zero end is open.
func (a *ActorStateAdapter) OutputValues(ctx context.Context, actorID string, start, end time.Time) ([]actor.OutputValue, error) {
	if end.IsZero() {
		end = farFuture
	}
	rows, err := a.db.QueryContext(ctx, queryRangeOutputValues, actorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query output values: %w", err)
	}
	defer rows.Close()

	var out []actor.OutputValue
	for rows.Next() {
		var ov actor.OutputValue
		if err := rows.Scan(&ov.StartTime, &ov.EndTime, &ov.IsValid, &ov.Faulted, &ov.Text, &ov.TriggerCount); err != nil {
			return nil, fmt.Errorf("scan output value: %w", err)
		}
		out = append(out, ov)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate output values: %w", err)
	}
	return out, nil
}
