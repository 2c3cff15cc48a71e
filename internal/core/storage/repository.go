// Package storage defines the persistence ports of the engine.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
	"github.com/aevon-lab/rules-engine/internal/execution"
)

// ErrDuplicate is returned when every point of a write already exists.
var ErrDuplicate = errors.New("telemetry already exists")

// TelemetryStore keeps raw telemetry so batch runs can replay it.
type TelemetryStore interface {
	// SavePoints stores points, ignoring ones already present, and returns
	// how many were new.
	SavePoints(ctx context.Context, points []execution.Point) (int, error)

	// Points streams stored telemetry in [start, end) in timestamp order.
	execution.PointSource
}

// ActorStore persists actor state and its output history.
type ActorStore interface {
	execution.OutputSink

	// LoadActors returns the last flushed state of every actor.
	LoadActors(ctx context.Context) ([]*actor.State, error)

	// OutputValues returns the persisted intervals of an actor overlapping
	// [start, end), oldest first.
	OutputValues(ctx context.Context, actorID string, start, end time.Time) ([]actor.OutputValue, error)
}
