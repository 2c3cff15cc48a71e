package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultFlushBatchSize = 500
	maxConsecutiveFlushes = 100
)

// FlushScheduler periodically writes changed actors to an OutputSink. It is
// stateless apart from the store's flushed versions: each tick sends
// whatever moved since the last successful flush.
type FlushScheduler struct {
	interval  time.Duration
	store     *Store
	sink      OutputSink
	batchSize int
	metrics   *Metrics
}

// NewFlushScheduler creates a scheduler flushing up to batchSize actors per
// sink call.
func NewFlushScheduler(interval time.Duration, store *Store, sink OutputSink, batchSize int, metrics *Metrics) *FlushScheduler {
	if batchSize <= 0 {
		batchSize = defaultFlushBatchSize
	}
	return &FlushScheduler{
		interval:  interval,
		store:     store,
		sink:      sink,
		batchSize: batchSize,
		metrics:   metrics,
	}
}

// Start flushes every interval until ctx is cancelled, then runs a final
// drain with its own timeout.
func (s *FlushScheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[FlushScheduler] Starting actor flush scheduler",
		"interval", s.interval,
		"batch_size", s.batchSize,
	)

	s.drainBacklog(ctx)

	for {
		select {
		case <-ticker.C:
			s.drainBacklog(ctx)
		case <-ctx.Done():
			slog.Info("[FlushScheduler] Stopping (context cancelled)")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			slog.Info("[FlushScheduler] Running final flush before shutdown...")
			s.drainBacklog(shutdownCtx)
			slog.Info("[FlushScheduler] Final flush complete")

			return nil
		}
	}
}

// FlushOnce writes one batch of changed actors and returns how many were
// written.
func (s *FlushScheduler) FlushOnce(ctx context.Context) (int, error) {
	pending := s.store.Pending(s.batchSize)
	if len(pending) == 0 {
		return 0, nil
	}
	if err := s.sink.Flush(ctx, pending); err != nil {
		s.metrics.flushed("error", len(pending))
		return 0, fmt.Errorf("flush %d actors: %w", len(pending), err)
	}
	s.store.MarkFlushed(pending)
	s.metrics.flushed("ok", len(pending))
	return len(pending), nil
}

func (s *FlushScheduler) drainBacklog(ctx context.Context) {
	batchCount := 0

	for batchCount < maxConsecutiveFlushes {
		select {
		case <-ctx.Done():
			slog.Info("[FlushScheduler] Drain interrupted by context cancellation",
				"batches_processed", batchCount,
			)
			return
		default:
		}

		flushed, err := s.FlushOnce(ctx)
		if err != nil {
			slog.Error("[FlushScheduler] Flush failed",
				"error", err,
				"batch_number", batchCount+1,
			)
			return
		}

		batchCount++

		if flushed < s.batchSize {
			if batchCount > 1 {
				slog.Info("[FlushScheduler] Backlog flushed", "total_batches", batchCount)
			}
			return
		}

		slog.Debug("[FlushScheduler] Backlog detected, continuing to flush", "batches_so_far", batchCount)
	}

	slog.Warn("[FlushScheduler] Max consecutive batches reached, pausing flush",
		"max_batches", maxConsecutiveFlushes,
		"note", "Will resume on next tick",
	)
}
