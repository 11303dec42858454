package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/appointment-engine/pkg/logger"
)

// Cleaner removes published events older than a retention window.
type Cleaner interface {
	CleanupProcessedEvents(ctx context.Context, retention time.Duration) (int64, error)
}

type OutboxCleanupWorker struct {
	cleaner   Cleaner
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
}

func NewOutboxCleanupWorker(cleaner Cleaner, retention, interval time.Duration, logger *logger.Logger) *OutboxCleanupWorker {
	return &OutboxCleanupWorker{
		cleaner:   cleaner,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	if w.retention <= 0 || w.interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.cleaner.CleanupProcessedEvents(ctx, w.retention); err != nil {
				w.logger.Error(err, "Failed to clean up outbox events")
			}
		}
	}
}
