package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/appointment-engine/pkg/logger"
)

type countingCleaner struct {
	calls     atomic.Int32
	retention atomic.Int64
}

func (c *countingCleaner) CleanupProcessedEvents(_ context.Context, retention time.Duration) (int64, error) {
	c.calls.Add(1)
	c.retention.Store(int64(retention))
	return 0, nil
}

func TestCleanupWorkerRunsOnInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cleaner := &countingCleaner{}
	w := NewOutboxCleanupWorker(cleaner, time.Hour, 5*time.Millisecond, logger.Nop())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(time.Hour), cleaner.retention.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop")
	}
}

func TestCleanupWorkerDisabledWithoutRetention(t *testing.T) {
	cleaner := &countingCleaner{}
	// Returns immediately instead of blocking on the ticker.
	NewOutboxCleanupWorker(cleaner, 0, time.Millisecond, logger.Nop()).Start(context.Background())
	assert.Zero(t, cleaner.calls.Load())
}
