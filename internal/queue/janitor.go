package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often the janitor runs when no interval is
// configured.
const DefaultCleanupInterval = time.Hour

// Janitor periodically runs CleanupOldJobs on a queue. It is an explicit
// object with a start/stop lifecycle owned by the composing application,
// never an import-time global.
type Janitor struct {
	queue    *Queue
	logger   *slog.Logger
	interval time.Duration

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewJanitor creates a janitor that cleans the queue every interval.
func NewJanitor(queue *Queue, logger *slog.Logger, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	return &Janitor{
		queue:    queue,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start launches the cleanup loop in a goroutine. It runs until Stop is
// called or ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info("Starting queue janitor",
		slog.Duration("interval", j.interval),
	)

	go func() {
		defer close(j.doneChan)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				j.logger.Info("Queue janitor stopped - context canceled")
				return

			case <-j.stopChan:
				j.logger.Info("Queue janitor stopped")
				return

			case <-ticker.C:
				if _, err := j.queue.CleanupOldJobs(ctx); err != nil {
					j.logger.Error("Queue cleanup failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}()
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopChan)
	})
	<-j.doneChan
}
