package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ccarella/pmai-jobs/internal/queue"
	"github.com/ccarella/pmai-jobs/shared/rabbitmq"
)

// DefaultPollInterval is how often the worker polls the queue when no nudge
// arrives.
const DefaultPollInterval = time.Second

// JobQueue is the slice of the queue facade the worker consumes.
type JobQueue interface {
	GetNextPendingJob(ctx context.Context) (*queue.Job, error)
	UpdateJobStatus(ctx context.Context, id, status string, result json.RawMessage, errMsg string) (*queue.Job, error)
	RetryJob(ctx context.Context, id string) (*queue.Job, error)
}

// Config holds worker configuration
type Config struct {
	Logger       *slog.Logger
	Queue        JobQueue
	RabbitClient *rabbitmq.Client // optional wake-up channel
	Executors    map[string]Executor
	PollInterval time.Duration
	JobTimeout   time.Duration
}

// Worker is the single logical consumer of the job queue. It drains the
// pending index FIFO, sleeping between polls; a RabbitMQ nudge published at
// enqueue time wakes it early but never changes dequeue order, so the loop
// behaves identically (just slower) with RabbitMQ disabled.
type Worker struct {
	logger       *slog.Logger
	queue        JobQueue
	rabbitClient *rabbitmq.Client
	executors    map[string]Executor
	pollInterval time.Duration
	jobTimeout   time.Duration
	workerID     string

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &Worker{
		logger:       cfg.Logger,
		queue:        cfg.Queue,
		rabbitClient: cfg.RabbitClient,
		executors:    cfg.Executors,
		pollInterval: pollInterval,
		jobTimeout:   cfg.JobTimeout,
		workerID:     "worker-" + uuid.New().String()[:8],
		stopChan:     make(chan struct{}),
	}
}

// Start runs the processing loop until ctx is canceled or Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Duration("poll_interval", w.pollInterval),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	nudges := w.startNudgeListener(ctx)

	w.wg.Add(1)
	defer w.wg.Done()

	for {
		// Drain everything that is ready before sleeping.
		for {
			if stopped := w.stopRequested(ctx); stopped {
				return nil
			}

			processed, err := w.processNext(ctx)
			if err != nil {
				w.logger.Error("Job processing error",
					slog.String("worker_id", w.workerID),
					slog.String("error", err.Error()),
				)
				break
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Worker stopping - context canceled",
				slog.String("worker_id", w.workerID),
			)
			return nil

		case <-w.stopChan:
			w.logger.Info("Worker stopping",
				slog.String("worker_id", w.workerID),
			)
			return nil

		case <-nudges:
			w.logger.Debug("Worker woken by nudge",
				slog.String("worker_id", w.workerID),
			)

		case <-time.After(w.pollInterval):
		}
	}
}

func (w *Worker) stopRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-w.stopChan:
		return true
	default:
		return false
	}
}

// startNudgeListener consumes wake-up messages and coalesces them onto a
// buffered channel. Returns a channel that never fires when RabbitMQ is not
// configured.
func (w *Worker) startNudgeListener(ctx context.Context) <-chan struct{} {
	nudges := make(chan struct{}, 1)

	if w.rabbitClient == nil {
		return nudges
	}

	deliveries, err := w.rabbitClient.Consume(w.workerID)
	if err != nil {
		w.logger.Warn("Failed to start nudge consumer, relying on interval polling",
			slog.String("error", err.Error()),
		)
		return nudges
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopChan:
				return
			case _, ok := <-deliveries:
				if !ok {
					w.logger.Warn("Nudge channel closed, relying on interval polling")
					return
				}
				select {
				case nudges <- struct{}{}:
				default:
					// A wake-up is already queued.
				}
			}
		}
	}()

	return nudges
}

// Stop signals the worker to exit and waits for in-flight work to finish.
// A job that has already been picked up runs to completion or failure.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...",
		slog.String("worker_id", w.workerID),
	)
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()
	w.logger.Info("Worker stopped",
		slog.String("worker_id", w.workerID),
	)
}
