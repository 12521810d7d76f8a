package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ccarella/pmai-jobs/internal/queue"
	"github.com/ccarella/pmai-jobs/shared/rabbitmq"
)

const (
	// DefaultWaitTimeout caps the server-side watch of the wait endpoint so
	// a browser request settles well under proxy timeouts.
	DefaultWaitTimeout = 25 * time.Second

	// DefaultWaitInterval is the server-side status poll interval.
	DefaultWaitInterval = time.Second
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Queue        *queue.Queue
	RabbitClient *rabbitmq.Client // optional worker nudge channel
	WaitTimeout  time.Duration
	WaitInterval time.Duration
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger       *slog.Logger
	queue        *queue.Queue
	rabbitClient *rabbitmq.Client
	waitTimeout  time.Duration
	waitInterval time.Duration
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	waitTimeout := deps.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}

	waitInterval := deps.WaitInterval
	if waitInterval <= 0 {
		waitInterval = DefaultWaitInterval
	}

	return &JobHandler{
		logger:       deps.Logger,
		queue:        deps.Queue,
		rabbitClient: deps.RabbitClient,
		waitTimeout:  waitTimeout,
		waitInterval: waitInterval,
	}
}

// nudgeWorker publishes a wake-up message for the worker. Best-effort: the
// worker polls on an interval regardless, so a failed nudge only adds
// latency and is logged rather than surfaced to the client.
func (h *JobHandler) nudgeWorker(ctx context.Context, jobID string) {
	if h.rabbitClient == nil {
		return
	}

	body, err := json.Marshal(map[string]string{"job_id": jobID})
	if err != nil {
		return
	}

	if err := h.rabbitClient.Publish(ctx, body, "application/json"); err != nil {
		h.logger.Warn("Failed to nudge worker",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
