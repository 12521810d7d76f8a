// Package poller implements the client-side contract for watching a job to
// a terminal state: poll the status at a fixed interval until the job
// completes, fails, or an overall timeout elapses.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ccarella/pmai-jobs/internal/queue"
)

const (
	// DefaultInterval is the pause between status reads.
	DefaultInterval = 5 * time.Second

	// DefaultTimeout bounds the whole watch. Hitting it is a distinct
	// outcome, not a failure: the job may still finish server-side.
	DefaultTimeout = 5 * time.Minute
)

// Outcome classifies how a watch ended.
type Outcome string

const (
	// OutcomeCompleted means the job reached completed and Result is set.
	OutcomeCompleted Outcome = "completed"

	// OutcomeFailed means the job reached failed and Error is set.
	OutcomeFailed Outcome = "failed"

	// OutcomeTimedOut means the watch gave up while the job was still
	// pending or processing. Giving up is local only; it never mutates
	// server-side state.
	OutcomeTimedOut Outcome = "timed_out"
)

// Result is the terminal report of one watch.
type Result struct {
	Outcome    Outcome
	JobID      string
	LastStatus string
	Result     json.RawMessage // set when Outcome is OutcomeCompleted
	Error      string          // set when Outcome is OutcomeFailed
}

// StatusReader reads a job's current state. A nil job means the record is
// absent (expired or never existed).
type StatusReader interface {
	GetJob(ctx context.Context, id string) (*queue.Job, error)
}

// Options configures a Poller.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Poller watches jobs until they settle.
type Poller struct {
	reader   StatusReader
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// New creates a poller over the given status reader.
func New(reader StatusReader, logger *slog.Logger, opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Poller{
		reader:   reader,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
	}
}

// Watch polls the job until it is terminal or the overall timeout elapses.
// A failed single read is transient: it is logged and the watch continues.
// An absent record is treated the same way, since the poller cannot tell a
// TTL expiry from a read hitting a lagging replica. Watch returns an error
// only when ctx is canceled.
func (p *Poller) Watch(ctx context.Context, id string) (*Result, error) {
	deadline := time.Now().Add(p.timeout)
	lastStatus := ""

	for {
		job, err := p.reader.GetJob(ctx, id)
		switch {
		case err != nil:
			p.logger.Warn("Status read failed, will retry",
				slog.String("job_id", id),
				slog.String("error", err.Error()),
			)

		case job == nil:
			p.logger.Warn("Job record absent, will retry",
				slog.String("job_id", id),
			)

		default:
			if job.Status != lastStatus {
				p.logger.Debug("Job status observed",
					slog.String("job_id", id),
					slog.String("status", job.Status),
				)
				lastStatus = job.Status
			}

			switch job.Status {
			case queue.JobStatusCompleted:
				return &Result{
					Outcome:    OutcomeCompleted,
					JobID:      id,
					LastStatus: job.Status,
					Result:     job.Result,
				}, nil

			case queue.JobStatusFailed:
				return &Result{
					Outcome:    OutcomeFailed,
					JobID:      id,
					LastStatus: job.Status,
					Error:      job.Error,
				}, nil
			}
		}

		if time.Now().After(deadline) {
			return &Result{
				Outcome:    OutcomeTimedOut,
				JobID:      id,
				LastStatus: lastStatus,
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("watch canceled: %w", ctx.Err())
		case <-time.After(p.interval):
		}
	}
}
