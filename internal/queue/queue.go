package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxRetries is the retry budget applied when the caller does not
	// specify one.
	DefaultMaxRetries = 3

	// DefaultUserJobsLimit caps how many jobs a history lookup returns when
	// the caller does not specify a limit.
	DefaultUserJobsLimit = 10

	// DefaultCleanupCutoff is how old a pending index entry must be before
	// the janitor prunes it. Records expire on their own TTL well before
	// this; the prune is a safety net for entries whose record vanished
	// without ever being dequeued.
	DefaultCleanupCutoff = 7 * 24 * time.Hour
)

// Options configures a Queue.
type Options struct {
	// DefaultMaxRetries overrides the retry budget used when CreateJob is
	// called with maxRetries <= 0.
	DefaultMaxRetries int

	// CleanupCutoff overrides how far back CleanupOldJobs reaches.
	CleanupCutoff time.Duration
}

// Queue is the job queue facade: the only entry point through which jobs are
// created, read, transitioned, retried, and garbage-collected. It composes
// the record store, the pending index, and the user history index behind a
// single state machine:
//
//	pending → processing → {completed, failed}
//	failed  → pending (retry, while budget remains) → … → failed (terminal)
//
// The facade does not claim jobs for workers; GetNextPendingJob is a peek,
// and safe concurrency relies on a single-worker deployment.
type Queue struct {
	store         Store
	logger        *slog.Logger
	maxRetries    int
	cleanupCutoff time.Duration
}

// New creates a queue facade over the given store.
func New(store Store, logger *slog.Logger, opts Options) *Queue {
	maxRetries := opts.DefaultMaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	cutoff := opts.CleanupCutoff
	if cutoff <= 0 {
		cutoff = DefaultCleanupCutoff
	}

	return &Queue{
		store:         store,
		logger:        logger,
		maxRetries:    maxRetries,
		cleanupCutoff: cutoff,
	}
}

// CreateJob allocates an id, writes the record as pending, inserts it into
// the pending index at the current time, and appends it to the owner's
// history. The full record is returned synchronously.
func (q *Queue) CreateJob(ctx context.Context, ownerID, kind string, payload json.RawMessage, maxRetries int) (*Job, error) {
	if maxRetries <= 0 {
		maxRetries = q.maxRetries
	}

	now := time.Now().UTC()
	job := &Job{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Kind:       kind,
		Status:     JobStatusPending,
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := q.store.PutJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to store job: %w", err)
	}

	if err := q.store.EnqueuePending(ctx, job.ID, now); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	if err := q.store.PushUserJob(ctx, ownerID, job.ID); err != nil {
		return nil, fmt.Errorf("failed to index job for user: %w", err)
	}

	q.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("owner_id", ownerID),
		slog.String("kind", kind),
		slog.Int("max_retries", maxRetries),
	)

	return job, nil
}

// GetJob returns the record for id, or nil when it is absent or expired.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// UpdateJobStatus merges the new status (and optional result or error text)
// into the record and bumps updated_at. A terminal status also sets
// completed_at and removes the id from the pending index; the removal happens
// before the record write so a crash between the two can never leave a job
// both terminal and still indexed.
//
// Returns ErrJobNotFound when no record exists for id: the caller held a
// stale id.
func (q *Queue) UpdateJobStatus(ctx context.Context, id, status string, result json.RawMessage, errMsg string) (*Job, error) {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}

	now := time.Now().UTC()
	job.Status = status
	job.UpdatedAt = now
	if result != nil {
		job.Result = result
	}
	if errMsg != "" {
		job.Error = errMsg
	}

	if job.IsTerminal() {
		job.CompletedAt = &now
		if err := q.store.RemovePending(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to remove job from pending index: %w", err)
		}
	}

	if err := q.store.PutJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	q.logger.Info("Job status updated",
		slog.String("job_id", id),
		slog.String("status", status),
	)

	return job, nil
}

// RetryJob moves a job back to pending for another execution cycle. When the
// retry budget is exhausted it instead transitions the job to a terminal
// failure and does not re-enqueue. A retried job re-enters the pending index
// at the current time, not its original enqueue time, so repeated retries
// cannot monopolize the head of the queue.
func (q *Queue) RetryJob(ctx context.Context, id string) (*Job, error) {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}

	now := time.Now().UTC()

	if job.RetryCount >= job.MaxRetries {
		job.Status = JobStatusFailed
		job.Error = MaxRetriesExceededMessage
		job.UpdatedAt = now
		job.CompletedAt = &now

		if err := q.store.RemovePending(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to remove job from pending index: %w", err)
		}
		if err := q.store.PutJob(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to update job: %w", err)
		}

		q.logger.Warn("Job exceeded max retries",
			slog.String("job_id", id),
			slog.Int("retry_count", job.RetryCount),
			slog.Int("max_retries", job.MaxRetries),
		)

		return job, nil
	}

	job.RetryCount++
	job.Status = JobStatusPending
	job.Error = ""
	job.UpdatedAt = now
	job.CompletedAt = nil

	if err := q.store.PutJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	if err := q.store.EnqueuePending(ctx, id, now); err != nil {
		return nil, fmt.Errorf("failed to re-enqueue job: %w", err)
	}

	q.logger.Info("Job re-enqueued for retry",
		slog.String("job_id", id),
		slog.Int("retry_count", job.RetryCount),
		slog.Int("max_retries", job.MaxRetries),
	)

	return job, nil
}

// GetNextPendingJob returns the oldest pending job without removing it from
// the index, or nil when there is none. An index entry whose record is gone
// (TTL race, or a crash between index insert and record write) is pruned and
// reported as "no job" rather than surfaced as an error.
//
// The caller is responsible for marking the job processing before starting
// work; the facade alone does not prevent double-dispatch.
func (q *Queue) GetNextPendingJob(ctx context.Context) (*Job, error) {
	id, err := q.store.PeekOldestPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to peek pending index: %w", err)
	}
	if id == "" {
		return nil, nil
	}

	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if job == nil {
		// Stale index entry - the record expired or was never written.
		q.logger.Warn("Pruning stale pending index entry",
			slog.String("job_id", id),
		)
		if err := q.store.RemovePending(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to prune stale index entry: %w", err)
		}
		return nil, nil
	}

	return job, nil
}

// GetUserJobs returns up to limit of the owner's jobs, most-recent-first.
// Ids whose records have expired are silently omitted; order is preserved.
func (q *Queue) GetUserJobs(ctx context.Context, ownerID string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = DefaultUserJobsLimit
	}

	ids, err := q.store.ListUserJobs(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list user jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.store.GetJob(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get job: %w", err)
		}
		if job == nil {
			continue
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// CleanupOldJobs removes pending index entries older than the cleanup cutoff.
// It returns how many entries were pruned.
func (q *Queue) CleanupOldJobs(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-q.cleanupCutoff)

	pruned, err := q.store.PrunePendingBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune pending index: %w", err)
	}

	if pruned > 0 {
		q.logger.Info("Pruned old pending index entries",
			slog.Int64("pruned", pruned),
		)
	}

	return pruned, nil
}
