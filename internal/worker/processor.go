package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ccarella/pmai-jobs/internal/queue"
)

// processNext pulls the oldest pending job and runs it to a terminal status.
// It returns true when a job was processed, false when the queue was empty.
//
// The sequence follows the queue's usage contract: mark processing before
// starting work, then report completed with a result or failed with an error
// message. Any execution failure feeds RetryJob, which either re-enqueues
// the job at the back of the queue or fails it terminally once the budget is
// gone. Failures are deliberately not classified as transient or permanent;
// every one consumes retry budget the same way.
func (w *Worker) processNext(ctx context.Context) (bool, error) {
	job, err := w.queue.GetNextPendingJob(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to poll queue: %w", err)
	}
	if job == nil {
		return false, nil
	}

	w.logger.Info("Processing job",
		slog.String("job_id", job.ID),
		slog.String("kind", job.Kind),
		slog.String("worker_id", w.workerID),
		slog.Int("retry_count", job.RetryCount),
	)

	if _, err := w.queue.UpdateJobStatus(ctx, job.ID, queue.JobStatusProcessing, nil, ""); err != nil {
		return false, fmt.Errorf("failed to mark job processing: %w", err)
	}

	result, execErr := w.executeJob(ctx, job)

	if execErr != nil {
		w.logger.Error("Job execution failed",
			slog.String("job_id", job.ID),
			slog.String("kind", job.Kind),
			slog.String("error", execErr.Error()),
		)

		if _, err := w.queue.UpdateJobStatus(ctx, job.ID, queue.JobStatusFailed, nil, execErr.Error()); err != nil {
			return true, fmt.Errorf("failed to mark job failed: %w", err)
		}

		retried, err := w.queue.RetryJob(ctx, job.ID)
		if err != nil {
			return true, fmt.Errorf("failed to retry job: %w", err)
		}

		if retried.Status == queue.JobStatusPending {
			w.logger.Info("Job re-enqueued for retry",
				slog.String("job_id", job.ID),
				slog.Int("retry_count", retried.RetryCount),
				slog.Int("max_retries", retried.MaxRetries),
			)
		}

		return true, nil
	}

	if _, err := w.queue.UpdateJobStatus(ctx, job.ID, queue.JobStatusCompleted, result, ""); err != nil {
		return true, fmt.Errorf("failed to mark job completed: %w", err)
	}

	w.logger.Info("Job completed successfully",
		slog.String("job_id", job.ID),
		slog.String("kind", job.Kind),
	)

	return true, nil
}

// executeJob dispatches the job to the executor registered for its kind,
// bounded by the configured job timeout.
func (w *Worker) executeJob(ctx context.Context, job *queue.Job) (result []byte, err error) {
	executor, ok := w.executors[job.Kind]
	if !ok {
		return nil, fmt.Errorf("no executor registered for kind %q", job.Kind)
	}

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	return executor.Execute(jobCtx, job)
}
