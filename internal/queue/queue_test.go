package queue_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccarella/pmai-jobs/internal/queue"
	"github.com/ccarella/pmai-jobs/internal/store/memory"
)

func newTestQueue(t *testing.T) (*queue.Queue, *memory.Store) {
	t.Helper()
	store := memory.New(0)
	q := queue.New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), queue.Options{})
	return q, store
}

func createIssueJob(t *testing.T, q *queue.Queue, owner string, maxRetries int) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(queue.IssuePayload{
		Title:      "T",
		Prompt:     "write it",
		Repository: "x/y",
	})
	require.NoError(t, err)

	job, err := q.CreateJob(context.Background(), owner, queue.KindCreateAndPublishIssue, payload, maxRetries)
	require.NoError(t, err)
	return job
}

func TestCreateJob(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	job := createIssueJob(t, q, "user-1", 0)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "user-1", job.OwnerID)
	assert.Equal(t, queue.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.RetryCount)
	assert.Equal(t, queue.DefaultMaxRetries, job.MaxRetries)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Nil(t, job.CompletedAt)

	// The id is indexed exactly once: peek sees it, and after one removal
	// the index is empty.
	id, err := store.PeekOldestPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, id)

	require.NoError(t, store.RemovePending(ctx, job.ID))
	id, err = store.PeekOldestPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	// The record round-trips through the store.
	got, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
}

func TestGetJob_Absent(t *testing.T) {
	q, _ := newTestQueue(t)

	job, err := q.GetJob(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestUpdateJobStatus_Completed(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := createIssueJob(t, q, "user-1", 0)

	result := json.RawMessage(`{"issueUrl":"https://x/y/issues/1","issueNumber":1,"repository":"x/y","title":"T"}`)
	updated, err := q.UpdateJobStatus(ctx, job.ID, queue.JobStatusCompleted, result, "")
	require.NoError(t, err)

	assert.Equal(t, queue.JobStatusCompleted, updated.Status)
	assert.JSONEq(t, string(result), string(updated.Result))
	require.NotNil(t, updated.CompletedAt)
	assert.True(t, updated.UpdatedAt.After(job.UpdatedAt) || updated.UpdatedAt.Equal(job.UpdatedAt))

	// Terminal transition removed it from the pending index.
	next, err := q.GetNextPendingJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestUpdateJobStatus_Failed(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := createIssueJob(t, q, "user-1", 0)

	updated, err := q.UpdateJobStatus(ctx, job.ID, queue.JobStatusFailed, nil, "publish blew up")
	require.NoError(t, err)

	assert.Equal(t, queue.JobStatusFailed, updated.Status)
	assert.Equal(t, "publish blew up", updated.Error)
	require.NotNil(t, updated.CompletedAt)

	next, err := q.GetNextPendingJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestUpdateJobStatus_NotFound(t *testing.T) {
	q, _ := newTestQueue(t)

	_, err := q.UpdateJobStatus(context.Background(), "stale-id", queue.JobStatusProcessing, nil, "")
	assert.ErrorIs(t, err, queue.ErrJobNotFound)
}

func TestRetryJob_ReEnqueues(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := createIssueJob(t, q, "user-1", 3)

	_, err := q.UpdateJobStatus(ctx, job.ID, queue.JobStatusFailed, nil, "boom")
	require.NoError(t, err)

	retried, err := q.RetryJob(ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, queue.JobStatusPending, retried.Status)
	assert.Equal(t, 1, retried.RetryCount)
	assert.Empty(t, retried.Error)
	assert.Nil(t, retried.CompletedAt)

	next, err := q.GetNextPendingJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, job.ID, next.ID)
}

func TestRetryJob_GoesToBackOfQueue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first := createIssueJob(t, q, "user-1", 3)
	time.Sleep(2 * time.Millisecond)
	second := createIssueJob(t, q, "user-1", 3)

	// Fail and retry the older job; it must re-enter behind the newer one.
	_, err := q.UpdateJobStatus(ctx, first.ID, queue.JobStatusFailed, nil, "boom")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = q.RetryJob(ctx, first.ID)
	require.NoError(t, err)

	next, err := q.GetNextPendingJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, second.ID, next.ID)
}

func TestRetryJob_BudgetExhausted(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := createIssueJob(t, q, "user-1", 3)

	// Burn the whole budget.
	for i := 1; i <= 3; i++ {
		_, err := q.UpdateJobStatus(ctx, job.ID, queue.JobStatusFailed, nil, "boom")
		require.NoError(t, err)

		retried, err := q.RetryJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.JobStatusPending, retried.Status)
		assert.Equal(t, i, retried.RetryCount)
	}

	// The fourth failure has no budget left: terminal, distinct error text,
	// not re-enqueued.
	_, err := q.UpdateJobStatus(ctx, job.ID, queue.JobStatusFailed, nil, "boom")
	require.NoError(t, err)

	final, err := q.RetryJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.JobStatusFailed, final.Status)
	assert.Equal(t, queue.MaxRetriesExceededMessage, final.Error)
	assert.Equal(t, 3, final.RetryCount)
	require.NotNil(t, final.CompletedAt)

	next, err := q.GetNextPendingJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestRetryJob_NotFound(t *testing.T) {
	q, _ := newTestQueue(t)

	_, err := q.RetryJob(context.Background(), "stale-id")
	assert.ErrorIs(t, err, queue.ErrJobNotFound)
}

func TestGetNextPendingJob_Empty(t *testing.T) {
	q, _ := newTestQueue(t)

	job, err := q.GetNextPendingJob(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestGetNextPendingJob_FIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first := createIssueJob(t, q, "user-1", 0)
	time.Sleep(2 * time.Millisecond)
	createIssueJob(t, q, "user-1", 0)

	next, err := q.GetNextPendingJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, first.ID, next.ID)

	// The peek does not consume: the job stays pending until transitioned.
	again, err := q.GetNextPendingJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)
}

func TestGetNextPendingJob_StaleIndexEntry(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	// Index an id whose record was never written, as after a crash between
	// index insert and record write.
	require.NoError(t, store.EnqueuePending(ctx, "ghost-id", time.Now().UTC()))

	job, err := q.GetNextPendingJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	// The entry was pruned, so a repeat is a clean empty read.
	job, err = q.GetNextPendingJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	id, err := store.PeekOldestPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestGetUserJobs(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		job := createIssueJob(t, q, "user-1", 0)
		ids = append(ids, job.ID)
		time.Sleep(time.Millisecond)
	}
	createIssueJob(t, q, "user-2", 0)

	jobs, err := q.GetUserJobs(ctx, "user-1", 3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	// Most-recent-first.
	assert.Equal(t, ids[4], jobs[0].ID)
	assert.Equal(t, ids[3], jobs[1].ID)
	assert.Equal(t, ids[2], jobs[2].ID)
}

func TestGetUserJobs_OmitsExpiredIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	q := queue.New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), queue.Options{})

	kept := createIssueJob(t, q, "user-1", 0)

	// Simulate an expired record: the history still references the id but
	// the record store does not have it.
	require.NoError(t, store.PushUserJob(ctx, "user-1", "expired-id"))

	jobs, err := q.GetUserJobs(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, kept.ID, jobs[0].ID)
}

func TestGetUserJobs_Empty(t *testing.T) {
	q, _ := newTestQueue(t)

	jobs, err := q.GetUserJobs(context.Background(), "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestCleanupOldJobs(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	q := queue.New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), queue.Options{
		CleanupCutoff: time.Hour,
	})

	require.NoError(t, store.EnqueuePending(ctx, "ancient-1", time.Now().UTC().Add(-2*time.Hour)))
	require.NoError(t, store.EnqueuePending(ctx, "ancient-2", time.Now().UTC().Add(-3*time.Hour)))
	fresh := createIssueJob(t, q, "user-1", 0)

	pruned, err := q.CleanupOldJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	id, err := store.PeekOldestPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, id)
}
