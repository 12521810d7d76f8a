package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccarella/pmai-jobs/internal/queue"
)

func TestPutGetJob(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	job := &queue.Job{
		ID:        "job-1",
		OwnerID:   "user-1",
		Kind:      queue.KindCreateAndPublishIssue,
		Status:    queue.JobStatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.PutJob(ctx, job))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.OwnerID, got.OwnerID)

	// The returned record is a copy; mutating it does not touch the store.
	got.Status = queue.JobStatusFailed
	again, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, queue.JobStatusPending, again.Status)
}

func TestGetJob_Absent(t *testing.T) {
	s := New(0)

	got, err := s.GetJob(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetJob_Expired(t *testing.T) {
	ctx := context.Background()
	s := New(time.Millisecond)

	require.NoError(t, s.PutJob(ctx, &queue.Job{ID: "short-lived"}))
	time.Sleep(5 * time.Millisecond)

	got, err := s.GetJob(ctx, "short-lived")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPutJob_ResetsTTL(t *testing.T) {
	ctx := context.Background()
	s := New(20 * time.Millisecond)

	require.NoError(t, s.PutJob(ctx, &queue.Job{ID: "refreshed"}))
	time.Sleep(15 * time.Millisecond)
	require.NoError(t, s.PutJob(ctx, &queue.Job{ID: "refreshed"}))
	time.Sleep(15 * time.Millisecond)

	// 30ms after creation but only 15ms after the rewrite.
	got, err := s.GetJob(ctx, "refreshed")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestPendingIndexOrdering(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	base := time.Now().UTC()
	require.NoError(t, s.EnqueuePending(ctx, "b", base.Add(time.Second)))
	require.NoError(t, s.EnqueuePending(ctx, "a", base))
	require.NoError(t, s.EnqueuePending(ctx, "c", base.Add(2*time.Second)))

	id, err := s.PeekOldestPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", id)

	require.NoError(t, s.RemovePending(ctx, "a"))
	id, err = s.PeekOldestPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", id)
}

func TestEnqueuePending_MovesOnReEnqueue(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	base := time.Now().UTC()
	require.NoError(t, s.EnqueuePending(ctx, "a", base))
	require.NoError(t, s.EnqueuePending(ctx, "b", base.Add(time.Second)))

	// Re-enqueue "a" later than "b": it moves to the back, not duplicated.
	require.NoError(t, s.EnqueuePending(ctx, "a", base.Add(2*time.Second)))

	id, err := s.PeekOldestPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", id)

	require.NoError(t, s.RemovePending(ctx, "b"))
	id, err = s.PeekOldestPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", id)

	require.NoError(t, s.RemovePending(ctx, "a"))
	id, err = s.PeekOldestPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestRemovePending_AbsentIsNoop(t *testing.T) {
	s := New(0)
	assert.NoError(t, s.RemovePending(context.Background(), "ghost"))
}

func TestPrunePendingBefore(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	now := time.Now().UTC()
	require.NoError(t, s.EnqueuePending(ctx, "old-1", now.Add(-2*time.Hour)))
	require.NoError(t, s.EnqueuePending(ctx, "old-2", now.Add(-90*time.Minute)))
	require.NoError(t, s.EnqueuePending(ctx, "fresh", now))

	pruned, err := s.PrunePendingBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	id, err := s.PeekOldestPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", id)
}

func TestUserJobs(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	require.NoError(t, s.PushUserJob(ctx, "user-1", "first"))
	require.NoError(t, s.PushUserJob(ctx, "user-1", "second"))
	require.NoError(t, s.PushUserJob(ctx, "user-1", "third"))
	require.NoError(t, s.PushUserJob(ctx, "user-2", "other"))

	ids, err := s.ListUserJobs(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second"}, ids)

	ids, err = s.ListUserJobs(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second", "first"}, ids)

	ids, err = s.ListUserJobs(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
