package poller_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccarella/pmai-jobs/internal/poller"
	"github.com/ccarella/pmai-jobs/internal/queue"
)

// scriptedReader serves a fixed sequence of reads, repeating the last step
// once the script runs out.
type scriptedReader struct {
	mu    sync.Mutex
	steps []readStep
	reads int
}

type readStep struct {
	job *queue.Job
	err error
}

func (r *scriptedReader) GetJob(_ context.Context, _ string) (*queue.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.reads
	if idx >= len(r.steps) {
		idx = len(r.steps) - 1
	}
	r.reads++

	step := r.steps[idx]
	if step.job == nil {
		return nil, step.err
	}
	cp := *step.job
	return &cp, step.err
}

func (r *scriptedReader) readCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

func jobWithStatus(status string) *queue.Job {
	return &queue.Job{
		ID:     "job-1",
		Status: status,
	}
}

func newTestPoller(reader poller.StatusReader, timeout time.Duration) *poller.Poller {
	return poller.New(reader, slog.New(slog.NewTextHandler(io.Discard, nil)), poller.Options{
		Interval: 5 * time.Millisecond,
		Timeout:  timeout,
	})
}

func TestWatch_ObservesLifecycleAndReturnsResult(t *testing.T) {
	result := json.RawMessage(`{"issueUrl":"https://x/y/issues/1","issueNumber":1,"repository":"x/y","title":"T"}`)

	completed := jobWithStatus(queue.JobStatusCompleted)
	completed.Result = result

	reader := &scriptedReader{steps: []readStep{
		{job: jobWithStatus(queue.JobStatusPending)},
		{job: jobWithStatus(queue.JobStatusProcessing)},
		{job: completed},
	}}

	res, err := newTestPoller(reader, time.Second).Watch(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Equal(t, poller.OutcomeCompleted, res.Outcome)
	assert.JSONEq(t, string(result), string(res.Result))
	assert.Empty(t, res.Error)

	// The watch stopped at the terminal read: exactly three polls.
	assert.Equal(t, 3, reader.readCount())
}

func TestWatch_ReportsFailureError(t *testing.T) {
	failed := jobWithStatus(queue.JobStatusFailed)
	failed.Error = "publish blew up"

	reader := &scriptedReader{steps: []readStep{
		{job: jobWithStatus(queue.JobStatusProcessing)},
		{job: failed},
	}}

	res, err := newTestPoller(reader, time.Second).Watch(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Equal(t, poller.OutcomeFailed, res.Outcome)
	assert.Equal(t, "publish blew up", res.Error)
	assert.Nil(t, res.Result)
}

func TestWatch_TimeoutIsNotFailure(t *testing.T) {
	reader := &scriptedReader{steps: []readStep{
		{job: jobWithStatus(queue.JobStatusPending)},
	}}

	res, err := newTestPoller(reader, 30*time.Millisecond).Watch(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Equal(t, poller.OutcomeTimedOut, res.Outcome)
	assert.Equal(t, queue.JobStatusPending, res.LastStatus)
	assert.Empty(t, res.Error)
	assert.Nil(t, res.Result)
}

func TestWatch_TransientReadErrorsKeepPolling(t *testing.T) {
	completed := jobWithStatus(queue.JobStatusCompleted)
	completed.Result = json.RawMessage(`{}`)

	reader := &scriptedReader{steps: []readStep{
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
		{job: completed},
	}}

	res, err := newTestPoller(reader, time.Second).Watch(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, poller.OutcomeCompleted, res.Outcome)
}

func TestWatch_AbsentRecordKeepsPollingUntilTimeout(t *testing.T) {
	reader := &scriptedReader{steps: []readStep{{job: nil}}}

	res, err := newTestPoller(reader, 30*time.Millisecond).Watch(context.Background(), "gone")
	require.NoError(t, err)
	assert.Equal(t, poller.OutcomeTimedOut, res.Outcome)
	assert.Empty(t, res.LastStatus)
}

func TestWatch_ContextCancel(t *testing.T) {
	reader := &scriptedReader{steps: []readStep{
		{job: jobWithStatus(queue.JobStatusPending)},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPoller(reader, time.Second).Watch(ctx, "job-1")
	assert.ErrorIs(t, err, context.Canceled)
}
