package queue_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccarella/pmai-jobs/internal/queue"
	"github.com/ccarella/pmai-jobs/internal/store/memory"
)

func TestJanitor_PrunesOldEntries(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	q := queue.New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), queue.Options{
		CleanupCutoff: time.Hour,
	})

	require.NoError(t, store.EnqueuePending(ctx, "ancient", time.Now().UTC().Add(-2*time.Hour)))

	janitor := queue.NewJanitor(q, slog.New(slog.NewTextHandler(io.Discard, nil)), 10*time.Millisecond)
	janitor.Start(ctx)
	defer janitor.Stop()

	require.Eventually(t, func() bool {
		id, err := store.PeekOldestPending(ctx)
		return err == nil && id == ""
	}, time.Second, 5*time.Millisecond)
}

func TestJanitor_StopIsIdempotent(t *testing.T) {
	store := memory.New(0)
	q := queue.New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), queue.Options{})

	janitor := queue.NewJanitor(q, slog.New(slog.NewTextHandler(io.Discard, nil)), 10*time.Millisecond)
	janitor.Start(context.Background())

	janitor.Stop()
	assert.NotPanics(t, janitor.Stop)
}
