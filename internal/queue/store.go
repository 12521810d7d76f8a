package queue

import (
	"context"
	"time"
)

// Store is the persistence contract the queue facade runs on: a job record
// store with TTL, an enqueue-time-ordered pending index, and a per-owner
// history index. Implementations live under internal/store (redis, postgres,
// memory) so the state-machine logic here stays storage-agnostic.
type Store interface {
	// PutJob serializes and stores the whole record under its id, resetting
	// the record TTL on every write. Whole-record replace, last-writer-wins.
	PutJob(ctx context.Context, job *Job) error

	// GetJob returns the record for id, or (nil, nil) when it is absent.
	// A missing record is authoritative "gone", never an error.
	GetJob(ctx context.Context, id string) (*Job, error)

	// EnqueuePending adds id to the pending index scored by enqueueAt.
	EnqueuePending(ctx context.Context, id string, enqueueAt time.Time) error

	// PeekOldestPending returns the id with the lowest enqueue score without
	// removing it, or "" when the index is empty.
	PeekOldestPending(ctx context.Context) (string, error)

	// RemovePending removes id from the pending index. Removing an id that
	// is not indexed is a no-op.
	RemovePending(ctx context.Context, id string) error

	// PrunePendingBefore bulk-removes index entries enqueued before cutoff
	// and returns how many were removed.
	PrunePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// PushUserJob prepends id to the owner's history index, most-recent-first,
	// with a lifetime aligned to the job TTL. The index is not a source of
	// truth for record existence.
	PushUserJob(ctx context.Context, ownerID, id string) error

	// ListUserJobs returns up to limit ids from the owner's history index,
	// most-recent-first. Ids may reference expired records.
	ListUserJobs(ctx context.Context, ownerID string, limit int) ([]string, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
