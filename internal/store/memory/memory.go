package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ccarella/pmai-jobs/internal/queue"
)

// Compile-time interface check.
var _ queue.Store = (*Store)(nil)

// DefaultTTL matches the production record lifetime.
const DefaultTTL = 24 * time.Hour

type jobEntry struct {
	job       queue.Job
	expiresAt time.Time
}

type pendingEntry struct {
	id         string
	enqueuedAt time.Time
}

type userEntry struct {
	ids       []string
	expiresAt time.Time
}

// Store is a fully in-memory implementation of queue.Store. Safe for
// concurrent access. Intended for unit testing and single-process
// deployments; records expire lazily on read.
type Store struct {
	mu       sync.RWMutex
	ttl      time.Duration
	jobs     map[string]jobEntry
	pending  []pendingEntry
	userJobs map[string]userEntry
}

// New returns a new empty Store with the given record TTL. A non-positive
// ttl falls back to DefaultTTL.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:      ttl,
		jobs:     make(map[string]jobEntry),
		userJobs: make(map[string]userEntry),
	}
}

// PutJob stores a copy of the record and resets its TTL.
func (m *Store) PutJob(_ context.Context, job *queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *job
	m.jobs[job.ID] = jobEntry{
		job:       cp,
		expiresAt: time.Now().UTC().Add(m.ttl),
	}
	return nil
}

// GetJob returns a copy of the record, or nil when absent or expired.
func (m *Store) GetJob(_ context.Context, id string) (*queue.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	if time.Now().UTC().After(entry.expiresAt) {
		delete(m.jobs, id)
		return nil, nil
	}

	cp := entry.job
	return &cp, nil
}

// EnqueuePending inserts id into the pending index ordered by enqueueAt.
// Re-enqueueing an already indexed id moves it to its new position.
func (m *Store) EnqueuePending(_ context.Context, id string, enqueueAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removePendingLocked(id)

	// Insert after every entry with an earlier or equal score so ties keep
	// insertion order.
	pos := len(m.pending)
	for i, e := range m.pending {
		if e.enqueuedAt.After(enqueueAt) {
			pos = i
			break
		}
	}

	m.pending = append(m.pending, pendingEntry{})
	copy(m.pending[pos+1:], m.pending[pos:])
	m.pending[pos] = pendingEntry{id: id, enqueuedAt: enqueueAt}
	return nil
}

// PeekOldestPending returns the lowest-scored id without removing it.
func (m *Store) PeekOldestPending(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.pending) == 0 {
		return "", nil
	}
	return m.pending[0].id, nil
}

// RemovePending removes id from the pending index; absent ids are a no-op.
func (m *Store) RemovePending(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removePendingLocked(id)
	return nil
}

func (m *Store) removePendingLocked(id string) {
	for i, e := range m.pending {
		if e.id == id {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

// PrunePendingBefore removes entries enqueued before cutoff.
func (m *Store) PrunePendingBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.pending[:0]
	var pruned int64
	for _, e := range m.pending {
		if e.enqueuedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, e)
	}
	m.pending = kept
	return pruned, nil
}

// PushUserJob prepends id to the owner's history and resets its TTL.
func (m *Store) PushUserJob(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.userJobs[ownerID]
	if time.Now().UTC().After(entry.expiresAt) {
		entry.ids = nil
	}
	entry.ids = append([]string{id}, entry.ids...)
	entry.expiresAt = time.Now().UTC().Add(m.ttl)
	m.userJobs[ownerID] = entry
	return nil
}

// ListUserJobs returns up to limit ids, most-recent-first.
func (m *Store) ListUserJobs(_ context.Context, ownerID string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.userJobs[ownerID]
	if !ok || time.Now().UTC().After(entry.expiresAt) {
		return nil, nil
	}

	ids := entry.ids
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }
