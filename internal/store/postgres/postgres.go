package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ccarella/pmai-jobs/internal/queue"
)

// Compile-time interface check.
var _ queue.Store = (*Store)(nil)

// DefaultTTL is the record lifetime applied when none is configured.
const DefaultTTL = 24 * time.Hour

// Store implements queue.Store on PostgreSQL for deployments without Redis.
// Records are whole-record JSON with an expires_at column standing in for a
// native TTL: expired rows are invisible to reads and deleted lazily. The
// pending index and user history live in their own tables ordered by
// enqueued_at / pushed_at.
type Store struct {
	db  *sqlx.DB
	ttl time.Duration
}

// New creates a PostgreSQL-backed store. The caller owns the DB lifecycle.
func New(db *sqlx.DB, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{db: db, ttl: ttl}
}

// Migrate creates the backing tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		job_id     TEXT PRIMARY KEY,
		record     JSONB NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS pending_jobs (
		job_id      TEXT PRIMARY KEY,
		enqueued_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pending_jobs_enqueued_at ON pending_jobs (enqueued_at);
	CREATE TABLE IF NOT EXISTS user_jobs (
		owner_id   TEXT NOT NULL,
		job_id     TEXT NOT NULL,
		pushed_at  TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (owner_id, job_id)
	);
	CREATE INDEX IF NOT EXISTS idx_user_jobs_owner_pushed ON user_jobs (owner_id, pushed_at DESC);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate job tables: %w", err)
	}
	return nil
}

// PutJob upserts the serialized record and pushes expires_at forward, so the
// lifetime resets on every write.
func (s *Store) PutJob(ctx context.Context, job *queue.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to serialize job: %w", err)
	}

	query := `
		INSERT INTO jobs (job_id, record, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO UPDATE
		SET record = EXCLUDED.record, expires_at = EXCLUDED.expires_at
	`

	expiresAt := time.Now().UTC().Add(s.ttl)
	if _, err := s.db.ExecContext(ctx, query, job.ID, data, expiresAt); err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	return nil
}

// GetJob returns the record for id, or (nil, nil) when it is absent or
// expired. Expired rows are deleted on the way out.
func (s *Store) GetJob(ctx context.Context, id string) (*queue.Job, error) {
	var row struct {
		Record    []byte    `db:"record"`
		ExpiresAt time.Time `db:"expires_at"`
	}

	query := `SELECT record, expires_at FROM jobs WHERE job_id = $1`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if time.Now().UTC().After(row.ExpiresAt) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = $1`, id); err != nil {
			return nil, fmt.Errorf("failed to delete expired job: %w", err)
		}
		return nil, nil
	}

	var job queue.Job
	if err := json.Unmarshal(row.Record, &job); err != nil {
		return nil, fmt.Errorf("failed to deserialize job: %w", err)
	}
	return &job, nil
}

// EnqueuePending upserts id into the pending index with the given score.
func (s *Store) EnqueuePending(ctx context.Context, id string, enqueueAt time.Time) error {
	query := `
		INSERT INTO pending_jobs (job_id, enqueued_at)
		VALUES ($1, $2)
		ON CONFLICT (job_id) DO UPDATE SET enqueued_at = EXCLUDED.enqueued_at
	`

	if _, err := s.db.ExecContext(ctx, query, id, enqueueAt.UTC()); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// PeekOldestPending returns the earliest-enqueued id without removing it.
// Ties are broken by job_id for a stable order.
func (s *Store) PeekOldestPending(ctx context.Context) (string, error) {
	var id string
	query := `SELECT job_id FROM pending_jobs ORDER BY enqueued_at, job_id LIMIT 1`

	if err := s.db.GetContext(ctx, &id, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to peek pending index: %w", err)
	}
	return id, nil
}

// RemovePending deletes id from the pending index; absent ids are a no-op.
func (s *Store) RemovePending(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_jobs WHERE job_id = $1`, id); err != nil {
		return fmt.Errorf("failed to remove pending entry: %w", err)
	}
	return nil
}

// PrunePendingBefore deletes entries enqueued before cutoff.
func (s *Store) PrunePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_jobs WHERE enqueued_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune pending index: %w", err)
	}

	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return pruned, nil
}

// PushUserJob records id in the owner's history with a fresh lifetime.
func (s *Store) PushUserJob(ctx context.Context, ownerID, id string) error {
	query := `
		INSERT INTO user_jobs (owner_id, job_id, pushed_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id, job_id) DO UPDATE
		SET pushed_at = EXCLUDED.pushed_at, expires_at = EXCLUDED.expires_at
	`

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query, ownerID, id, now, now.Add(s.ttl)); err != nil {
		return fmt.Errorf("failed to index job for user: %w", err)
	}
	return nil
}

// ListUserJobs returns up to limit unexpired ids, most-recent-first.
func (s *Store) ListUserJobs(ctx context.Context, ownerID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = queue.DefaultUserJobsLimit
	}

	query := `
		SELECT job_id FROM user_jobs
		WHERE owner_id = $1 AND expires_at > $2
		ORDER BY pushed_at DESC
		LIMIT $3
	`

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, ownerID, time.Now().UTC(), limit); err != nil {
		return nil, fmt.Errorf("failed to list user jobs: %w", err)
	}
	return ids, nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the caller owns the DB lifecycle.
func (s *Store) Close() error { return nil }
