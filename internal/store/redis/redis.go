package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ccarella/pmai-jobs/internal/queue"
)

// Compile-time interface check.
var _ queue.Store = (*Store)(nil)

const (
	// DefaultTTL is the record lifetime applied when none is configured.
	DefaultTTL = 24 * time.Hour

	// pendingKey is the sorted set of pending job ids scored by enqueue time.
	pendingKey = "pending-jobs"

	// userJobsCap bounds the stored per-user history; retrieval is capped
	// separately by the caller's limit.
	userJobsCap = 100
)

func jobKey(id string) string {
	return "job:" + id
}

func userJobsKey(ownerID string) string {
	return "user-jobs:" + ownerID
}

// Store implements queue.Store on Redis: `job:<id>` holds the serialized
// record as a string with a TTL that resets on every write, `pending-jobs`
// is a sorted set scored by enqueue unix-nanos, and `user-jobs:<owner>` is a
// most-recent-first list with a TTL aligned to the record TTL.
type Store struct {
	client goredis.Cmdable
	closer func() error
	ttl    time.Duration
}

// New creates a Redis-backed store. The caller owns the client lifecycle;
// Close on the store is a no-op unless the store was built with NewFromClient.
func New(client goredis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

// NewFromClient wraps a concrete client whose lifecycle the store owns.
func NewFromClient(client *goredis.Client, ttl time.Duration) *Store {
	s := New(client, ttl)
	s.closer = client.Close
	return s
}

// PutJob serializes the whole record and SETs it with a fresh TTL. Active
// and retried jobs therefore never expire mid-flight; abandoned ones vanish
// after the TTL.
func (s *Store) PutJob(ctx context.Context, job *queue.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to serialize job: %w", err)
	}

	if err := s.client.Set(ctx, jobKey(job.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	return nil
}

// GetJob returns the record for id, or (nil, nil) when the key is gone.
func (s *Store) GetJob(ctx context.Context, id string) (*queue.Job, error) {
	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job queue.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to deserialize job: %w", err)
	}
	return &job, nil
}

// EnqueuePending adds id to the pending sorted set, scored by enqueue time.
func (s *Store) EnqueuePending(ctx context.Context, id string, enqueueAt time.Time) error {
	z := goredis.Z{
		Score:  float64(enqueueAt.UnixNano()),
		Member: id,
	}
	if err := s.client.ZAdd(ctx, pendingKey, z).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// PeekOldestPending returns the lowest-scored member without removing it.
func (s *Store) PeekOldestPending(ctx context.Context) (string, error) {
	ids, err := s.client.ZRange(ctx, pendingKey, 0, 0).Result()
	if err != nil {
		return "", fmt.Errorf("failed to peek pending index: %w", err)
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

// RemovePending removes id from the pending sorted set; ZREM on an absent
// member is already a no-op.
func (s *Store) RemovePending(ctx context.Context, id string) error {
	if err := s.client.ZRem(ctx, pendingKey, id).Err(); err != nil {
		return fmt.Errorf("failed to remove pending entry: %w", err)
	}
	return nil
}

// PrunePendingBefore removes every member scored before cutoff.
func (s *Store) PrunePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	maxScore := strconv.FormatInt(cutoff.UnixNano(), 10)
	pruned, err := s.client.ZRemRangeByScore(ctx, pendingKey, "-inf", "("+maxScore).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune pending index: %w", err)
	}
	return pruned, nil
}

// PushUserJob prepends id to the owner's history list, trims the list to a
// bounded length, and resets the list TTL to match the record TTL.
func (s *Store) PushUserJob(ctx context.Context, ownerID, id string) error {
	key := userJobsKey(ownerID)

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, id)
	pipe.LTrim(ctx, key, 0, userJobsCap-1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index job for user: %w", err)
	}
	return nil
}

// ListUserJobs returns up to limit ids, most-recent-first.
func (s *Store) ListUserJobs(ctx context.Context, ownerID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = queue.DefaultUserJobsLimit
	}

	ids, err := s.client.LRange(ctx, userJobsKey(ownerID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user jobs: %w", err)
	}
	return ids, nil
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client when the store owns it.
func (s *Store) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}
