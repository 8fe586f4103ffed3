package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jmellor/marginboard/internal/leaderboard"
	"github.com/jmellor/marginboard/pkg/redis"
)

// KV is the narrow port the store needs from the external key-value
// service. Absence of a key is a legitimate state, not an error.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
}

const (
	keyPrefix  = "leaderboard:"
	lastRunKey = keyPrefix + "lastRun"
)

// SnapshotKey returns the cache key for a universe
func SnapshotKey(universeName string) string {
	return keyPrefix + strings.ToUpper(universeName)
}

// Store holds the latest leaderboard snapshots and the process-wide
// last-run marker. Snapshot writes and the lastRun write are not
// transactionally coupled; the compute job writes both per run.
type Store struct {
	kv KV
}

// NewStore creates a snapshot store over a KV backend
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// PutSnapshot writes a snapshot under its universe key. A write never
// back-dates the cache: when the stored snapshot carries a later
// updatedAt, the incoming one inherits it.
func (s *Store) PutSnapshot(ctx context.Context, snapshot *leaderboard.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("nil snapshot")
	}

	existing, found, err := s.GetSnapshot(ctx, snapshot.Universe)
	if err == nil && found && existing.UpdatedAt != nil {
		if snapshot.UpdatedAt == nil || existing.UpdatedAt.After(*snapshot.UpdatedAt) {
			clone := *snapshot
			clone.UpdatedAt = existing.UpdatedAt
			snapshot = &clone
		}
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot for %s: %w", snapshot.Universe, err)
	}

	if err := s.kv.Set(ctx, SnapshotKey(snapshot.Universe), string(data)); err != nil {
		return fmt.Errorf("cache write for %s: %w", snapshot.Universe, err)
	}
	return nil
}

// GetSnapshot reads the snapshot for a universe. A missing key returns
// (nil, false, nil).
func (s *Store) GetSnapshot(ctx context.Context, universeName string) (*leaderboard.Snapshot, bool, error) {
	data, found, err := s.kv.Get(ctx, SnapshotKey(universeName))
	if err != nil {
		return nil, false, fmt.Errorf("cache read for %s: %w", universeName, err)
	}
	if !found {
		return nil, false, nil
	}

	var snapshot leaderboard.Snapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, false, fmt.Errorf("decode cached snapshot for %s: %w", universeName, err)
	}
	return &snapshot, true, nil
}

// SetLastRun records the completion time of a compute run
func (s *Store) SetLastRun(ctx context.Context, t time.Time) error {
	if err := s.kv.Set(ctx, lastRunKey, t.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("lastRun write: %w", err)
	}
	return nil
}

// GetLastRun returns the last recorded run time, or nil when the job
// has never run
func (s *Store) GetLastRun(ctx context.Context) (*time.Time, error) {
	data, found, err := s.kv.Get(ctx, lastRunKey)
	if err != nil {
		return nil, fmt.Errorf("lastRun read: %w", err)
	}
	if !found {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, data)
	if err != nil {
		return nil, fmt.Errorf("decode lastRun: %w", err)
	}
	return &t, nil
}

// redisKV adapts the Redis wrapper to the KV port. With Redis disabled
// every read is a miss and every write a no-op, matching how the rest
// of the service degrades.
type redisKV struct {
	client *redis.Client
}

// NewRedisKV wraps a Redis client as a KV backend
func NewRedisKV(client *redis.Client) KV {
	return &redisKV{client: client}
}

func (r *redisKV) Get(ctx context.Context, key string) (string, bool, error) {
	if !r.client.Enabled() {
		return "", false, nil
	}

	value, err := r.client.Redis().Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *redisKV) Set(ctx context.Context, key string, value string) error {
	if !r.client.Enabled() {
		return nil
	}
	return r.client.Redis().Set(ctx, key, value, 0).Err()
}
