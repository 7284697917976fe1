package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "dashwatch:cache:"
	defaultRetention = 24 * time.Hour
	scanBatch        = 200
)

// SnapshotStore persists metric cache entries so replicas and restarts can
// serve the last known values. It implements cache.Store.
type SnapshotStore struct {
	rdb       *redis.Client
	retention time.Duration
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"stored_at"`
}

// NewSnapshotStore creates a store on top of client. Entries expire from
// Redis after retention; zero uses one day.
func NewSnapshotStore(client *Client, retention time.Duration) *SnapshotStore {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &SnapshotStore{rdb: client.rdb, retention: retention}
}

// Key helpers
func entryKey(key string) string {
	return keyPrefix + key
}

func matchPattern(prefix string) string {
	return keyPrefix + prefix + "*"
}

// Save stores data with its timestamp.
func (s *SnapshotStore) Save(ctx context.Context, key string, data []byte, storedAt time.Time) error {
	payload, err := json.Marshal(envelope{Data: data, StoredAt: storedAt})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := s.rdb.Set(ctx, entryKey(key), payload, s.retention).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// Load returns the stored entry for key.
func (s *SnapshotStore) Load(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	payload, err := s.rdb.Get(ctx, entryKey(key)).Bytes()
	if err == redis.Nil {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("get failed: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return env.Data, env.StoredAt, true, nil
}

// Clear removes every entry whose key starts with prefix.
func (s *SnapshotStore) Clear(ctx context.Context, prefix string) error {
	_, err := s.clear(ctx, prefix)
	return err
}

// ClearAll removes every dashwatch cache entry and returns how many were
// deleted.
func (s *SnapshotStore) ClearAll(ctx context.Context) (int, error) {
	return s.clear(ctx, "")
}

func (s *SnapshotStore) clear(ctx context.Context, prefix string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, matchPattern(prefix), scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan failed: %w", err)
		}
		if len(keys) > 0 {
			n, err := s.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("del failed: %w", err)
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}
