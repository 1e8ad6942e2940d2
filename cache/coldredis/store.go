// Package coldredis implements cache.ColdStore against Redis, the
// teacher's own cold-tier choice (llm/cache/prompt_cache.go's
// MultiLevelCache wraps a *redis.Client directly). Entries are JSON-
// encoded, matching the teacher's CacheEntry marshaling convention.
package coldredis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/RobLe3/claudette-sub003/cache"
	"github.com/RobLe3/claudette-sub003/types"
)

const keyPrefix = "claudette:cache:"

// Store is a cache.ColdStore backed by a Redis client.
type Store struct {
	client *redis.Client
}

// New wraps an existing Redis client. Callers construct the client (and
// point it at miniredis in tests) themselves.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func redisKey(fingerprint string) string {
	return keyPrefix + fingerprint
}

// Get returns cache.ErrNotFound when the key is absent or expired.
func (s *Store) Get(ctx context.Context, fingerprint string) (types.CacheEntry, error) {
	data, err := s.client.Get(ctx, redisKey(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.CacheEntry{}, cache.ErrNotFound
	}
	if err != nil {
		return types.CacheEntry{}, err
	}
	var entry types.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return types.CacheEntry{}, err
	}
	if entry.Expired(time.Now()) {
		return types.CacheEntry{}, cache.ErrNotFound
	}
	return entry, nil
}

// Set writes entry with a TTL derived from its ExpiresAt field.
func (s *Store) Set(ctx context.Context, entry types.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	return s.client.Set(ctx, redisKey(entry.Fingerprint), data, ttl).Err()
}

// Delete removes fingerprint's entry.
func (s *Store) Delete(ctx context.Context, fingerprint string) error {
	return s.client.Del(ctx, redisKey(fingerprint)).Err()
}

// Close releases the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
