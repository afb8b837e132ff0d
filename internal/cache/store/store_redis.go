package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tellus/pkg/platform/sentinel"
)

const (
	// Redis key prefix for cache entries.
	cacheKeyPrefix = "tellus:cache:"

	// minRetention floors the server-side expiry. Entries must outlive their
	// logical TTL so an expired entry can still be served stale when a
	// refresh fails; Redis expiry is garbage collection, not freshness.
	minRetention = 24 * time.Hour

	retentionFactor = 7
)

// RedisStore shares cache entries across instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed entry store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	raw, err := s.client.Get(ctx, cacheKeyPrefix+fingerprint).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, unavailable("redis get", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &entry, nil
}

func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.Fingerprint == "" {
		return fmt.Errorf("entry with fingerprint is required")
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	if err := s.client.Set(ctx, cacheKeyPrefix+entry.Fingerprint, raw, retention(entry.TTL)).Err(); err != nil {
		return unavailable("redis set", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, fingerprint string) error {
	if err := s.client.Del(ctx, cacheKeyPrefix+fingerprint).Err(); err != nil {
		return unavailable("redis del", err)
	}
	return nil
}

func retention(ttl time.Duration) time.Duration {
	r := ttl * retentionFactor
	if r < minRetention {
		r = minRetention
	}
	return r
}

// unavailable tags a backend failure with sentinel.ErrUnavailable while
// keeping the cause text for logs.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, sentinel.ErrUnavailable)
}
