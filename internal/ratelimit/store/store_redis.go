package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tellus/pkg/platform/sentinel"
)

// Redis key prefix for provider windows.
const rateKeyPrefix = "tellus:rate:"

// reserveScript atomically prunes the window, checks occupancy, and claims a
// slot. Reply is {allowed, remaining, oldest occupied score in ms}.
var reserveScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1] - ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[3]) then
  redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  return {1, tonumber(ARGV[3]) - count - 1, tonumber(oldest[2])}
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {0, 0, tonumber(oldest[2])}
`)

// RedisWindowStore shares sliding windows across instances, so several
// processes drawing on one provider quota stay inside it together.
type RedisWindowStore struct {
	client *redis.Client

	// now is swappable in tests.
	now func() time.Time
}

// NewRedisWindowStore constructs a Redis-backed window store.
func NewRedisWindowStore(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client, now: time.Now}
}

func (s *RedisWindowStore) Reserve(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := s.now()
	raw, err := reserveScript.Run(ctx, s.client,
		[]string{rateKeyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Result()
	if err != nil {
		return nil, windowUnavailable("redis reserve", err)
	}

	parts, ok := raw.([]interface{})
	if !ok || len(parts) != 3 {
		return nil, fmt.Errorf("unexpected reserve reply %T", raw)
	}
	allowed, _ := parts[0].(int64)
	remaining, _ := parts[1].(int64)
	oldestMs, _ := parts[2].(int64)

	return &Result{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetAt:   time.UnixMilli(oldestMs).Add(window),
		Limit:     limit,
	}, nil
}

func (s *RedisWindowStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, rateKeyPrefix+key).Err(); err != nil {
		return windowUnavailable("redis reset", err)
	}
	return nil
}

// Count reports the member count as of the last pruning Reserve. Members past
// the window that nothing has reserved over since are still included; the
// count is advisory, enforcement happens in Reserve.
func (s *RedisWindowStore) Count(ctx context.Context, key string) (int, error) {
	n, err := s.client.ZCount(ctx, rateKeyPrefix+key, "-inf", strconv.FormatInt(s.now().UnixMilli(), 10)).Result()
	if err != nil {
		return 0, windowUnavailable("redis count", err)
	}
	return int(n), nil
}

// windowUnavailable tags a backend failure with sentinel.ErrUnavailable while
// keeping the cause text for logs.
func windowUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, sentinel.ErrUnavailable)
}
