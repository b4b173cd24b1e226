package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"platform-backend/internal/clock"
)

// RedisStore is a WindowStore backed by Redis, for deployments where several
// gateway instances must share consumption state. Expiry is delegated to
// Redis key TTLs; the check-and-deduct runs as a single Lua script so
// concurrent consumers of the same key serialize server-side.
type RedisStore struct {
	rdb    *redis.Client
	clock  clock.Clock
	prefix string
}

// takeScript implements the fixed window: deny without mutating when the
// capacity would be exceeded, otherwise INCRBY and stamp the window TTL on
// first use.
var takeScript = redis.NewScript(`
local cap = tonumber(ARGV[1])
local cost = tonumber(ARGV[2])
local win = tonumber(ARGV[3])
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
if used + cost > cap then
  return {0, used, redis.call('PTTL', KEYS[1])}
end
used = redis.call('INCRBY', KEYS[1], cost)
if used == cost then
  redis.call('PEXPIRE', KEYS[1], win)
end
return {1, used, redis.call('PTTL', KEYS[1])}
`)

func NewRedisStore(rdb *redis.Client, clk clock.Clock, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:window"
	}
	return &RedisStore{rdb: rdb, clock: clk, prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.prefix + ":" + k }

func (s *RedisStore) Take(ctx context.Context, key string, window time.Duration, capacity, cost int) (Decision, error) {
	res, err := takeScript.Run(ctx, s.rdb, []string{s.key(key)},
		capacity, cost, window.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis take %s: %w", key, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("redis take %s: unexpected reply %v", key, res)
	}

	allowed := res[0].(int64) == 1
	used := int(res[1].(int64))
	ttlMillis := res[2].(int64)

	startedAt := s.clock.Now()
	if ttlMillis > 0 {
		elapsed := window - time.Duration(ttlMillis)*time.Millisecond
		startedAt = startedAt.Add(-elapsed)
	}
	return Decision{Allowed: allowed, Used: used, StartedAt: startedAt}, nil
}

func (s *RedisStore) Peek(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	pipe := s.rdb.Pipeline()
	getCmd := pipe.Get(ctx, s.key(key))
	ttlCmd := pipe.PTTL(ctx, s.key(key))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, time.Time{}, fmt.Errorf("redis peek %s: %w", key, err)
	}

	now := s.clock.Now()
	used, err := getCmd.Int()
	if err == redis.Nil {
		return 0, now, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis peek %s: %w", key, err)
	}

	startedAt := now
	if ttl := ttlCmd.Val(); ttl > 0 {
		startedAt = now.Add(-(window - ttl))
	}
	return used, startedAt, nil
}

func (s *RedisStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis remove windows: %w", err)
	}
	return nil
}
