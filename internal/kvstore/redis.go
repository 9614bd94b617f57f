package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultOpTimeout = 250 * time.Millisecond

// hitScript implements a fixed window counter.
var hitScript = redis.NewScript(`
-- KEYS[1] = counter key
-- ARGV[1] = window_ms (int)
--
-- Returns {count, pttl_ms}
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end

local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  -- Repair a counter that lost its expiry.
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

var undoScript = redis.NewScript(`
-- KEYS[1] = counter key
-- Decrement only if the window is still open, and delete if <= 0
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local current = redis.call('DECR', KEYS[1])
if current <= 0 then
  redis.call('DEL', KEYS[1])
  return 0
end
return current
`)

// RedisStore is the Redis implementation of Store.
// Every call is bounded by OpTimeout.
type RedisStore struct {
	rdb       redis.UniversalClient
	opTimeout time.Duration
}

func NewRedisStore(rdb redis.UniversalClient, opTimeout time.Duration) *RedisStore {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &RedisStore{rdb: rdb, opTimeout: opTimeout}
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("kvstore: set %q: ttl must be positive, got %s", key, ttl)
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable("exists", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (Counter, error) {
	if window <= 0 {
		return Counter{}, fmt.Errorf("kvstore: hit %q: window must be positive, got %s", key, window)
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	res, err := hitScript.Run(ctx, s.rdb, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Counter{}, unavailable("hit", err)
	}
	if len(res) != 2 {
		return Counter{}, unavailable("hit", fmt.Errorf("unexpected script reply %v", res))
	}
	return Counter{Count: res[0], ResetIn: time.Duration(res[1]) * time.Millisecond}, nil
}

func (s *RedisStore) Undo(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := undoScript.Run(ctx, s.rdb, []string{key}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return unavailable("undo", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
