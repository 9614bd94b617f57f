package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisConfigDefaults(t *testing.T) {
	opts := RedisConfig{Addr: "localhost:6379"}.Options()
	if opts.MaxRetries != 1 {
		t.Fatalf("expected a single bounded retry, got %d", opts.MaxRetries)
	}
	if opts.MaxRetryBackoff > 100*time.Millisecond {
		t.Fatalf("retry backoff must stay short, got %s", opts.MaxRetryBackoff)
	}
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := OpenRedis(context.Background(), RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rdb.Close()

	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
