package redishost

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ggoodman/portalsession-go/exchange/cachetest"
)

func TestRedisHost(t *testing.T) {
	cachetest.Run(t, func(t *testing.T) cachetest.Harness {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })

		return cachetest.Harness{
			Cache: NewWithClient(client, "test:exchange:"),
			// miniredis only expires keys when its clock is advanced.
			Advance: mr.FastForward,
		}
	})
}

func TestRedisHost_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := NewWithClient(client, "portal:exchange:")
	if err := h.Put(context.Background(), "c:s", nil, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !mr.Exists("portal:exchange:c:s") {
		t.Fatalf("expected prefixed key, have %v", mr.Keys())
	}
}

func TestRedisHost_DefaultPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := NewWithClient(client, "")
	if h.keyPrefix != "portal:exchange:" {
		t.Fatalf("keyPrefix = %q", h.keyPrefix)
	}
}
