// Package redishost provides a Redis-backed exchange.ResultCache so that
// replicas of a multi-instance frontend host share settled callback
// outcomes. In-flight deduplication stays per-process; Redis only widens the
// window in which a duplicate navigation lands on a cached result instead of
// re-spending the authorization code.
package redishost

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/ggoodman/portalsession-go/exchange"
)

// Config for the Redis-backed result cache. Defaults can be loaded via
// envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: PORTAL_REDIS_ADDR
	RedisAddr string `env:"PORTAL_REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: PORTAL_EXCHANGE_KEY_PREFIX
	KeyPrefix string `env:"PORTAL_EXCHANGE_KEY_PREFIX,default=portal:exchange:"`
}

// Host implements exchange.ResultCache on Redis. Expiry is delegated to
// Redis key TTLs.
type Host struct {
	client    redis.UniversalClient
	keyPrefix string
}

// New connects a Host using cfg, verifying the connection with a ping.
func New(cfg Config) (*Host, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(cl, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing Redis client. The caller keeps ownership
// of the client's lifecycle.
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Host {
	if keyPrefix == "" {
		keyPrefix = "portal:exchange:"
	}
	return &Host{client: client, keyPrefix: keyPrefix}
}

// NewFromEnv builds a Host using envdecode to populate Config.
func NewFromEnv() (*Host, error) {
	var cfg Config
	// Use envdecode; defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Close closes the underlying Redis client.
func (h *Host) Close() error { return h.client.Close() }

func (h *Host) cacheKey(key string) string { return h.keyPrefix + key }

// Get returns the settled result for key, or a miss once the Redis TTL has
// lapsed.
func (h *Host) Get(ctx context.Context, key string) (*exchange.Result, bool, error) {
	raw, err := h.client.Get(ctx, h.cacheKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var res exchange.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	return &res, true, nil
}

// Put stores a settled result under the Redis TTL.
func (h *Host) Put(ctx context.Context, key string, res *exchange.Result, ttl time.Duration) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := h.client.Set(ctx, h.cacheKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
