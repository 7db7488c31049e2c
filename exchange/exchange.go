// Package exchange coordinates the OAuth callback exchange so that a
// one-time authorization code is traded against the backend at most once,
// no matter how many times the return page mounts for the same redirect.
//
// Two layers provide the at-most-once semantic:
//
//	singleflight  : concurrent callers for the same (code, state) share one
//	                in-flight backend call
//	ResultCache   : the settled outcome (success or failure) stays available
//	                for a bounded interval so rapid duplicate navigations
//	                observe the same result instead of burning the code again
//
// Implementations of ResultCache live in exchange/memoryhost (single
// process) and exchange/redishost (shared across replicas); cachetest holds
// the conformance suite both must pass.
package exchange

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ggoodman/portalsession-go/apierr"
	"github.com/ggoodman/portalsession-go/session"
)

const (
	// DefaultTimeout bounds how long a caller waits for the exchange before
	// receiving a timeout error. The underlying call is never cancelled by
	// this bound.
	DefaultTimeout = 20 * time.Second

	// DefaultCacheTTL is how long a settled outcome stays observable. Long
	// enough to cover the duplicate-mount window, short enough that a
	// genuinely retried login later is not served a stale result.
	DefaultCacheTTL = 60 * time.Second
)

// Exchanger performs the actual backend exchange call. *session.Client
// implements it.
type Exchanger interface {
	Exchange(ctx context.Context, code, state string) (*session.WireUser, error)
}

// ResultCache stores settled exchange outcomes keyed by "code:state" for a
// TTL. Implementations must treat an expired entry as a miss.
type ResultCache interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Put(ctx context.Context, key string, res *Result, ttl time.Duration) error
}

// Coordinator deduplicates and bounds callback exchanges. Safe for
// concurrent use.
type Coordinator struct {
	exchanger Exchanger
	cache     ResultCache
	group     singleflight.Group

	timeout  time.Duration
	cacheTTL time.Duration
	logger   *slog.Logger
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithTimeout overrides the caller-facing exchange timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithCacheTTL overrides how long settled outcomes remain observable.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Coordinator) {
		c.cacheTTL = d
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator builds a Coordinator over an exchanger and a settled-result
// cache.
func NewCoordinator(ex Exchanger, cache ResultCache, opts ...Option) *Coordinator {
	c := &Coordinator{
		exchanger: ex,
		cache:     cache,
		timeout:   DefaultTimeout,
		cacheTTL:  DefaultCacheTTL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExchangeOnce trades (code, state) for a user record, guaranteeing at most
// one outstanding backend call per pair. A caller whose wait exceeds the
// timeout gets an EXCHANGE_TIMEOUT error, but the backend call keeps running
// and its eventual outcome still lands in the cache for later duplicates.
func (c *Coordinator) ExchangeOnce(ctx context.Context, code, state string) (*session.WireUser, error) {
	if code == "" || state == "" {
		return nil, apierr.New(http.StatusBadRequest, "",
			"Callback is missing the code or state parameter")
	}
	key := code + ":" + state

	if res, ok := c.cachedResult(ctx, key); ok {
		c.logger.DebugContext(ctx, "callback exchange served from settled cache")
		return res.User, res.Err()
	}

	resCh := c.group.DoChan(key, func() (any, error) {
		return c.doExchange(ctx, key, code, state)
	})

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case r := <-resCh:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*session.WireUser), nil
	case <-timer.C:
		c.logger.WarnContext(ctx, "callback exchange timed out", "timeout", c.timeout)
		return nil, apierr.New(http.StatusGatewayTimeout, apierr.CodeExchangeTimeout,
			"Sign-in took too long to complete; please try signing in again")
	case <-ctx.Done():
		return nil, apierr.Wrap("callback exchange aborted", ctx.Err())
	}
}

func (c *Coordinator) cachedResult(ctx context.Context, key string) (*Result, bool) {
	res, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		// A broken cache must not block sign-in.
		c.logger.WarnContext(ctx, "exchange result cache read failed", "error", err)
		return nil, false
	}
	return res, ok
}

// doExchange runs inside singleflight. It detaches from the caller's context
// so that a timed-out or departed caller cannot cancel the exchange out from
// under later duplicates.
func (c *Coordinator) doExchange(ctx context.Context, key, code, state string) (*session.WireUser, error) {
	callCtx := context.WithoutCancel(ctx)

	u, err := c.exchanger.Exchange(callCtx, code, state)

	res := resultOf(u, err)
	if perr := c.cache.Put(callCtx, key, res, c.cacheTTL); perr != nil {
		c.logger.WarnContext(ctx, "exchange result cache write failed", "error", perr)
	}

	if err != nil {
		return nil, err
	}
	return u, nil
}
