// Package memoryhost provides an in-memory exchange.ResultCache for
// single-process hosts and tests. Expired entries are evicted lazily on
// access, so no background goroutine is needed.
package memoryhost

import (
	"context"
	"sync"
	"time"

	"github.com/ggoodman/portalsession-go/exchange"
)

type entry struct {
	res       *exchange.Result
	expiresAt time.Time
}

// Host implements exchange.ResultCache over a mutex-guarded map.
type Host struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// Option configures the Host.
type Option func(*Host)

// WithTimeSource replaces the clock. Tests use this to advance time without
// sleeping.
func WithTimeSource(now func() time.Time) Option {
	return func(h *Host) {
		h.now = now
	}
}

// New creates an empty Host.
func New(opts ...Option) *Host {
	h := &Host{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Get returns the settled result for key, treating expired entries as
// misses.
func (h *Host) Get(_ context.Context, key string) (*exchange.Result, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[key]
	if !ok {
		return nil, false, nil
	}
	if h.now().After(e.expiresAt) {
		delete(h.entries, key)
		return nil, false, nil
	}
	return e.res, true, nil
}

// Put stores a settled result for ttl. Each Put also sweeps any entries that
// have already expired; the map stays bounded by the number of distinct
// callbacks seen within one TTL window.
func (h *Host) Put(_ context.Context, key string, res *exchange.Result, ttl time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for k, e := range h.entries {
		if now.After(e.expiresAt) {
			delete(h.entries, k)
		}
	}
	h.entries[key] = entry{res: res, expiresAt: now.Add(ttl)}
	return nil
}

// Len reports the number of live entries.
func (h *Host) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
