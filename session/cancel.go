package session

import "sync/atomic"

// CancelToken invalidates an in-flight hydration when the scope that started
// it is torn down before the result arrives. It decouples "stop applying the
// result" from "abort the request": the request may still be allowed to
// finish (context cancellation handles aborting), but its outcome must not be
// written into the session.
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken returns a live token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel marks the token. Idempotent and safe from any goroutine.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether the token has been cancelled. A nil token is
// never cancelled.
func (t *CancelToken) Cancelled() bool {
	if t == nil {
		return false
	}
	return t.cancelled.Load()
}
