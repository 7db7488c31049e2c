// Package cachetest holds the conformance suite every exchange.ResultCache
// implementation must pass.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/ggoodman/portalsession-go/exchange"
	"github.com/ggoodman/portalsession-go/session"
)

// Harness bundles a cache under test with a way to advance its clock.
// Implementations with a real clock may pass a time.Sleep-based Advance, but
// fake clocks keep the suite fast.
type Harness struct {
	Cache   exchange.ResultCache
	Advance func(d time.Duration)
}

// Factory creates a fresh harness per test.
type Factory func(t *testing.T) Harness

// Run runs the complete result cache suite against the provided factory.
func Run(t *testing.T, factory Factory) {
	t.Run("MissOnUnknownKey", func(t *testing.T) {
		testMissOnUnknownKey(t, factory)
	})
	t.Run("SuccessRoundTrip", func(t *testing.T) {
		testSuccessRoundTrip(t, factory)
	})
	t.Run("FailureRoundTrip", func(t *testing.T) {
		testFailureRoundTrip(t, factory)
	})
	t.Run("OverwriteReplacesResult", func(t *testing.T) {
		testOverwriteReplacesResult(t, factory)
	})
	t.Run("ExpiresAfterTTL", func(t *testing.T) {
		testExpiresAfterTTL(t, factory)
	})
	t.Run("KeysAreIndependent", func(t *testing.T) {
		testKeysAreIndependent(t, factory)
	})
}

func testMissOnUnknownKey(t *testing.T, factory Factory) {
	h := factory(t)
	ctx := context.Background()

	res, ok, err := h.Cache.Get(ctx, "code:state")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Fatalf("Expected miss for unknown key, got %+v", res)
	}
}

func testSuccessRoundTrip(t *testing.T, factory Factory) {
	h := factory(t)
	ctx := context.Background()

	in := &exchange.Result{User: &session.WireUser{
		UserID:      "u1",
		Username:    "someone",
		IsVerified:  true,
		Permissions: []string{"posts.read", "posts.write"},
	}}
	if err := h.Cache.Put(ctx, "c1:s1", in, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	out, ok, err := h.Cache.Get(ctx, "c1:s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected hit after Put")
	}
	if out.Err() != nil {
		t.Fatalf("Expected success result, got error %v", out.Err())
	}
	if out.User == nil || out.User.UserID != "u1" {
		t.Fatalf("Expected user u1, got %+v", out.User)
	}
	if len(out.User.Permissions) != 2 {
		t.Fatalf("Expected permissions to round-trip, got %v", out.User.Permissions)
	}
}

func testFailureRoundTrip(t *testing.T, factory Factory) {
	h := factory(t)
	ctx := context.Background()

	in := &exchange.Result{Failure: &exchange.Failure{
		Status:  400,
		Code:    "INVALID_GRANT",
		Message: "authorization code already used",
	}}
	if err := h.Cache.Put(ctx, "c2:s2", in, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	out, ok, err := h.Cache.Get(ctx, "c2:s2")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected hit after Put")
	}
	if out.User != nil {
		t.Fatalf("Expected no user on failure result, got %+v", out.User)
	}
	ferr := out.Err()
	if ferr == nil {
		t.Fatal("Expected failure result to reconstruct an error")
	}
	if got := ferr.Error(); got == "" {
		t.Fatal("Expected non-empty error message")
	}
}

func testOverwriteReplacesResult(t *testing.T, factory Factory) {
	h := factory(t)
	ctx := context.Background()

	first := &exchange.Result{Failure: &exchange.Failure{Message: "first"}}
	second := &exchange.Result{User: &session.WireUser{UserID: "u2"}}

	if err := h.Cache.Put(ctx, "c3:s3", first, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := h.Cache.Put(ctx, "c3:s3", second, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	out, ok, err := h.Cache.Get(ctx, "c3:s3")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected hit after Put")
	}
	if out.User == nil || out.User.UserID != "u2" {
		t.Fatalf("Expected second result to win, got %+v", out)
	}
}

func testExpiresAfterTTL(t *testing.T, factory Factory) {
	h := factory(t)
	ctx := context.Background()

	in := &exchange.Result{User: &session.WireUser{UserID: "u3"}}
	if err := h.Cache.Put(ctx, "c4:s4", in, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	h.Advance(30 * time.Second)
	if _, ok, err := h.Cache.Get(ctx, "c4:s4"); err != nil || !ok {
		t.Fatalf("Expected hit before TTL lapsed (ok=%v err=%v)", ok, err)
	}

	h.Advance(31 * time.Second)
	if _, ok, err := h.Cache.Get(ctx, "c4:s4"); err != nil || ok {
		t.Fatalf("Expected miss after TTL lapsed (ok=%v err=%v)", ok, err)
	}
}

func testKeysAreIndependent(t *testing.T, factory Factory) {
	h := factory(t)
	ctx := context.Background()

	if err := h.Cache.Put(ctx, "c5:s5", &exchange.Result{User: &session.WireUser{UserID: "a"}}, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := h.Cache.Put(ctx, "c5:s6", &exchange.Result{User: &session.WireUser{UserID: "b"}}, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	out, ok, err := h.Cache.Get(ctx, "c5:s5")
	if err != nil || !ok {
		t.Fatalf("Expected hit (ok=%v err=%v)", ok, err)
	}
	if out.User.UserID != "a" {
		t.Fatalf("Expected user a, got %q", out.User.UserID)
	}
}
