package apierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestFromPayload_MessageFromBody(t *testing.T) {
	e := FromPayload(403, map[string]any{"detail": "forbidden", "error_code": "NO_PERMISSION"})
	if e.Status != 403 {
		t.Fatalf("Status = %d, want 403", e.Status)
	}
	if e.Message != "forbidden" {
		t.Fatalf("Message = %q, want %q", e.Message, "forbidden")
	}
	if e.Code != "NO_PERMISSION" {
		t.Fatalf("Code = %q, want NO_PERMISSION", e.Code)
	}
	if e.Details == nil {
		t.Fatal("Details should carry the original body")
	}
}

func TestFromPayload_GenericMessageWhenBodyYieldsNothing(t *testing.T) {
	cases := []any{nil, "", map[string]any{}, []any{}}
	for _, body := range cases {
		e := FromPayload(500, body)
		if e.Message != "Request failed with status 500" {
			t.Fatalf("Message for body %v = %q", body, e.Message)
		}
	}
}

func TestFromPayload_NonObjectBodyHasNoCode(t *testing.T) {
	e := FromPayload(400, "plain text error")
	if e.Code != "" {
		t.Fatalf("Code = %q, want empty", e.Code)
	}
	if e.Message != "plain text error" {
		t.Fatalf("Message = %q", e.Message)
	}
}

func TestErrorString(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{New(502, CodeInvalidAPIResponse, "bad gateway"), "bad gateway (status 502, code INVALID_API_RESPONSE)"},
		{New(404, "", "not found"), "not found (status 404)"},
		{Wrap("network down", errors.New("dial tcp: refused")), "network down"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("Error() = %q, want %q", got, tc.want)
		}
	}
}

func TestNew_EmptyMessageGetsGeneric(t *testing.T) {
	e := New(418, "", "")
	if e.Message == "" {
		t.Fatal("New must never produce an empty Message")
	}
}

func TestWrap_UnwrapsToCause(t *testing.T) {
	cause := errors.New("underlying")
	e := Wrap("request failed", cause)
	if !errors.Is(e, cause) {
		t.Fatal("errors.Is should see through to the cause")
	}
	wrapped := fmt.Errorf("outer: %w", e)
	var ae *Error
	if !errors.As(wrapped, &ae) {
		t.Fatal("errors.As should find *Error through wrapping")
	}
}

func TestPredicates(t *testing.T) {
	timeout := New(504, CodeExchangeTimeout, "timed out")
	invalid := New(502, CodeInvalidAPIResponse, "html response")
	plain := New(500, "", "boom")

	if !IsTimeout(timeout) || IsTimeout(invalid) || IsTimeout(plain) {
		t.Fatal("IsTimeout misclassified")
	}
	if !IsInvalidAPIResponse(invalid) || IsInvalidAPIResponse(timeout) || IsInvalidAPIResponse(plain) {
		t.Fatal("IsInvalidAPIResponse misclassified")
	}
	if IsTimeout(errors.New("not an apierr")) {
		t.Fatal("IsTimeout should be false for foreign errors")
	}
}
