package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ggoodman/portalsession-go/apierr"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/api/v1", opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, srv
}

func TestRequest_DecodesJSON(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/things" {
			t.Errorf("path = %q, want /api/v1/things", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(`{"name":"thing"}`))
	}))

	body, err := c.Request(context.Background(), "/things", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	obj, ok := body.(map[string]any)
	if !ok || obj["name"] != "thing" {
		t.Fatalf("decoded body = %#v", body)
	}
}

func TestRequest_EmptyBodyDecodesToNil(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	body, err := c.Request(context.Background(), "/empty", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if body != nil {
		t.Fatalf("body = %#v, want nil", body)
	}
}

func TestRequest_JSONBodyAndContentType(t *testing.T) {
	type payload struct {
		Reason string `json:"reason"`
	}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Reason != "spam" {
			t.Errorf("body decode: %v %+v", err, p)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	_, err := c.Request(context.Background(), "/reports", &RequestOptions{
		Method: http.MethodPost,
		Body:   payload{Reason: "spam"},
	})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
}

func TestRequest_CallerContentTypeWins(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/vnd.custom+json" {
			t.Errorf("Content-Type = %q", ct)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	h := http.Header{}
	h.Set("Content-Type", "application/vnd.custom+json")
	_, err := c.Request(context.Background(), "/custom", &RequestOptions{
		Method: http.MethodPost,
		Header: h,
		Body:   map[string]any{"k": "v"},
	})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
}

func TestRequest_CSRFOnlyOnMutatingMethods(t *testing.T) {
	var gets, posts []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := r.Header.Get(CSRFHeader)
		switch r.Method {
		case http.MethodGet:
			gets = append(gets, tok)
		case http.MethodPost:
			posts = append(posts, tok)
		}
		w.WriteHeader(http.StatusNoContent)
	}), WithCSRF(TokenSourceFunc(func() string { return "tok-123" })))

	ctx := context.Background()
	if _, err := c.Request(ctx, "/read", nil); err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if _, err := c.Request(ctx, "/write", &RequestOptions{Method: http.MethodPost}); err != nil {
		t.Fatalf("POST failed: %v", err)
	}

	if len(gets) != 1 || gets[0] != "" {
		t.Fatalf("GET should not carry CSRF token, got %v", gets)
	}
	if len(posts) != 1 || posts[0] != "tok-123" {
		t.Fatalf("POST should carry CSRF token, got %v", posts)
	}
}

func TestRequest_CallerSuppliedCSRFWins(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := r.Header.Get(CSRFHeader); tok != "caller-token" {
			t.Errorf("token = %q, want caller-token", tok)
		}
		w.WriteHeader(http.StatusNoContent)
	}), WithCSRF(TokenSourceFunc(func() string { return "source-token" })))

	h := http.Header{}
	h.Set(CSRFHeader, "caller-token")
	_, err := c.Request(context.Background(), "/write", &RequestOptions{
		Method: http.MethodPost,
		Header: h,
	})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
}

func TestRequest_CookiesPersistAcrossRequests(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/set":
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
			w.WriteHeader(http.StatusNoContent)
		case "/api/v1/check":
			if cookie, err := r.Cookie("sid"); err != nil || cookie.Value != "abc" {
				t.Errorf("cookie not carried: %v", err)
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	ctx := context.Background()
	if _, err := c.Request(ctx, "/set", nil); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if _, err := c.Request(ctx, "/check", nil); err != nil {
		t.Fatalf("second request failed: %v", err)
	}
}

func TestRequest_ErrorNormalization(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"validation failed","error_code":"VALIDATION_ERROR"}`))
	}))

	_, err := c.Request(context.Background(), "/bad", nil)
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected *apierr.Error, got %T %v", err, err)
	}
	if ae.Status != 422 || ae.Code != "VALIDATION_ERROR" || ae.Message != "validation failed" {
		t.Fatalf("unexpected error: %+v", ae)
	}
}

func TestRequest_GenericMessageForEmptyErrorBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.Request(context.Background(), "/down", nil)
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected *apierr.Error, got %T", err)
	}
	if ae.Message != "Request failed with status 502" {
		t.Fatalf("Message = %q", ae.Message)
	}
}

func TestRequest_HTMLSuccessIsInvalidAPIResponse(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<!doctype html><html><body>portal</body></html>"))
	}))

	_, err := c.Request(context.Background(), "/misrouted", nil)
	if !apierr.IsInvalidAPIResponse(err) {
		t.Fatalf("expected INVALID_API_RESPONSE, got %v", err)
	}
	var ae *apierr.Error
	errors.As(err, &ae)
	if ae.Status != http.StatusBadGateway {
		t.Fatalf("Status = %d, want 502", ae.Status)
	}
}

func TestRequest_PlainTextSuccessIsReturnedAsData(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("pong"))
	}))

	body, err := c.Request(context.Background(), "/ping", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if body != "pong" {
		t.Fatalf("body = %#v, want \"pong\"", body)
	}
}

func TestRequest_TransportFailure(t *testing.T) {
	c, err := New("http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = c.Request(context.Background(), "/unreachable", nil)
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected *apierr.Error, got %T %v", err, err)
	}
	if ae.Status != 0 {
		t.Fatalf("transport failures carry no HTTP status, got %d", ae.Status)
	}
	if ae.Message == "" {
		t.Fatal("Message must be non-empty")
	}
}

func TestResolveURL(t *testing.T) {
	c, err := New("https://portal.example/api/v1/")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	cases := []struct{ in, want string }{
		{"/auth/me", "https://portal.example/api/v1/auth/me"},
		{"auth/me", "https://portal.example/api/v1/auth/me"},
		{"https://elsewhere.example/x", "https://elsewhere.example/x"},
	}
	for _, tc := range cases {
		if got := c.resolveURL(tc.in); got != tc.want {
			t.Fatalf("resolveURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGet_UnmarshalsIntoStruct(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user_id":"u1","is_verified":true}`))
	}))

	var out struct {
		UserID     string `json:"user_id"`
		IsVerified bool   `json:"is_verified"`
	}
	if err := c.Get(context.Background(), "/auth/me", &out); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if out.UserID != "u1" || !out.IsVerified {
		t.Fatalf("out = %+v", out)
	}
}
