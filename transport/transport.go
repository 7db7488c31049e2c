// Package transport issues HTTP requests against the portal backend. It owns
// the request conventions every caller relies on: base-URL resolution, JSON
// body encoding, CSRF header attachment for mutating methods, cookie
// credentials, content-type-driven decoding, and normalization of every
// failure into an *apierr.Error.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/ggoodman/portalsession-go/apierr"
	"github.com/ggoodman/portalsession-go/internal/logctx"
)

// DefaultHTTPTimeout bounds any single backend round trip.
const DefaultHTTPTimeout = 30 * time.Second

// CSRFHeader is the header mutating requests carry the anti-forgery token in.
const CSRFHeader = "X-CSRF-Token"

var jsonMediaType = contenttype.NewMediaType("application/json")

// TokenSource supplies the anti-forgery token for mutating requests. A nil
// source or an empty token means no CSRF header is attached. The host
// application decides where the token lives (meta tag, cookie, config).
type TokenSource interface {
	CSRFToken() string
}

// TokenSourceFunc adapts a plain function to a TokenSource.
type TokenSourceFunc func() string

func (f TokenSourceFunc) CSRFToken() string { return f() }

// Client is a backend HTTP client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	csrf       TokenSource
	userAgent  string
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The caller is responsible for the
// client's cookie jar; without one, session cookies will not stick.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCSRF sets the anti-forgery token source consulted for mutating methods.
func WithCSRF(src TokenSource) Option {
	return func(c *Client) {
		c.csrf = src
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a Client rooted at baseURL. Unless WithHTTPClient is used, the
// client gets its own cookie jar so backend session cookies are carried on
// every subsequent request.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar init: %w", err)
		}
		c.httpClient = &http.Client{Timeout: DefaultHTTPTimeout, Jar: jar}
	}

	return c, nil
}

// RequestOptions describe a single request. A nil Body sends no body; string,
// []byte and io.Reader bodies are sent verbatim; anything else is JSON
// encoded with the JSON content type unless the caller already set one.
type RequestOptions struct {
	Method string
	Header http.Header
	Body   any
}

// Request performs a round trip and returns the decoded response body: JSON
// responses decode into generic values (map[string]any, []any, ...), empty
// bodies decode to nil, everything else comes back as a raw string. Any
// non-2xx response and any transport-level failure is an *apierr.Error.
func (c *Client) Request(ctx context.Context, path string, opts *RequestOptions) (any, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx = logctx.WithRequestData(ctx, &logctx.RequestData{
		RequestID: uuid.NewString(),
		Method:    method,
		Path:      path,
	})

	req, err := c.newRequest(ctx, method, path, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "backend request failed", "error", err)
		return nil, apierr.Wrap("request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Wrap("read response body", err)
	}

	c.logger.DebugContext(ctx, "backend request complete",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	body := decodeBody(resp.Header.Get("Content-Type"), raw)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.FromPayload(resp.StatusCode, body)
	}

	// A successful status with an HTML document body means the request never
	// reached the API (reverse proxy misroute, SPA fallback page). Surfacing
	// it as data would poison the session layer.
	if s, ok := body.(string); ok && looksLikeHTMLDocument(s) {
		c.logger.ErrorContext(ctx, "backend returned html for api path", "status", resp.StatusCode)
		return nil, apierr.New(http.StatusBadGateway, apierr.CodeInvalidAPIResponse,
			"Backend returned an unexpected HTML response; the API may be misconfigured")
	}

	return body, nil
}

// Get issues a GET and, when out is non-nil, unmarshals the JSON response
// into it.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with an optional JSON body and, when out is non-nil,
// unmarshals the JSON response into it.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	decoded, err := c.Request(ctx, path, &RequestOptions{Method: method, Body: body})
	if err != nil {
		return err
	}
	if out == nil || decoded == nil {
		return nil
	}
	// Round-trip through json to project the generic decode into the
	// caller's struct. The payloads here are small (user records, URLs).
	raw, err := json.Marshal(decoded)
	if err != nil {
		return apierr.Wrap("encode decoded body", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apierr.Wrap("decode response", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, opts *RequestOptions) (*http.Request, error) {
	var reader io.Reader
	contentType := ""
	switch body := opts.Body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(body)
	case []byte:
		reader = bytes.NewReader(body)
	case io.Reader:
		reader = body
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, apierr.Wrap("encode request body", err)
		}
		reader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolveURL(path), reader)
	if err != nil {
		return nil, apierr.Wrap("build request", err)
	}

	for key, values := range opts.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if methodNeedsCSRF(method) && req.Header.Get(CSRFHeader) == "" && c.csrf != nil {
		if tok := c.csrf.CSRFToken(); tok != "" {
			req.Header.Set(CSRFHeader, tok)
		}
	}

	return req, nil
}

// resolveURL joins a relative path onto the base URL; absolute URLs pass
// through unchanged.
func (c *Client) resolveURL(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

func methodNeedsCSRF(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// decodeBody interprets a response body by its declared media type: JSON
// (including +json suffixes) decodes to generic values, an empty body
// decodes to nil, anything else is returned as text.
func decodeBody(contentTypeHeader string, raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	mt := contenttype.NewMediaType(contentTypeHeader)
	if isJSONMediaType(mt) {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			return decoded
		}
		// Declared JSON but unparseable: fall through to text so the error
		// normalizer and the HTML guard can still see the payload.
	}
	return string(raw)
}

func isJSONMediaType(mt contenttype.MediaType) bool {
	if mt.Type == jsonMediaType.Type && mt.Subtype == jsonMediaType.Subtype {
		return true
	}
	return mt.Type == "application" && strings.HasSuffix(mt.Subtype, "+json")
}

// looksLikeHTMLDocument reports whether a textual body is an HTML page
// rather than API data.
func looksLikeHTMLDocument(body string) bool {
	head := strings.ToLower(strings.TrimSpace(body))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}
