package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/ggoodman/portalsession-go/transport"
)

// Client performs the backend auth operations. It is a thin mapping from the
// auth endpoints to Go calls; all request conventions (cookies, CSRF,
// normalized errors) live in the transport.
type Client struct {
	transport *transport.Client
	logger    *slog.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithClientLogger sets a custom logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client over the given transport.
func NewClient(t *transport.Client, opts ...ClientOption) *Client {
	c := &Client{
		transport: t,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Me fetches the current user record. Fails (typically with status 401) when
// no backend session exists.
func (c *Client) Me(ctx context.Context) (*WireUser, error) {
	var u WireUser
	if err := c.transport.Get(ctx, "/auth/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

type loginResponse struct {
	AuthorizeURL string `json:"authorize_url"`
}

// LoginURL asks the backend for the provider authorize URL that starts the
// OAuth flow. nextURL is where the user should land after completing login.
func (c *Client) LoginURL(ctx context.Context, nextURL string) (string, error) {
	path := "/auth/discord/login"
	if nextURL != "" {
		path += "?" + url.Values{"next_url": {nextURL}}.Encode()
	}
	var resp loginResponse
	if err := c.transport.Get(ctx, path, &resp); err != nil {
		return "", err
	}
	if resp.AuthorizeURL == "" {
		return "", fmt.Errorf("login response missing authorize_url")
	}
	return resp.AuthorizeURL, nil
}

type callbackResponse struct {
	User *WireUser `json:"user"`
}

// Exchange trades a one-time authorization code and state for a user record.
// The backend treats each code as single-use; callers that may run more than
// once for the same redirect must go through exchange.Coordinator instead of
// calling this directly.
func (c *Client) Exchange(ctx context.Context, code, state string) (*WireUser, error) {
	path := "/auth/discord/callback?" + url.Values{
		"code":  {code},
		"state": {state},
	}.Encode()
	var resp callbackResponse
	if err := c.transport.Get(ctx, path, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, fmt.Errorf("callback response missing user")
	}
	return resp.User, nil
}

// Logout ends the server-side session.
func (c *Client) Logout(ctx context.Context) error {
	return c.transport.Post(ctx, "/auth/logout", nil, nil)
}
