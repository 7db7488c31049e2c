// Package portalsession is the session and authorization runtime for a
// community-portal backend. It establishes an authenticated session once per
// application load, deduplicates and times out the OAuth code exchange that
// completes login, normalizes heterogeneous backend error shapes into a
// single contract, and evaluates the permission predicates that gate every
// protected view and action.
//
// Layers & Roles
//
//	apierr      -> one error shape and the payload normalizer behind it
//	transport   -> HTTP requests with cookies, CSRF, content-type decode
//	session     -> the single process-wide session state machine
//	exchange    -> at-most-once callback exchange with a settled-result cache
//	permissions -> pure predicates over held permission sets
//
// Runtime wires these together from a Config; hosts that need finer control
// can construct the pieces directly.
package portalsession

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ggoodman/portalsession-go/devsession"
	"github.com/ggoodman/portalsession-go/exchange"
	"github.com/ggoodman/portalsession-go/exchange/memoryhost"
	"github.com/ggoodman/portalsession-go/internal/logctx"
	"github.com/ggoodman/portalsession-go/session"
	"github.com/ggoodman/portalsession-go/transport"
)

// Runtime bundles the configured session and authorization components for
// one running application instance.
type Runtime struct {
	Config    Config
	Transport *transport.Client
	Session   *session.Manager
	Client    *session.Client
	Exchange  *exchange.Coordinator

	logger      *slog.Logger
	devOverride bool
}

type runtimeOptions struct {
	logger     *slog.Logger
	httpClient *http.Client
	csrf       transport.TokenSource
	cache      exchange.ResultCache
}

// Option configures the Runtime.
type Option func(*runtimeOptions)

// WithLogger sets the logger shared by every component. It is wrapped with
// the context-enriching handler so request and session attributes appear on
// records automatically.
func WithLogger(logger *slog.Logger) Option {
	return func(o *runtimeOptions) {
		o.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client for the transport.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *runtimeOptions) {
		o.httpClient = httpClient
	}
}

// WithCSRF sets the anti-forgery token source for mutating requests.
func WithCSRF(src transport.TokenSource) Option {
	return func(o *runtimeOptions) {
		o.csrf = src
	}
}

// WithResultCache replaces the in-memory settled-result cache, typically
// with exchange/redishost for multi-replica hosts.
func WithResultCache(cache exchange.ResultCache) Option {
	return func(o *runtimeOptions) {
		o.cache = cache
	}
}

// New builds a Runtime from cfg. The session starts in the unknown state;
// call Hydrate once per application load.
func New(cfg Config, opts ...Option) (*Runtime, error) {
	o := &runtimeOptions{}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = slog.New(logctx.Handler{Handler: logger.Handler()})

	trOpts := []transport.Option{transport.WithLogger(logger)}
	if o.httpClient != nil {
		trOpts = append(trOpts, transport.WithHTTPClient(o.httpClient))
	}
	if o.csrf != nil {
		trOpts = append(trOpts, transport.WithCSRF(o.csrf))
	}
	tr, err := transport.New(cfg.APIBaseURL, trOpts...)
	if err != nil {
		return nil, err
	}

	client := session.NewClient(tr, session.WithClientLogger(logger))
	mgr := session.NewManager(session.WithManagerLogger(logger))

	cache := o.cache
	if cache == nil {
		cache = memoryhost.New()
	}
	coord := exchange.NewCoordinator(client, cache,
		exchange.WithTimeout(cfg.ExchangeTimeout),
		exchange.WithCacheTTL(cfg.ExchangeCacheTTL),
		exchange.WithLogger(logger),
	)

	return &Runtime{
		Config:      cfg,
		Transport:   tr,
		Session:     mgr,
		Client:      client,
		Exchange:    coord,
		logger:      logger,
		devOverride: cfg.devOverrideEnabled(),
	}, nil
}

// HydrateOptions control the once-per-load hydration.
type HydrateOptions struct {
	// OnCallbackRoute skips hydration entirely: the page is completing an
	// OAuth redirect and HandleCallback will establish the session instead.
	// The status stays unknown until then.
	OnCallbackRoute bool

	// Cancel, when non-nil, prevents a result from being applied after the
	// initiating scope is torn down.
	Cancel *session.CancelToken
}

// Hydrate determines whether a backend session already exists and resolves
// the session state accordingly. In a development environment with the
// unlock flag set, the backend is never called and a fully-privileged
// session is applied instead.
func (r *Runtime) Hydrate(ctx context.Context, opts HydrateOptions) {
	if r.devOverride {
		r.applyDevOverride(ctx)
		return
	}
	if opts.OnCallbackRoute {
		r.logger.DebugContext(ctx, "hydration skipped on callback route")
		return
	}
	r.Session.Hydrate(ctx, r.Client, opts.Cancel)
}

func (r *Runtime) applyDevOverride(ctx context.Context) {
	r.logger.Warn("dev session override active; backend hydration disabled",
		"environment", r.Config.Environment)

	if r.Config.DevSessionFixture != "" {
		err := devsession.Watch(ctx, r.Config.DevSessionFixture, r.logger, func(u *session.WireUser) {
			r.Session.CompleteHydration(u)
		})
		if err == nil {
			return
		}
		r.logger.Warn("dev session fixture unavailable; using fixed dev session", "error", err)
	}
	r.Session.CompleteHydration(devsession.User())
}

// LoginURL asks the backend for the provider authorize URL that starts the
// sign-in flow.
func (r *Runtime) LoginURL(ctx context.Context, nextURL string) (string, error) {
	return r.Client.LoginURL(ctx, nextURL)
}

// HandleCallback completes sign-in from an OAuth redirect. On success the
// session becomes authenticated; on failure the session state is left
// untouched and the typed error is returned for the caller to present.
func (r *Runtime) HandleCallback(ctx context.Context, code, state string) error {
	u, err := r.Exchange.ExchangeOnce(ctx, code, state)
	if err != nil {
		return err
	}
	r.Session.CompleteHydration(u)
	return nil
}

// Logout clears the local session immediately and makes a best-effort
// server logout call.
func (r *Runtime) Logout(ctx context.Context) {
	r.Session.Logout(ctx, r.Client)
}
