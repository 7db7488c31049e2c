package portalsession

import (
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the environment surface of the runtime. All values can be
// populated from the environment via ConfigFromEnv or set directly in code.
type Config struct {
	// APIBaseURL is the root the backend API is served under.
	// ENV: PORTAL_API_BASE_URL
	APIBaseURL string `env:"PORTAL_API_BASE_URL,default=http://localhost:8000/api/v1"`

	// Environment names the deployment environment. Anything other than
	// "production" counts as a development environment.
	// ENV: PORTAL_ENV
	Environment string `env:"PORTAL_ENV,default=development"`

	// UnlockAllPermissions short-circuits hydration to a fixed
	// fully-privileged session without calling the backend. Honored only
	// outside production. ENV: PORTAL_DEV_UNLOCK
	UnlockAllPermissions bool `env:"PORTAL_DEV_UNLOCK,default=false"`

	// DevSessionFixture optionally points at a JSON user-record file that
	// replaces the fixed dev session, hot-reloaded on change.
	// ENV: PORTAL_DEV_SESSION_FIXTURE
	DevSessionFixture string `env:"PORTAL_DEV_SESSION_FIXTURE,default="`

	// ExchangeTimeout bounds how long a callback exchange caller waits.
	// ENV: PORTAL_EXCHANGE_TIMEOUT
	ExchangeTimeout time.Duration `env:"PORTAL_EXCHANGE_TIMEOUT,default=20s"`

	// ExchangeCacheTTL is how long settled exchange outcomes stay
	// observable to duplicate callers. ENV: PORTAL_EXCHANGE_CACHE_TTL
	ExchangeCacheTTL time.Duration `env:"PORTAL_EXCHANGE_CACHE_TTL,default=60s"`
}

// ConfigFromEnv populates a Config from the environment, applying the
// struct-tag defaults for anything unset.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProduction reports whether the configured environment is production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// devOverrideEnabled reports whether the unlock flag is honored: never in
// production, regardless of how the flag is set.
func (c Config) devOverrideEnabled() bool {
	return c.UnlockAllPermissions && !c.IsProduction()
}
