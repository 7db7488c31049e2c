package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ggoodman/portalsession-go/internal/logctx"
)

// Manager owns the process-wide Session. All transitions go through its
// methods; readers use Snapshot or Subscribe. Safe for concurrent use, but
// there is intentionally a single Manager per running application.
type Manager struct {
	mu      sync.RWMutex
	current Session

	subscribersMu sync.Mutex
	subscribers   map[chan Session]struct{}

	logger *slog.Logger
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets a custom logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager in the unknown state.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		current:     emptySession(StatusUnknown),
		subscribers: make(map[chan Session]struct{}),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns a consistent copy of the current session. Mutating the
// returned value does not affect the Manager's state.
func (m *Manager) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSession(m.current)
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Status
}

// Subscribe registers for session transitions. Each transition delivers a
// snapshot on the returned channel; a slow consumer only ever misses
// intermediate states, never the latest one. The returned func unsubscribes
// and closes the channel.
func (m *Manager) Subscribe() (<-chan Session, func()) {
	ch := make(chan Session, 1)

	m.subscribersMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subscribersMu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.subscribersMu.Lock()
			delete(m.subscribers, ch)
			m.subscribersMu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}

// BeginHydration marks the initial identity check as in flight. Idempotent.
func (m *Manager) BeginHydration() {
	m.transition(func(cur Session) Session {
		cur.Status = StatusHydrating
		return cur
	})
}

// CompleteHydration applies a backend user record (or nil) to the session:
// authenticated when a user is present, unauthenticated otherwise.
func (m *Manager) CompleteHydration(u *WireUser) {
	next := mapSession(u)
	m.transition(func(Session) Session {
		return next
	})
}

// FailHydration resolves a failed identity check as unauthenticated. "Could
// not determine identity" is never an error state visible to the rest of the
// application.
func (m *Manager) FailHydration() {
	m.transition(func(Session) Session {
		return emptySession(StatusUnauthenticated)
	})
}

// Clear resets the session to unauthenticated with no user and no
// permissions. Used on explicit logout regardless of whether the server-side
// logout succeeded: the local session is never more trustworthy than the
// user's intent to leave.
func (m *Manager) Clear() {
	m.transition(func(Session) Session {
		return emptySession(StatusUnauthenticated)
	})
}

// Hydrate runs the initial identity check: Begin, fetch /auth/me, then
// Complete or Fail. Any fetch error, including 401 and transport failures,
// resolves to unauthenticated; Hydrate never returns an error because
// hydration failure is an ordinary outcome, not a fault. A cancelled token
// prevents a stale result from being applied after the initiating scope has
// been torn down.
func (m *Manager) Hydrate(ctx context.Context, src UserFetcher, tok *CancelToken) {
	m.BeginHydration()

	u, err := src.Me(ctx)
	if tok.Cancelled() {
		m.logger.DebugContext(ctx, "hydration result discarded: scope cancelled")
		return
	}
	if err != nil {
		m.logger.InfoContext(ctx, "hydration resolved unauthenticated", "error", err)
		m.FailHydration()
		return
	}
	m.CompleteHydration(u)
}

// Logout clears the local session immediately and then makes a best-effort
// server logout call. A server failure is logged and otherwise ignored.
func (m *Manager) Logout(ctx context.Context, src LogoutCaller) {
	m.Clear()
	if err := src.Logout(ctx); err != nil {
		m.logger.WarnContext(ctx, "server logout failed; local session already cleared", "error", err)
	}
}

// UserFetcher is the part of Client that Hydrate depends on.
type UserFetcher interface {
	Me(ctx context.Context) (*WireUser, error)
}

// LogoutCaller is the part of Client that Logout depends on.
type LogoutCaller interface {
	Logout(ctx context.Context) error
}

func (m *Manager) transition(apply func(Session) Session) {
	m.mu.Lock()
	prev := m.current.Status
	m.current = apply(cloneSession(m.current))
	next := cloneSession(m.current)
	m.mu.Unlock()

	if prev != next.Status {
		m.logger.Debug("session transition",
			"from", string(prev), "to", string(next.Status))
	}
	m.broadcast(next)
}

// broadcast fans a snapshot out to subscribers without blocking: when a
// subscriber's buffer is full, the stale snapshot is replaced by the new one.
func (m *Manager) broadcast(s Session) {
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()

	for ch := range m.subscribers {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

func cloneSession(s Session) Session {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	out.RoleIDs = make([]string, len(s.RoleIDs))
	copy(out.RoleIDs, s.RoleIDs)
	out.Permissions = s.Permissions.Clone()
	return out
}

// ContextWithStatus attaches the manager's current status to the context for
// log enrichment.
func (m *Manager) ContextWithStatus(ctx context.Context) context.Context {
	return logctx.WithSessionStatus(ctx, string(m.Status()))
}
