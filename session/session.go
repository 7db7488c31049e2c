// Package session owns the single process-wide authentication state for a
// portal frontend host. A Manager holds the current Session and is the only
// writer; readers take snapshots or subscribe to transitions. The Client
// performs the backend operations (hydrate, login URL, callback exchange,
// logout) that feed the Manager.
//
// Lifecycle
//
//	unknown -> hydrating -> authenticated | unauthenticated
//	authenticated -> unauthenticated (logout)
//
// Hydration runs once per application load. A load that lands on the OAuth
// return route skips hydration entirely; the callback flow completes the
// session instead, avoiding a race between "check existing session" and
// "establish new session from this callback".
package session

import (
	"github.com/ggoodman/portalsession-go/permissions"
)

// Status is the authentication state of the running application.
type Status string

const (
	// StatusUnknown is the initial state before any hydration attempt.
	StatusUnknown Status = "unknown"
	// StatusHydrating means the initial identity check is in flight.
	StatusHydrating Status = "hydrating"
	// StatusAuthenticated means a backend session exists for a known user.
	StatusAuthenticated Status = "authenticated"
	// StatusUnauthenticated means no backend session exists.
	StatusUnauthenticated Status = "unauthenticated"
)

// User is the session view of the authenticated principal.
type User struct {
	UserID        string
	DiscordUserID string
	Username      string
	AvatarURL     string
	AccountName   string
	IsVerified    bool
}

// Session is the authentication state plus the authorization material every
// protected view reads. Permissions and IsOwner are only ever replaced
// wholesale from a backend user record, never mutated in place.
type Session struct {
	Status      Status
	User        *User
	RoleIDs     []string
	Permissions permissions.Set
	IsOwner     bool
	IsVerified  bool
}

// Can reports whether the session holds every one of the given permission
// keys. Owners pass unconditionally.
func (s Session) Can(keys ...string) bool {
	return permissions.HasAll(permissions.NewSet(keys...), s.Permissions, s.IsOwner)
}

// CanAny reports whether the session holds at least one of the given
// permission keys. Owners pass unconditionally.
func (s Session) CanAny(keys ...string) bool {
	return permissions.HasAny(permissions.NewSet(keys...), s.Permissions, s.IsOwner)
}

// Satisfies evaluates a declarative permission requirement against the
// session.
func (s Session) Satisfies(req permissions.Requirement) bool {
	return req.Satisfied(s.Permissions, s.IsOwner)
}

// WireUser mirrors the user record the backend returns from /auth/me and the
// callback exchange.
type WireUser struct {
	UserID        string   `json:"user_id"`
	DiscordUserID string   `json:"discord_user_id"`
	Username      string   `json:"username"`
	AvatarURL     string   `json:"avatar_url,omitempty"`
	AccountName   string   `json:"account_name,omitempty"`
	IsVerified    bool     `json:"is_verified"`
	RoleIDs       []string `json:"role_ids,omitempty"`
	Permissions   []string `json:"permissions,omitempty"`
	IsOwner       bool     `json:"is_owner,omitempty"`
}

// mapSession projects a backend user record into Session shape. Missing
// role/permission lists become empty, is_owner defaults to false, and the
// verified flag is copied to both the nested user and the session level.
func mapSession(u *WireUser) Session {
	if u == nil {
		return emptySession(StatusUnauthenticated)
	}
	roleIDs := make([]string, len(u.RoleIDs))
	copy(roleIDs, u.RoleIDs)
	return Session{
		Status: StatusAuthenticated,
		User: &User{
			UserID:        u.UserID,
			DiscordUserID: u.DiscordUserID,
			Username:      u.Username,
			AvatarURL:     u.AvatarURL,
			AccountName:   u.AccountName,
			IsVerified:    u.IsVerified,
		},
		RoleIDs:     roleIDs,
		Permissions: permissions.NewSet(u.Permissions...),
		IsOwner:     u.IsOwner,
		IsVerified:  u.IsVerified,
	}
}

func emptySession(status Status) Session {
	return Session{
		Status:      status,
		RoleIDs:     []string{},
		Permissions: permissions.NewSet(),
	}
}
