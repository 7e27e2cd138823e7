// Package sessions holds the authenticated-identity state kept client-side:
// the token pair plus the cached current-user snapshot.
package sessions

import "github.com/laagencias/go-panel-auth/users"

// Session is the durable client-side authentication state. It is created on
// a successful login or token exchange, its token pair is replaced atomically
// on refresh, and the whole thing is destroyed on logout.
type Session struct {
	AccessToken  string      `json:"access_token,omitempty"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	User         *users.User `json:"current_user,omitempty"`
}

// Present reports whether a session exists at all.
func (s Session) Present() bool {
	return s.AccessToken != ""
}

// Store is the durable key-value storage for the session. Only the auth
// service writes to it; the request pipeline and token inspector only read.
type Store interface {
	// SetTokens replaces both tokens in one operation.
	SetTokens(accessToken, refreshToken string) error

	// AccessToken returns the stored access token, or "" if absent.
	AccessToken() string

	// RefreshToken returns the stored refresh token, or "" if absent.
	RefreshToken() string

	// SetUser stores the current-user snapshot.
	SetUser(user *users.User) error

	// User returns the stored snapshot, or nil if absent.
	User() *users.User

	// Clear removes tokens and user together. No partial-clear state is
	// observable from other goroutines.
	Clear() error
}
