package token

// Response is the token pair returned by the login, google and refresh
// endpoints (RFC 6749 token response shape).
type Response struct {
	// AccessToken is the short-lived JWT sent as "Authorization: Bearer <token>".
	AccessToken string `json:"access_token"`

	// RefreshToken is the long-lived opaque credential used solely to obtain
	// a new access token. Rotates on every refresh.
	RefreshToken string `json:"refresh_token"`

	// TokenType is always "bearer" for this backend.
	TokenType string `json:"token_type,omitempty"`
}
