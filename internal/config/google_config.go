package config

type GoogleConfig interface {
	GetGoogleClientID() string
	GetGoogleClientSecret() string
	GetOAuthListenAddr() string
}

type Google struct{}

var _ GoogleConfig = Google{}

func (Google) GetGoogleClientID() string {
	return GetEnv("GOOGLE_CLIENT_ID", "")
}

func (Google) GetGoogleClientSecret() string {
	return GetEnv("GOOGLE_CLIENT_SECRET", "")
}

// GetOAuthListenAddr is the loopback address the Google sign-in flow listens
// on for the authorization-code callback.
func (Google) GetOAuthListenAddr() string {
	return GetEnv("OAUTH_LISTEN_ADDR", "127.0.0.1:8765")
}
