package config

import "time"

type TokenConfig interface {
	GetExpiryOffset() time.Duration
}

type Token struct{}

var _ TokenConfig = Token{}

// GetExpiryOffset is how long before the literal "exp" claim the client
// already treats an access token as expired.
func (Token) GetExpiryOffset() time.Duration {
	return GetDurationEnv("TOKEN_EXPIRY_OFFSET", 60*time.Second)
}
