// Package token decodes bearer tokens for client-side expiry handling and
// defines the wire types of the token endpoints.
package token

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// DefaultExpiryOffset is how long before the literal "exp" a token is already
// treated as expired, so a request is never raced against server clock skew.
const DefaultExpiryOffset = 60 * time.Second

// MalformedTokenErr is returned by Decode for anything that is not a
// three-segment JWT with a JSON payload.
var MalformedTokenErr = errors.New("malformed token")

// Payload holds the claims the client cares about. The signature is never
// verified here: this is expiry/display logic only, the backend remains the
// trust boundary.
type Payload struct {
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat,omitempty"`
	ExpiresAt int64  `json:"exp"`
}

// Decode parses the token's claims without verifying its signature.
func Decode(rawToken string) (*Payload, error) {
	if rawToken == "" {
		return nil, MalformedTokenErr
	}

	unverified, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(MalformedTokenErr, err.Error())
	}

	claims, ok := unverified.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.Wrap(MalformedTokenErr, "error extracting claims")
	}

	payload := &Payload{}
	payload.Subject, _ = claims["sub"].(string)
	if iat, ok := claims["iat"].(float64); ok {
		payload.IssuedAt = int64(iat)
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, errors.Wrap(MalformedTokenErr, "missing exp claim")
	}
	payload.ExpiresAt = int64(exp)

	return payload, nil
}

// IsExpired reports whether the token expires within offset from now.
// Absent or malformed tokens are always expired.
func IsExpired(rawToken string, offset time.Duration) bool {
	payload, err := Decode(rawToken)
	if err != nil {
		return true
	}
	return payload.ExpiresAt < NowTimeFunc().Add(offset).Unix()
}

// ExpirationDate returns the token's expiry instant.
func ExpirationDate(rawToken string) (time.Time, error) {
	payload, err := Decode(rawToken)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(payload.ExpiresAt, 0), nil
}

// RemainingTime returns the time until expiry, never negative.
func RemainingTime(rawToken string) time.Duration {
	payload, err := Decode(rawToken)
	if err != nil {
		return 0
	}
	remaining := time.Unix(payload.ExpiresAt, 0).Sub(NowTimeFunc())
	if remaining < 0 {
		return 0
	}
	return remaining
}
