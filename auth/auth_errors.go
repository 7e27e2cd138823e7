package auth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	InvalidCredentialsErr = errors.New("invalid credentials")
	NoRefreshTokenErr     = errors.New("no refresh token available")
	RefreshFailedErr      = errors.New("refresh token rejected")
	DuplicateAccountErr   = errors.New("account already exists")
	GoogleAuthFailedErr   = errors.New("google sign-in rejected")
)

// ValidationError carries field-level messages from a rejected registration
// so the form can surface them inline.
type ValidationError struct {
	Fields map[string]string
}

func (ve *ValidationError) Error() string {
	if len(ve.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(ve.Fields))
	for field, msg := range ve.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return "validation failed: " + strings.Join(parts, "; ")
}
