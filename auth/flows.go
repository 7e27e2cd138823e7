package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/laagencias/go-panel-auth/token"
	"github.com/laagencias/go-panel-auth/users"
)

// RegisterRequest is the payload of POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// Login posts the credentials as form data (the backend expects the email in
// the "username" field). On success both tokens are stored, the streams
// emit, the user snapshot is fetched and the navigator is pointed at the
// role-dependent landing route — unless returnURL is set, which wins.
func (s *Service) Login(ctx context.Context, email, password, returnURL string) (*token.Response, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "[Login] build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Login] request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden {
		// Deliberately generic: the UI must not reveal whether the email exists.
		return nil, InvalidCredentialsErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("[Login] unexpected status %d", resp.StatusCode)
	}

	tokenResponse := &token.Response{}
	if err := json.NewDecoder(resp.Body).Decode(tokenResponse); err != nil {
		return nil, errors.Wrap(err, "[Login] decode token response")
	}

	s.handleAuthSuccess(ctx, tokenResponse, returnURL)
	return tokenResponse, nil
}

// Register creates an account and chains an automatic login with the same
// credentials so the caller ends up authenticated.
func (s *Service) Register(ctx context.Context, registration RegisterRequest) (*users.User, error) {
	resp, err := s.postJSON(ctx, "/auth/register", registration)
	if err != nil {
		return nil, errors.Wrap(err, "[Register] request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, DuplicateAccountErr
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, decodeValidationError(resp.Body)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, errors.Errorf("[Register] unexpected status %d", resp.StatusCode)
	}

	createdUser := &users.User{}
	if err := json.NewDecoder(resp.Body).Decode(createdUser); err != nil {
		return nil, errors.Wrap(err, "[Register] decode user")
	}

	if _, err := s.Login(ctx, registration.Email, registration.Password, ""); err != nil {
		return nil, errors.Wrap(err, "[Register] auto-login after registration")
	}
	return createdUser, nil
}

// LoginWithGoogle exchanges a Google ID token for a session via the backend.
// Post-success flow matches Login.
func (s *Service) LoginWithGoogle(ctx context.Context, idToken, returnURL string) (*token.Response, error) {
	resp, err := s.postJSON(ctx, "/auth/google", map[string]string{"token": idToken})
	if err != nil {
		return nil, errors.Wrap(err, "[LoginWithGoogle] request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrapf(GoogleAuthFailedErr, "[LoginWithGoogle] status %d", resp.StatusCode)
	}

	tokenResponse := &token.Response{}
	if err := json.NewDecoder(resp.Body).Decode(tokenResponse); err != nil {
		return nil, errors.Wrap(err, "[LoginWithGoogle] decode token response")
	}

	s.handleAuthSuccess(ctx, tokenResponse, returnURL)
	return tokenResponse, nil
}

// ForgotPassword requests a reset email. The outcome is masked: whether or
// not the address is registered, the caller sees success, so the form cannot
// be used to enumerate accounts. Only transport failures surface.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	resp, err := s.postJSON(ctx, "/auth/forgot-password", map[string]string{"email": email})
	if err != nil {
		return errors.Wrap(err, "[ForgotPassword] request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn().Int("status", resp.StatusCode).Msg("forgot-password rejected by backend, masked as success")
	}
	return nil
}

// ResetPassword completes a password reset. Masked the same way as
// ForgotPassword.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	resp, err := s.postJSON(ctx, "/auth/reset-password", map[string]string{
		"token":        resetToken,
		"new_password": newPassword,
	})
	if err != nil {
		return errors.Wrap(err, "[ResetPassword] request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn().Int("status", resp.StatusCode).Msg("reset-password rejected by backend, masked as success")
	}
	return nil
}

// RefreshToken posts the stored refresh token and atomically replaces both
// tokens on success. The method is stateless per call; the request pipeline's
// coordinator is what keeps concurrent refreshes down to one.
func (s *Service) RefreshToken(ctx context.Context) (*token.Response, error) {
	refreshToken := s.store.RefreshToken()
	if refreshToken == "" {
		return nil, NoRefreshTokenErr
	}

	resp, err := s.postJSON(ctx, "/auth/refresh", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, errors.Wrap(err, "[RefreshToken] request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrapf(RefreshFailedErr, "[RefreshToken] status %d", resp.StatusCode)
	}

	tokenResponse := &token.Response{}
	if err := json.NewDecoder(resp.Body).Decode(tokenResponse); err != nil {
		return nil, errors.Wrap(err, "[RefreshToken] decode token response")
	}

	if err := s.store.SetTokens(tokenResponse.AccessToken, tokenResponse.RefreshToken); err != nil {
		return nil, errors.Wrap(err, "[RefreshToken] store tokens")
	}

	s.logger.Debug().Msg("token refreshed")
	return tokenResponse, nil
}

// FetchCurrentUser loads GET /users/me with the stored bearer token, caches
// the snapshot and emits it on the current-user stream.
func (s *Service) FetchCurrentUser(ctx context.Context) (*users.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/users/me", nil)
	if err != nil {
		return nil, errors.Wrap(err, "[FetchCurrentUser] build request")
	}
	req.Header.Set("Authorization", "Bearer "+s.store.AccessToken())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[FetchCurrentUser] request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("[FetchCurrentUser] unexpected status %d", resp.StatusCode)
	}

	user := &users.User{}
	if err := json.NewDecoder(resp.Body).Decode(user); err != nil {
		return nil, errors.Wrap(err, "[FetchCurrentUser] decode user")
	}

	if err := s.store.SetUser(user); err != nil {
		return nil, errors.Wrap(err, "[FetchCurrentUser] store user")
	}
	s.currentUser.Set(user)
	return user, nil
}

// handleAuthSuccess stores the token pair, flips the authenticated stream,
// fetches the profile and resolves the landing route. A failed profile fetch
// still lands the user somewhere sensible, matching the dashboard behavior.
func (s *Service) handleAuthSuccess(ctx context.Context, tokenResponse *token.Response, returnURL string) {
	if err := s.store.SetTokens(tokenResponse.AccessToken, tokenResponse.RefreshToken); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist tokens")
	}
	s.isAuthenticated.Set(true)

	user, err := s.FetchCurrentUser(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch current user after login")
		s.navigator.NavigateTo(firstNonEmpty(returnURL, RouteDashboard), nil)
		return
	}

	route := returnURL
	if route == "" {
		if user.IsOperator() {
			route = RouteCalendar
		} else {
			route = RouteDashboard
		}
	}
	s.navigator.NavigateTo(route, nil)
}

func (s *Service) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	return s.httpClient.Do(req)
}

// decodeValidationError maps the backend's field-error list into a
// ValidationError. The list shape is [{loc: [...,"field"], msg: "..."}].
func decodeValidationError(body io.Reader) error {
	var payload struct {
		Detail []struct {
			Loc []any  `json:"loc"`
			Msg string `json:"msg"`
		} `json:"detail"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return &ValidationError{}
	}

	fields := make(map[string]string, len(payload.Detail))
	for _, item := range payload.Detail {
		field := "body"
		if len(item.Loc) > 0 {
			field = fmt.Sprintf("%v", item.Loc[len(item.Loc)-1])
		}
		fields[field] = item.Msg
	}
	return &ValidationError{Fields: fields}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
