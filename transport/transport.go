// Package transport is the cross-cutting request pipeline: an
// http.RoundTripper that attaches the stored bearer token to every outgoing
// API call and, on a 401, coordinates a single token refresh shared by all
// concurrently failing requests before replaying each of them exactly once.
package transport

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/laagencias/go-panel-auth/auth"
	"github.com/laagencias/go-panel-auth/notify"
	"github.com/laagencias/go-panel-auth/sessions"
	"github.com/laagencias/go-panel-auth/token"
)

// SessionManager is the slice of the auth service the pipeline needs:
// one refresh call and one way to drop the session when refresh is hopeless.
type SessionManager interface {
	RefreshToken(ctx context.Context) (*token.Response, error)
	ClearAuthState()
}

// sessionExpiredMessage is shown once when a refresh fails terminally.
const sessionExpiredMessage = "Your session has expired. Please log in again."

// Transport implements http.RoundTripper. Each Transport owns its own
// refresh coordinator, so independent instances are independently testable —
// no package-level flags.
type Transport struct {
	next           http.RoundTripper
	store          sessions.Store
	sessionManager SessionManager
	navigator      auth.Navigator
	notifier       *notify.Notifier
	logger         zerolog.Logger
	metrics        *Metrics

	refreshGroup singleflight.Group
}

var _ http.RoundTripper = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithNext sets the underlying RoundTripper (default http.DefaultTransport).
func WithNext(next http.RoundTripper) Option {
	return func(t *Transport) {
		t.next = next
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithMetrics attaches pipeline counters.
func WithMetrics(m *Metrics) Option {
	return func(t *Transport) {
		t.metrics = m
	}
}

// New creates the pipeline around a session store and its collaborators.
func New(store sessions.Store, sessionManager SessionManager, navigator auth.Navigator, notifier *notify.Notifier, options ...Option) *Transport {
	t := &Transport{
		next:           http.DefaultTransport,
		store:          store,
		sessionManager: sessionManager,
		navigator:      navigator,
		notifier:       notifier,
		logger:         zerolog.Nop(),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// RoundTrip attaches the bearer token, forwards the request, and recovers a
// single 401 per request via the shared refresh.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	attachedToken := t.store.AccessToken()

	outbound := req
	if attachedToken != "" {
		outbound = cloneWithToken(req, attachedToken)
	}

	resp, err := t.next.RoundTrip(outbound)
	if err != nil {
		t.metrics.IncRequest("network_error")
		return resp, err
	}

	if resp.StatusCode != http.StatusUnauthorized || attachedToken == "" {
		t.metrics.IncRequest(outcomeFor(resp.StatusCode))
		return resp, nil
	}

	// A 401 from the login or refresh endpoints is terminal: refreshing in
	// response to it would loop forever.
	if isAuthEndpoint(req.URL.Path) {
		t.metrics.IncRequest("unauthorized")
		return resp, nil
	}

	// A request whose body cannot be rebuilt cannot be replayed.
	if req.Body != nil && req.GetBody == nil {
		t.logger.Warn().Str("url", req.URL.Path).Msg("401 on non-replayable request, not retrying")
		t.metrics.IncRequest("unauthorized")
		return resp, nil
	}

	drainAndClose(resp)

	newToken, err := t.refreshedToken(req.Context(), attachedToken)
	if err != nil {
		t.metrics.IncRequest("unauthorized")
		return nil, err
	}

	retry, err := replayableClone(req, newToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Transport.RoundTrip] rebuild request body")
	}

	retryResp, err := t.next.RoundTrip(retry)
	if err != nil {
		t.metrics.IncRequest("network_error")
		return retryResp, err
	}
	t.metrics.IncRequest("retried_" + outcomeFor(retryResp.StatusCode))
	return retryResp, nil
}

// refreshedToken returns the access token every 401-failed request must
// retry with. Concurrent callers share one refresh; callers whose token is
// already stale against the store skip the refresh entirely.
func (t *Transport) refreshedToken(ctx context.Context, attachedToken string) (string, error) {
	// Someone else already rotated the tokens since this request went out.
	if current := t.store.AccessToken(); current != "" && current != attachedToken {
		return current, nil
	}

	result, err, shared := t.refreshGroup.Do("refresh", func() (any, error) {
		return t.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	if shared {
		t.logger.Debug().Msg("request joined in-flight token refresh")
	}
	return result.(string), nil
}

// refresh runs at most once per in-flight window. The forced-logout side
// effects live here so N waiting requests produce one notice, one clear and
// one redirect.
func (t *Transport) refresh(ctx context.Context) (string, error) {
	// The refresh outcome is shared by every queued request, so it must not
	// die with the one caller that happened to initiate it.
	refreshCtx := context.WithoutCancel(ctx)

	tokenResponse, err := t.sessionManager.RefreshToken(refreshCtx)
	if err != nil {
		t.metrics.IncRefresh("failure")
		if stderrors.Is(err, auth.RefreshFailedErr) || stderrors.Is(err, auth.NoRefreshTokenErr) {
			t.forceLogout()
		}
		return "", err
	}

	t.metrics.IncRefresh("success")
	return tokenResponse.AccessToken, nil
}

// forceLogout clears the session, warns the user once and redirects to the
// sign-in route carrying the interrupted route as returnUrl — unless the
// user is already on an auth page.
func (t *Transport) forceLogout() {
	t.metrics.IncForcedLogout()
	t.logger.Warn().Msg("token refresh failed, clearing session")

	t.notifier.Warning(sessionExpiredMessage, notify.DefaultErrorDuration)

	currentRoute := t.navigator.CurrentRoute()
	t.sessionManager.ClearAuthState()

	if strings.Contains(currentRoute, auth.RouteSignIn) || strings.Contains(currentRoute, auth.RouteSignUp) {
		return
	}
	query := url.Values{}
	if currentRoute != "" {
		query.Set(auth.ReturnURLParam, currentRoute)
	}
	t.navigator.NavigateTo(auth.RouteSignIn, query)
}

func cloneWithToken(req *http.Request, accessToken string) *http.Request {
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+accessToken)
	return cloned
}

// replayableClone rebuilds the request for its single retry, with a fresh
// body when one exists.
func replayableClone(req *http.Request, accessToken string) (*http.Request, error) {
	cloned := cloneWithToken(req, accessToken)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		cloned.Body = body
	}
	return cloned, nil
}

func isAuthEndpoint(path string) bool {
	return strings.Contains(path, "/auth/login") || strings.Contains(path, "/auth/refresh")
}

func drainAndClose(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func outcomeFor(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "ok"
	case status == http.StatusUnauthorized:
		return "unauthorized"
	default:
		return "error"
	}
}
