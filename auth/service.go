// Package auth owns the client's authenticated session: it performs the
// login, registration, refresh and logout calls against the backend, is the
// only writer of the session store, and publishes the current-user and
// is-authenticated streams the rest of the client reacts to.
package auth

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/laagencias/go-panel-auth/internal/broadcast"
	"github.com/laagencias/go-panel-auth/sessions"
	"github.com/laagencias/go-panel-auth/token"
	"github.com/laagencias/go-panel-auth/users"
)

// Service is the auth session manager.
type Service struct {
	baseURL      string
	httpClient   *http.Client
	store        sessions.Store
	navigator    Navigator
	logger       zerolog.Logger
	nowTime      func() time.Time
	expiryOffset time.Duration

	currentUser     *broadcast.Cell[*users.User]
	isAuthenticated *broadcast.Cell[bool]
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithHTTPClient sets the HTTP client used for the auth endpoints. It must
// NOT be a client routed through the 401-retry pipeline; the pipeline calls
// back into this service.
func WithHTTPClient(client *http.Client) ServiceOption {
	return func(s *Service) {
		s.httpClient = client
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithExpiryOffset sets how early a token counts as expired.
func WithExpiryOffset(offset time.Duration) ServiceOption {
	return func(s *Service) {
		s.expiryOffset = offset
	}
}

// NewService initialises the session manager. The streams are seeded from
// the store so a session persisted by a previous process is visible to
// subscribers immediately.
func NewService(baseURL string, store sessions.Store, navigator Navigator, options ...ServiceOption) (*Service, error) {
	if baseURL == "" {
		return nil, errors.New("[NewService] baseURL is required")
	}
	if store == nil {
		return nil, errors.New("[NewService] store is required")
	}
	if navigator == nil {
		return nil, errors.New("[NewService] navigator is required")
	}

	s := &Service{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		store:        store,
		navigator:    navigator,
		logger:       zerolog.Nop(),
		nowTime:      time.Now,
		expiryOffset: token.DefaultExpiryOffset,
	}
	for _, opt := range options {
		opt(s)
	}

	s.currentUser = broadcast.NewCell(store.User())
	s.isAuthenticated = broadcast.NewCell(store.AccessToken() != "")

	return s, nil
}

// CurrentUser is the replayed current-user stream. Nil means anonymous.
func (s *Service) CurrentUser() *broadcast.Cell[*users.User] {
	return s.currentUser
}

// IsAuthenticated is the replayed authentication-state stream.
func (s *Service) IsAuthenticated() *broadcast.Cell[bool] {
	return s.isAuthenticated
}

// CurrentUserValue returns the latest snapshot without subscribing.
func (s *Service) CurrentUserValue() *users.User {
	return s.currentUser.Get()
}

// Logout destroys the session: the store is cleared, both streams emit, and
// the caller is sent to the sign-in route when navigate is true.
func (s *Service) Logout(navigate bool) {
	if err := s.store.Clear(); err != nil {
		s.logger.Error().Err(err).Msg("failed to clear session store")
	}
	s.currentUser.Set(nil)
	s.isAuthenticated.Set(false)

	if navigate {
		s.navigator.NavigateTo(RouteSignIn, nil)
	}
}

// ClearAuthState clears the session without navigating, for callers (the
// request pipeline) that own the redirect decision themselves.
func (s *Service) ClearAuthState() {
	s.Logout(false)
}

// HasToken reports whether an access token is stored.
func (s *Service) HasToken() bool {
	return s.store.AccessToken() != ""
}

// IsTokenExpired reports whether the stored access token is within the
// configured offset of its expiry. An absent token is expired.
func (s *Service) IsTokenExpired() bool {
	return token.IsExpired(s.store.AccessToken(), s.expiryOffset)
}

// TokenExpirationDate returns the stored access token's expiry instant.
func (s *Service) TokenExpirationDate() (time.Time, error) {
	return token.ExpirationDate(s.store.AccessToken())
}

// TokenRemainingTime returns the time until the stored access token expires.
func (s *Service) TokenRemainingTime() time.Duration {
	return token.RemainingTime(s.store.AccessToken())
}

// IsAdmin reports whether the cached user can manage the dashboard.
func (s *Service) IsAdmin() bool {
	return s.currentUser.Get().IsAdmin()
}

// IsOperator reports whether the cached user is a booking operator.
func (s *Service) IsOperator() bool {
	return s.currentUser.Get().IsOperator()
}
