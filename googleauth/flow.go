// Package googleauth obtains a Google ID token on behalf of the user via the
// OIDC authorization-code flow with PKCE, using a loopback listener for the
// callback. The resulting raw ID token is what the backend's /auth/google
// endpoint exchanges for a session.
package googleauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const googleIssuer = "https://accounts.google.com"

// Flow drives one interactive Google sign-in.
type Flow struct {
	clientID     string
	clientSecret string
	listenAddr   string
	logger       zerolog.Logger
	openURL      func(authURL string)
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Flow) {
		f.logger = logger
	}
}

// WithOpenURL overrides how the authorization URL reaches the user
// (default: logged for the user to open manually).
func WithOpenURL(openURL func(authURL string)) Option {
	return func(f *Flow) {
		f.openURL = openURL
	}
}

// NewFlow validates the Google client configuration.
func NewFlow(clientID, clientSecret, listenAddr string, options ...Option) (*Flow, error) {
	if clientID == "" {
		return nil, errors.New("[NewFlow] Google client ID is required")
	}
	if listenAddr == "" {
		return nil, errors.New("[NewFlow] listen address is required")
	}

	f := &Flow{
		clientID:     clientID,
		clientSecret: clientSecret,
		listenAddr:   listenAddr,
		logger:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(f)
	}
	if f.openURL == nil {
		f.openURL = func(authURL string) {
			f.logger.Info().Str("url", authURL).Msg("open this URL in your browser to sign in with Google")
		}
	}
	return f, nil
}

type callbackResult struct {
	code  string
	state string
	err   error
}

// IDToken runs the full flow: discovery, loopback listener, user consent,
// code exchange (PKCE + state) and ID-token verification. It blocks until
// the callback arrives or ctx is done.
func (f *Flow) IDToken(ctx context.Context) (string, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return "", errors.Wrap(err, "[IDToken] OIDC discovery")
	}

	listener, err := net.Listen("tcp", f.listenAddr)
	if err != nil {
		return "", errors.Wrap(err, "[IDToken] start callback listener")
	}
	defer listener.Close()

	conf := oauth2.Config{
		ClientID:     f.clientID,
		ClientSecret: f.clientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  fmt.Sprintf("http://%s/callback", listener.Addr().String()),
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}

	state, err := randomState()
	if err != nil {
		return "", errors.Wrap(err, "[IDToken] generate state")
	}
	verifier := oauth2.GenerateVerifier()

	results := make(chan callbackResult, 1)
	server := &http.Server{Handler: callbackHandler(results)}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			results <- callbackResult{err: serveErr}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	f.openURL(conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)))

	var result callbackResult
	select {
	case result = <-results:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if result.err != nil {
		return "", errors.Wrap(result.err, "[IDToken] authorization callback")
	}
	if result.state != state {
		return "", errors.New("[IDToken] state mismatch in callback")
	}

	oauth2Token, err := conf.Exchange(ctx, result.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", errors.Wrap(err, "[IDToken] code exchange")
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return "", errors.New("[IDToken] no ID token in exchange response")
	}

	// Verify signature and claims before handing the token to the backend
	if _, err := provider.Verifier(&oidc.Config{ClientID: f.clientID}).Verify(ctx, rawIDToken); err != nil {
		return "", errors.Wrap(err, "[IDToken] ID token verification")
	}

	return rawIDToken, nil
}

func callbackHandler(results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if errParam := r.FormValue("error"); errParam != "" {
			results <- callbackResult{err: errors.Errorf("authorization failed: %s - %s", errParam, r.FormValue("error_description"))}
			http.Error(w, "Sign-in failed. You can close this window.", http.StatusBadRequest)
			return
		}

		code := r.FormValue("code")
		state := r.FormValue("state")
		if code == "" || state == "" {
			results <- callbackResult{err: errors.New("missing code or state parameter")}
			http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		results <- callbackResult{code: code, state: state}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>Signed in. You can close this window.</body></html>")
	})
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
