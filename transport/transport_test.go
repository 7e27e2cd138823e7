package transport_test

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/laagencias/go-panel-auth/auth"
	"github.com/laagencias/go-panel-auth/auth/authfakes"
	"github.com/laagencias/go-panel-auth/notify"
	"github.com/laagencias/go-panel-auth/sessions"
	"github.com/laagencias/go-panel-auth/token"
	"github.com/laagencias/go-panel-auth/transport"
)

// fakeSessionManager is the pipeline's view of the auth service.
type fakeSessionManager struct {
	mu           sync.Mutex
	store        *sessions.MemoryStore
	nextToken    string
	refreshDelay time.Duration
	refreshErr   error
	refreshCalls int
	clearCalls   int
}

var _ transport.SessionManager = (*fakeSessionManager)(nil)

func (f *fakeSessionManager) RefreshToken(_ context.Context) (*token.Response, error) {
	f.mu.Lock()
	f.refreshCalls++
	delay := f.refreshDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}

	response := &token.Response{AccessToken: f.nextToken, RefreshToken: "refresh-" + f.nextToken}
	if err := f.store.SetTokens(response.AccessToken, response.RefreshToken); err != nil {
		return nil, err
	}
	return response, nil
}

func (f *fakeSessionManager) ClearAuthState() {
	f.mu.Lock()
	f.clearCalls++
	f.mu.Unlock()
	_ = f.store.Clear()
}

func (f *fakeSessionManager) counts() (refreshes, clears int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.clearCalls
}

type pipelineFixture struct {
	store     *sessions.MemoryStore
	manager   *fakeSessionManager
	navigator *authfakes.FakeNavigator
	notifier  *notify.Notifier
	client    *http.Client
}

func setupPipeline(t *testing.T) *pipelineFixture {
	t.Helper()

	store := sessions.NewMemoryStore()
	manager := &fakeSessionManager{store: store, nextToken: "new"}
	navigator := authfakes.NewFakeNavigator("/bookings")
	notifier := notify.New()

	pipeline := transport.New(store, manager, navigator, notifier)
	return &pipelineFixture{
		store:     store,
		manager:   manager,
		navigator: navigator,
		notifier:  notifier,
		client:    &http.Client{Transport: pipeline},
	}
}

// newBackend serves 200 to the given bearer tokens and 401 to everything else.
func newBackend(t *testing.T, accepted ...string) (*httptest.Server, *sync.Map) {
	t.Helper()

	var seen sync.Map
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		count, _ := seen.LoadOrStore(header, new(int))
		*(count.(*int))++

		for _, want := range accepted {
			if header == "Bearer "+want {
				w.WriteHeader(http.StatusOK)
				return
			}
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)
	return server, &seen
}

func TestAttachesBearerToken(t *testing.T) {
	f := setupPipeline(t)
	require.NoError(t, f.store.SetTokens("current", "refresh-current"))
	server, seen := newBackend(t, "current")

	resp, err := f.client.Get(server.URL + "/bookings")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, ok := seen.Load("Bearer current")
	require.True(t, ok)
	refreshes, _ := f.manager.counts()
	require.Zero(t, refreshes)
}

func TestAnonymousRequestPassesThrough(t *testing.T) {
	f := setupPipeline(t)
	server, seen := newBackend(t, "anything")

	resp, err := f.client.Get(server.URL + "/public")
	require.NoError(t, err)
	defer resp.Body.Close()

	// No token stored: the 401 comes back untouched and no refresh fires
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_, ok := seen.Load("")
	require.True(t, ok)
	refreshes, _ := f.manager.counts()
	require.Zero(t, refreshes)
}

func TestServerErrorPassesThrough(t *testing.T) {
	f := setupPipeline(t)
	require.NoError(t, f.store.SetTokens("current", "refresh-current"))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	resp, err := f.client.Get(server.URL + "/bookings")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	refreshes, _ := f.manager.counts()
	require.Zero(t, refreshes)
}

func TestRefreshesAndRetriesOnceOn401(t *testing.T) {
	f := setupPipeline(t)
	require.NoError(t, f.store.SetTokens("old", "refresh-old"))
	server, seen := newBackend(t, "new")

	resp, err := f.client.Get(server.URL + "/bookings")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	refreshes, clears := f.manager.counts()
	require.Equal(t, 1, refreshes)
	require.Zero(t, clears)
	require.Equal(t, "new", f.store.AccessToken())

	oldHits, _ := seen.Load("Bearer old")
	require.Equal(t, 1, *(oldHits.(*int)))
	newHits, _ := seen.Load("Bearer new")
	require.Equal(t, 1, *(newHits.(*int)))
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	f := setupPipeline(t)
	f.manager.refreshDelay = 200 * time.Millisecond
	require.NoError(t, f.store.SetTokens("old", "refresh-old"))
	server, _ := newBackend(t, "new")

	const parallel = 8
	start := make(chan struct{})
	results := make(chan int, parallel)
	var wg sync.WaitGroup
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			resp, err := f.client.Get(server.URL + "/bookings")
			if err != nil {
				results <- -1
				return
			}
			defer resp.Body.Close()
			results <- resp.StatusCode
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	for status := range results {
		require.Equal(t, http.StatusOK, status)
	}
	refreshes, _ := f.manager.counts()
	require.Equal(t, 1, refreshes)
}

func TestRotatedStoreTokenSkipsRefresh(t *testing.T) {
	f := setupPipeline(t)
	require.NoError(t, f.store.SetTokens("old", "refresh-old"))

	// The backend rotates the store itself before rejecting, standing in for
	// a refresh completed by another request after this one departed.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer old" {
			require.NoError(t, f.store.SetTokens("new", "refresh-new"))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.Equal(t, "Bearer new", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	resp, err := f.client.Get(server.URL + "/bookings")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	refreshes, _ := f.manager.counts()
	require.Zero(t, refreshes)
}

func TestTerminalRefreshFailureForcesOneLogout(t *testing.T) {
	f := setupPipeline(t)
	f.manager.refreshErr = auth.RefreshFailedErr
	f.manager.refreshDelay = 200 * time.Millisecond
	require.NoError(t, f.store.SetTokens("old", "refresh-old"))
	server, _ := newBackend(t, "never")

	notices, cancel := f.notifier.Subscribe()
	defer cancel()

	const parallel = 6
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			resp, err := f.client.Get(server.URL + "/bookings")
			require.Error(t, err)
			require.Nil(t, resp)
		}()
	}
	close(start)
	wg.Wait()

	_, clears := f.manager.counts()
	require.Equal(t, 1, clears)
	require.Empty(t, f.store.AccessToken())

	// Exactly one expiry notice for the whole batch
	select {
	case notice := <-notices:
		require.Equal(t, notify.LevelWarning, notice.Level)
	case <-time.After(time.Second):
		t.Fatal("expected a session-expired notice")
	}
	select {
	case <-notices:
		t.Fatal("expected a single notice, got a second one")
	case <-time.After(100 * time.Millisecond):
	}

	navigations := f.navigator.Navigations()
	require.Len(t, navigations, 1)
	require.Equal(t, auth.RouteSignIn, navigations[0].Route)
	require.Equal(t, "/bookings", navigations[0].Query.Get(auth.ReturnURLParam))
}

func TestNetworkRefreshFailureDoesNotLogout(t *testing.T) {
	f := setupPipeline(t)
	f.manager.refreshErr = stderrors.New("dial tcp: connection refused")
	require.NoError(t, f.store.SetTokens("old", "refresh-old"))
	server, _ := newBackend(t, "never")

	_, err := f.client.Get(server.URL + "/bookings")
	require.Error(t, err)

	_, clears := f.manager.counts()
	require.Zero(t, clears)
	require.Equal(t, "old", f.store.AccessToken())
	require.Empty(t, f.navigator.Navigations())
}

func TestNoRedirectWhenAlreadyOnAuthRoute(t *testing.T) {
	f := setupPipeline(t)
	f.manager.refreshErr = auth.RefreshFailedErr
	f.navigator.SetCurrentRoute(auth.RouteSignIn)
	require.NoError(t, f.store.SetTokens("old", "refresh-old"))
	server, _ := newBackend(t, "never")

	_, err := f.client.Get(server.URL + "/bookings")
	require.Error(t, err)

	_, clears := f.manager.counts()
	require.Equal(t, 1, clears)
	require.Empty(t, f.navigator.Navigations())
}

func TestAuthEndpoints401PassesThrough(t *testing.T) {
	f := setupPipeline(t)
	require.NoError(t, f.store.SetTokens("old", "refresh-old"))
	server, _ := newBackend(t, "never")

	for _, path := range []string{"/auth/login", "/auth/refresh"} {
		resp, err := f.client.Get(server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	refreshes, clears := f.manager.counts()
	require.Zero(t, refreshes)
	require.Zero(t, clears)
}

func TestBodyIsReplayedOnRetry(t *testing.T) {
	f := setupPipeline(t)
	require.NoError(t, f.store.SetTokens("old", "refresh-old"))

	var bodies []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(payload))
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	resp, err := f.client.Post(server.URL+"/bookings", "application/json", strings.NewReader(`{"id":42}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{`{"id":42}`, `{"id":42}`}, bodies)
}

func TestNonReplayableBodyIsNotRetried(t *testing.T) {
	f := setupPipeline(t)
	require.NoError(t, f.store.SetTokens("old", "refresh-old"))
	server, _ := newBackend(t, "never")

	// Wrapping the reader hides the concrete type, so the request carries no
	// GetBody and cannot be rebuilt.
	body := struct{ io.Reader }{strings.NewReader("stream")}
	req, err := http.NewRequest(http.MethodPost, server.URL+"/bookings", body)
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	refreshes, _ := f.manager.counts()
	require.Zero(t, refreshes)
}
