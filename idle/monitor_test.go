package idle_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/laagencias/go-panel-auth/idle"
	"github.com/laagencias/go-panel-auth/internal/broadcast"
	"github.com/laagencias/go-panel-auth/notify"
)

type fakeSessionEnder struct {
	mu      sync.Mutex
	logouts []bool
}

func (f *fakeSessionEnder) Logout(navigate bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, navigate)
}

func (f *fakeSessionEnder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logouts)
}

type fakeTokenChecker struct{ hasToken bool }

func (f *fakeTokenChecker) HasToken() bool { return f.hasToken }

type monitorFixture struct {
	session  *fakeSessionEnder
	notifier *notify.Notifier
	notices  <-chan notify.Notice
	monitor  *idle.Monitor
}

func setupMonitor(t *testing.T, warningAfter, logoutAfter time.Duration, options ...idle.Option) *monitorFixture {
	t.Helper()

	session := &fakeSessionEnder{}
	notifier := notify.New()
	notices, cancel := notifier.Subscribe()
	t.Cleanup(cancel)

	options = append([]idle.Option{
		idle.WithThresholds(warningAfter, logoutAfter),
		idle.WithDebounce(0),
	}, options...)
	monitor := idle.NewMonitor(session, &fakeTokenChecker{hasToken: true}, notifier, options...)
	t.Cleanup(monitor.StopWatching)

	return &monitorFixture{session: session, notifier: notifier, notices: notices, monitor: monitor}
}

func awaitNotice(t *testing.T, ch <-chan notify.Notice, level notify.Level, timeout time.Duration) notify.Notice {
	t.Helper()
	select {
	case n := <-ch:
		require.Equal(t, level, n.Level)
		return n
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for %s notice", level)
		panic("unreachable")
	}
}

func requireNoNotice(t *testing.T, ch <-chan notify.Notice, within time.Duration) {
	t.Helper()
	select {
	case n := <-ch:
		t.Fatalf("unexpected notice: %s", n.Message)
	case <-time.After(within):
	}
}

func TestWarningThenLogout(t *testing.T) {
	f := setupMonitor(t, 50*time.Millisecond, 120*time.Millisecond)
	f.monitor.StartWatching()

	awaitNotice(t, f.notices, notify.LevelWarning, time.Second)
	require.Zero(t, f.session.count())

	awaitNotice(t, f.notices, notify.LevelInfo, time.Second)
	require.Equal(t, 1, f.session.count())

	// The logout stopped the watch; silence from here on
	requireNoNotice(t, f.notices, 200*time.Millisecond)
	require.Equal(t, 1, f.session.count())
}

func TestActivityRearmsTimers(t *testing.T) {
	f := setupMonitor(t, 150*time.Millisecond, 10*time.Second)
	f.monitor.StartWatching()

	// Keep signalling activity well inside the warning threshold
	for i := 0; i < 8; i++ {
		time.Sleep(50 * time.Millisecond)
		f.monitor.Activity()
	}
	requireNoNotice(t, f.notices, 50*time.Millisecond)

	// Silence now lets the warning through
	awaitNotice(t, f.notices, notify.LevelWarning, time.Second)
}

func TestActivityIsDebounced(t *testing.T) {
	f := setupMonitor(t, 150*time.Millisecond, 10*time.Second, idle.WithDebounce(time.Hour))
	f.monitor.StartWatching()

	// Inside the debounce window this signal is swallowed, so the warning
	// still fires on the original schedule
	time.Sleep(50 * time.Millisecond)
	f.monitor.Activity()

	awaitNotice(t, f.notices, notify.LevelWarning, time.Second)
}

func TestExtendSessionBypassesDebounce(t *testing.T) {
	f := setupMonitor(t, 200*time.Millisecond, 10*time.Second, idle.WithDebounce(time.Hour))
	f.monitor.StartWatching()

	time.Sleep(120 * time.Millisecond)
	f.monitor.ExtendSession()

	// Original deadline (t=200ms) passes quietly; the extended one fires
	requireNoNotice(t, f.notices, 150*time.Millisecond)
	awaitNotice(t, f.notices, notify.LevelWarning, time.Second)
}

func TestStartWithoutSessionIsNoOp(t *testing.T) {
	session := &fakeSessionEnder{}
	notifier := notify.New()
	notices, cancel := notifier.Subscribe()
	t.Cleanup(cancel)

	monitor := idle.NewMonitor(session, &fakeTokenChecker{hasToken: false}, notifier,
		idle.WithThresholds(30*time.Millisecond, 60*time.Millisecond))

	monitor.StartWatching()
	requireNoNotice(t, notices, 150*time.Millisecond)
	require.Zero(t, session.count())
}

func TestStopWatchingCancelsTimers(t *testing.T) {
	f := setupMonitor(t, 50*time.Millisecond, 100*time.Millisecond)
	f.monitor.StartWatching()
	f.monitor.StopWatching()
	f.monitor.StopWatching()

	requireNoNotice(t, f.notices, 200*time.Millisecond)
	require.Zero(t, f.session.count())

	// Activity while stopped must not resurrect the timers
	f.monitor.Activity()
	requireNoNotice(t, f.notices, 100*time.Millisecond)
}

func TestStartWhileWatchingRearms(t *testing.T) {
	f := setupMonitor(t, 200*time.Millisecond, 10*time.Second)
	f.monitor.StartWatching()

	time.Sleep(120 * time.Millisecond)
	f.monitor.StartWatching()

	// The original deadline (t=200ms) must stay quiet, the re-armed one fires
	requireNoNotice(t, f.notices, 150*time.Millisecond)
	awaitNotice(t, f.notices, notify.LevelWarning, time.Second)
}

func TestBindFollowsAuthenticationStream(t *testing.T) {
	f := setupMonitor(t, 50*time.Millisecond, 100*time.Millisecond)
	isAuthenticated := broadcast.NewCell(false)

	stop := f.monitor.Bind(isAuthenticated)
	defer stop()

	// Anonymous: nothing arms
	requireNoNotice(t, f.notices, 120*time.Millisecond)

	isAuthenticated.Set(true)
	awaitNotice(t, f.notices, notify.LevelWarning, time.Second)
	awaitNotice(t, f.notices, notify.LevelInfo, time.Second)
	require.Equal(t, 1, f.session.count())
}

func TestBindStopsOnSignOut(t *testing.T) {
	f := setupMonitor(t, 150*time.Millisecond, 300*time.Millisecond)
	isAuthenticated := broadcast.NewCell(true)

	stop := f.monitor.Bind(isAuthenticated)
	defer stop()

	time.Sleep(50 * time.Millisecond)
	isAuthenticated.Set(false)

	requireNoNotice(t, f.notices, 400*time.Millisecond)
	require.Zero(t, f.session.count())
}
