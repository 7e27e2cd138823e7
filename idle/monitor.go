// Package idle enforces the inactivity timeout: while a session is
// authenticated it watches for activity signals, warns the user after a
// quiet period and forces a logout if the silence continues.
package idle

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/laagencias/go-panel-auth/internal/broadcast"
	"github.com/laagencias/go-panel-auth/notify"
)

// Defaults mirror the dashboard: warn at 13 minutes idle, log out at 15.
const (
	DefaultWarningAfter = 13 * time.Minute
	DefaultLogoutAfter  = 15 * time.Minute
	DefaultDebounce     = time.Second
)

const (
	warningMessage = "You will be logged out soon due to inactivity."
	logoutMessage  = "You have been logged out due to inactivity."
)

// SessionEnder is the slice of the auth service the monitor needs.
type SessionEnder interface {
	Logout(navigate bool)
}

// TokenChecker answers whether a session currently exists.
type TokenChecker interface {
	HasToken() bool
}

// Monitor arms a warning timer and a logout timer, both re-armed from zero by
// any activity signal.
type Monitor struct {
	session  SessionEnder
	tokens   TokenChecker
	notifier *notify.Notifier
	logger   zerolog.Logger
	nowTime  func() time.Time

	warningAfter time.Duration
	logoutAfter  time.Duration
	debounce     time.Duration

	mu           sync.Mutex
	watching     bool
	generation   uint64
	warned       bool
	lastActivity time.Time
	warningTimer *time.Timer
	logoutTimer  *time.Timer
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithThresholds overrides the warning and logout idle durations.
func WithThresholds(warningAfter, logoutAfter time.Duration) Option {
	return func(m *Monitor) {
		m.warningAfter = warningAfter
		m.logoutAfter = logoutAfter
	}
}

// WithDebounce overrides the activity coalescing window.
func WithDebounce(debounce time.Duration) Option {
	return func(m *Monitor) {
		m.debounce = debounce
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Monitor) {
		m.nowTime = nowFunc
	}
}

// NewMonitor wires the monitor to its collaborators. It does nothing until
// StartWatching is called.
func NewMonitor(session SessionEnder, tokens TokenChecker, notifier *notify.Notifier, options ...Option) *Monitor {
	m := &Monitor{
		session:      session,
		tokens:       tokens,
		notifier:     notifier,
		logger:       zerolog.Nop(),
		nowTime:      time.Now,
		warningAfter: DefaultWarningAfter,
		logoutAfter:  DefaultLogoutAfter,
		debounce:     DefaultDebounce,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// StartWatching arms both timers. A no-op without a session; calling it
// while already watching re-arms rather than stacking timers.
func (m *Monitor) StartWatching() {
	if m.tokens != nil && !m.tokens.HasToken() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.watching = true
	m.rearmLocked()
}

// StopWatching cancels both timers. Idempotent, callable from any teardown
// path.
func (m *Monitor) StopWatching() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watching = false
	m.generation++
	m.stopTimersLocked()
}

// Activity is the debounced user-activity signal: bursts of events inside
// the debounce window cost one timer reset.
func (m *Monitor) Activity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.watching {
		return
	}
	if m.nowTime().Sub(m.lastActivity) < m.debounce {
		return
	}
	m.rearmLocked()
}

// ExtendSession re-arms immediately, bypassing the debounce. Exposed for
// callers keeping a session alive around a long foreground operation.
func (m *Monitor) ExtendSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.watching {
		return
	}
	m.rearmLocked()
}

// Bind subscribes to an is-authenticated stream and drives watching from
// session transitions. The returned stop function releases the subscription.
func (m *Monitor) Bind(isAuthenticated *broadcast.Cell[bool]) (stop func()) {
	ch, cancel := isAuthenticated.Subscribe()
	go func() {
		for authenticated := range ch {
			if authenticated {
				m.StartWatching()
			} else {
				m.StopWatching()
			}
		}
	}()
	return cancel
}

// rearmLocked resets both timers from zero. Callers hold the lock.
func (m *Monitor) rearmLocked() {
	m.stopTimersLocked()
	m.generation++
	m.warned = false
	m.lastActivity = m.nowTime()

	gen := m.generation
	m.warningTimer = time.AfterFunc(m.warningAfter, func() { m.onWarning(gen) })
	m.logoutTimer = time.AfterFunc(m.logoutAfter, func() { m.onLogout(gen) })
}

func (m *Monitor) stopTimersLocked() {
	if m.warningTimer != nil {
		m.warningTimer.Stop()
		m.warningTimer = nil
	}
	if m.logoutTimer != nil {
		m.logoutTimer.Stop()
		m.logoutTimer = nil
	}
}

// onWarning fires once per idle period; the logout timer keeps running.
func (m *Monitor) onWarning(gen uint64) {
	m.mu.Lock()
	if !m.watching || gen != m.generation || m.warned {
		m.mu.Unlock()
		return
	}
	m.warned = true
	m.mu.Unlock()

	m.logger.Info().Msg("idle warning threshold reached")
	m.notifier.Warning(warningMessage, 8*time.Second)
}

// onLogout force-ends the session and stops watching.
func (m *Monitor) onLogout(gen uint64) {
	m.mu.Lock()
	if !m.watching || gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.watching = false
	m.generation++
	m.stopTimersLocked()
	m.mu.Unlock()

	m.logger.Info().Msg("idle logout threshold reached, ending session")
	m.notifier.Info(logoutMessage, notify.DefaultErrorDuration)
	m.session.Logout(true)
}
