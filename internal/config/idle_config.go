package config

import "time"

type IdleConfig interface {
	GetIdleWarning() time.Duration
	GetIdleLogout() time.Duration
	GetIdleDebounce() time.Duration
}

type Idle struct{}

var _ IdleConfig = Idle{}

// GetIdleWarning is how long without activity before the user is warned.
func (Idle) GetIdleWarning() time.Duration {
	return GetDurationEnv("IDLE_WARNING", 13*time.Minute)
}

// GetIdleLogout is how long without activity before a forced logout.
func (Idle) GetIdleLogout() time.Duration {
	return GetDurationEnv("IDLE_LOGOUT", 15*time.Minute)
}

// GetIdleDebounce coalesces bursts of activity signals into one timer reset.
func (Idle) GetIdleDebounce() time.Duration {
	return GetDurationEnv("IDLE_DEBOUNCE", time.Second)
}
