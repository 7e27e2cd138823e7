package config

import (
	"time"
)

type APIConfig interface {
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
}

type API struct{}

var _ APIConfig = API{}

func (API) GetAPIBaseURL() string {
	return GetEnv("API_BASE_URL", "http://localhost:8000/api/v1")
}

func (API) GetRequestTimeout() time.Duration {
	return GetDurationEnv("REQUEST_TIMEOUT", 30*time.Second)
}

// GetDurationEnv reads a Go duration string from the environment, falling
// back to defaultValue when unset or unparsable.
func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return d
}
