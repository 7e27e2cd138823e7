package config

import (
	"os"
	"path/filepath"
)

const (
	appNameVar           = "APP_NAME"
	sessionFileVar       = "SESSION_FILE"
	sessionPassphraseVar = "SESSION_PASSPHRASE"
)

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetSessionFile() string
	GetSessionPassphrase() string
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Panel Session Client")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// GetSessionFile is where the durable session document lives, the
// localStorage of a CLI process.
func (EnvVars) GetSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return GetEnv(sessionFileVar, filepath.Join(home, ".panelctl", "session.json"))
}

// GetSessionPassphrase enables at-rest encryption of the session file when
// non-empty.
func (EnvVars) GetSessionPassphrase() string {
	return GetEnv(sessionPassphraseVar, "")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
