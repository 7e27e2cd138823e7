package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// fileValues is the YAML shape of an optional config file. Empty fields fall
// through to the base (environment) configuration.
type fileValues struct {
	AppName           string `yaml:"app_name"`
	APIBaseURL        string `yaml:"api_base_url"`
	RequestTimeout    string `yaml:"request_timeout"`
	IdleWarning       string `yaml:"idle_warning"`
	IdleLogout        string `yaml:"idle_logout"`
	IdleDebounce      string `yaml:"idle_debounce"`
	TokenExpiryOffset string `yaml:"token_expiry_offset"`
	SessionFile       string `yaml:"session_file"`
	GoogleClientID    string `yaml:"google_client_id"`
	OAuthListenAddr   string `yaml:"oauth_listen_addr"`
}

type overlayConfig struct {
	Config
	values fileValues
}

// FromFile layers a YAML config file over base. A missing file is not an
// error; the base configuration is returned unchanged.
func FromFile(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return base, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[config.FromFile] read config file")
	}

	var values fileValues
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, errors.Wrap(err, "[config.FromFile] parse config file")
	}

	return overlayConfig{Config: base, values: values}, nil
}

func (oc overlayConfig) GetAppName() string {
	return stringOr(oc.values.AppName, oc.Config.GetAppName)
}

func (oc overlayConfig) GetAPIBaseURL() string {
	return stringOr(oc.values.APIBaseURL, oc.Config.GetAPIBaseURL)
}

func (oc overlayConfig) GetRequestTimeout() time.Duration {
	return durationOr(oc.values.RequestTimeout, oc.Config.GetRequestTimeout)
}

func (oc overlayConfig) GetIdleWarning() time.Duration {
	return durationOr(oc.values.IdleWarning, oc.Config.GetIdleWarning)
}

func (oc overlayConfig) GetIdleLogout() time.Duration {
	return durationOr(oc.values.IdleLogout, oc.Config.GetIdleLogout)
}

func (oc overlayConfig) GetIdleDebounce() time.Duration {
	return durationOr(oc.values.IdleDebounce, oc.Config.GetIdleDebounce)
}

func (oc overlayConfig) GetExpiryOffset() time.Duration {
	return durationOr(oc.values.TokenExpiryOffset, oc.Config.GetExpiryOffset)
}

func (oc overlayConfig) GetSessionFile() string {
	return stringOr(oc.values.SessionFile, oc.Config.GetSessionFile)
}

func (oc overlayConfig) GetGoogleClientID() string {
	return stringOr(oc.values.GoogleClientID, oc.Config.GetGoogleClientID)
}

func (oc overlayConfig) GetOAuthListenAddr() string {
	return stringOr(oc.values.OAuthListenAddr, oc.Config.GetOAuthListenAddr)
}

func stringOr(value string, fallback func() string) string {
	if value != "" {
		return value
	}
	return fallback()
}

func durationOr(value string, fallback func() time.Duration) time.Duration {
	if value == "" {
		return fallback()
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback()
	}
	return d
}
