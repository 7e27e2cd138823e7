package config

type Config interface {
	EnvConfig
	APIConfig
	IdleConfig
	TokenConfig
	GoogleConfig
}

type mainConfig struct {
	EnvVars
	API
	Idle
	Token
	Google
}

// New builds the default environment-backed configuration.
func New() Config {
	return mainConfig{}
}
