package config

import "time"

type EnvVars struct {
	AppName            string        `env:"APP_NAME" envDefault:"Auth Core"`
	Env                string        `env:"ENV" envDefault:"DEV"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error"`
	Issuer             string        `env:"ISSUER" envDefault:"authcore"`
	StatePurgeInterval time.Duration `env:"STATE_PURGE_INTERVAL" envDefault:"5m" validate:"gt=0"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

// GetIssuer returns the iss claim stamped on every minted token
func (e EnvVars) GetIssuer() string {
	return e.Issuer
}

func (e EnvVars) GetStatePurgeInterval() time.Duration {
	return e.StatePurgeInterval
}
