package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	TokenConfig
	FederationConfig
	StoreConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetIssuer() string
	GetStatePurgeInterval() time.Duration
}

type mainConfig struct {
	EnvVars
	Token
	Federation
	Store
}

var validate = validator.New()

// New loads an optional .env file, parses the environment and validates the result.
func New() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv parses the process environment without touching any .env file.
func FromEnv() (Config, error) {
	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return c, nil
}
