package config

import "time"

type TokenConfig interface {
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetRotationThreshold() time.Duration
	GetClockSkew() time.Duration
}

type Token struct {
	AccessTokenTTL    time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m" validate:"gt=0"`
	RefreshTokenTTL   time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h" validate:"gt=0,gtfield=AccessTokenTTL"`
	RotationThreshold time.Duration `env:"REFRESH_ROTATION_THRESHOLD" envDefault:"1h" validate:"gt=0"`
	ClockSkew         time.Duration `env:"CLOCK_SKEW" envDefault:"30s" validate:"gte=0"`
}

var _ TokenConfig = Token{}

func (t Token) GetAccessTokenTTL() time.Duration {
	return t.AccessTokenTTL
}

func (t Token) GetRefreshTokenTTL() time.Duration {
	return t.RefreshTokenTTL
}

// GetRotationThreshold is the remaining refresh lifetime at or below which a refresh rotates the token
func (t Token) GetRotationThreshold() time.Duration {
	return t.RotationThreshold
}

func (t Token) GetClockSkew() time.Duration {
	return t.ClockSkew
}
