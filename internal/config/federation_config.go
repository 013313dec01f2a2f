package config

import "time"

type FederationConfig interface {
	GetStateTTL() time.Duration
	GetProvidersFile() string
	GetAllowedReturnURLs() []string
	GetProviderHTTPTimeout() time.Duration
	GetUserAgent() string
	GetVerifyIDTokens() bool
}

type Federation struct {
	StateTTL            time.Duration `env:"FEDERATION_STATE_TTL" envDefault:"10m" validate:"gt=0"`
	ProvidersFile       string        `env:"FEDERATION_PROVIDERS_FILE"`
	AllowedReturnURLs   []string      `env:"FEDERATION_ALLOWED_RETURN_URLS" envSeparator:"," validate:"dive,url"`
	ProviderHTTPTimeout time.Duration `env:"FEDERATION_HTTP_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	UserAgent           string        `env:"FEDERATION_USER_AGENT" envDefault:"authcore"`
	VerifyIDTokens      bool          `env:"FEDERATION_VERIFY_ID_TOKENS" envDefault:"true"`
}

var _ FederationConfig = Federation{}

func (f Federation) GetStateTTL() time.Duration {
	return f.StateTTL
}

// GetProvidersFile is the JSON file holding provider credentials; empty means they are read from the store
func (f Federation) GetProvidersFile() string {
	return f.ProvidersFile
}

func (f Federation) GetAllowedReturnURLs() []string {
	return f.AllowedReturnURLs
}

func (f Federation) GetProviderHTTPTimeout() time.Duration {
	return f.ProviderHTTPTimeout
}

func (f Federation) GetUserAgent() string {
	return f.UserAgent
}

func (f Federation) GetVerifyIDTokens() bool {
	return f.VerifyIDTokens
}
