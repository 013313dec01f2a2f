package providers

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
)

// Provider is what differs between identity providers: where the profile
// lives, which headers it wants and how to read a user out of it.
type Provider interface {
	Name() string
	Defaults() Endpoints
	// Headers are sent with every profile request in addition to the bearer token.
	Headers(cfg Config) map[string]string
	// Extract reads the identity out of a decoded profile document. Email or
	// display name may be left empty when the provider did not share them.
	Extract(raw map[string]any) (*Profile, error)
}

// Supplementer is implemented by providers that need a second request to
// complete a profile, such as GitHub's verified primary email.
type Supplementer interface {
	Supplement(ctx context.Context, client *Client, d *Descriptor, accessToken string, profile *Profile) error
}

// Endpoints are a provider's built-in defaults. Any of them can be overridden per deployment.
type Endpoints struct {
	AuthURL      string
	TokenURL     string
	ProfileURL   string
	Issuer       string // OIDC issuer, set only for providers that return a verifiable id_token
	Scopes       []string
	RequiresPKCE bool
	AuthStyle    oauth2.AuthStyle
}

// Profile is the provider-agnostic identity produced by a successful callback
type Profile struct {
	Provider    string         `json:"provider"`
	Subject     string         `json:"subject"`
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// Config holds the deployment credentials and overrides for one provider
type Config struct {
	Name         string   `json:"name" validate:"required"`
	ClientID     string   `json:"client_id" validate:"required"`
	ClientSecret string   `json:"client_secret"`
	RedirectURL  string   `json:"redirect_url" validate:"required,url"`
	Scopes       []string `json:"scopes,omitempty"`
	AuthURL      string   `json:"auth_url,omitempty" validate:"omitempty,url"`
	TokenURL     string   `json:"token_url,omitempty" validate:"omitempty,url"`
	ProfileURL   string   `json:"profile_url,omitempty" validate:"omitempty,url"`
	Issuer       string   `json:"issuer,omitempty" validate:"omitempty,url"`
}

// Descriptor is a provider resolved against its deployment Config
type Descriptor struct {
	Name         string
	OAuth2       *oauth2.Config
	ProfileURL   string
	Issuer       string
	RequiresPKCE bool
	Headers      map[string]string
	Provider     Provider
}

const placeholderDomain = ".local"

func placeholderEmail(handle, provider string) string {
	return strings.ToLower(strings.TrimSpace(handle)) + "@" + provider + placeholderDomain
}

// IsPlaceholderEmail reports whether email was synthesized for a provider
// that does not share addresses.
func IsPlaceholderEmail(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := email[at+1:]
	if !strings.HasSuffix(domain, placeholderDomain) {
		return false
	}
	_, ok := builtins[strings.TrimSuffix(domain, placeholderDomain)]
	return ok
}
