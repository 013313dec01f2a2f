package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// ConfigRepo stores provider configuration alongside the other auth data.
type ConfigRepo interface {
	ListProviderConfigs(ctx context.Context) ([]Config, error)
	PutProviderConfig(ctx context.Context, cfg Config) error
}

var validate = validator.New()

// Registry resolves provider names to descriptors. Only providers with
// configured credentials are present. It is safe for concurrent use and can
// be swapped wholesale when configuration changes.
type Registry struct {
	userAgent string

	mu          sync.RWMutex
	descriptors map[string]*Descriptor
}

type RegistryOption func(*Registry)

// WithUserAgent sets the User-Agent sent on profile requests; some providers reject requests without one.
func WithUserAgent(userAgent string) RegistryOption {
	return func(r *Registry) {
		r.userAgent = userAgent
	}
}

func NewRegistry(configs []Config, options ...RegistryOption) (*Registry, error) {
	r := &Registry{
		userAgent:   "authcore",
		descriptors: make(map[string]*Descriptor),
	}
	for _, opt := range options {
		opt(r)
	}
	if err := r.Replace(configs); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace swaps in a new set of provider configs. On error the registry is unchanged.
func (r *Registry) Replace(configs []Config) error {
	descriptors := make(map[string]*Descriptor, len(configs))
	for _, cfg := range configs {
		d, err := r.resolve(cfg)
		if err != nil {
			return err
		}
		if _, dup := descriptors[d.Name]; dup {
			return fmt.Errorf("provider %q configured twice", d.Name)
		}
		descriptors[d.Name] = d
	}

	r.mu.Lock()
	r.descriptors = descriptors
	r.mu.Unlock()
	log.Info().Strs("providers", r.Names()).Msg("identity providers loaded")
	return nil
}

// Lookup returns the descriptor for name or ErrUnknownProvider.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", autherrors.ErrUnknownProvider, name)
	}
	return d, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) resolve(cfg Config) (*Descriptor, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("provider %q: %w", cfg.Name, err)
	}
	p, err := Builtin(cfg.Name)
	if err != nil {
		return nil, err
	}
	defaults := p.Defaults()

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaults.Scopes
	}

	headers := map[string]string{"User-Agent": r.userAgent}
	for k, v := range p.Headers(cfg) {
		headers[k] = v
	}

	return &Descriptor{
		Name: p.Name(),
		OAuth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   firstNonEmpty(cfg.AuthURL, defaults.AuthURL),
				TokenURL:  firstNonEmpty(cfg.TokenURL, defaults.TokenURL),
				AuthStyle: defaults.AuthStyle,
			},
		},
		ProfileURL:   firstNonEmpty(cfg.ProfileURL, defaults.ProfileURL),
		Issuer:       firstNonEmpty(cfg.Issuer, defaults.Issuer),
		RequiresPKCE: defaults.RequiresPKCE,
		Headers:      headers,
		Provider:     p,
	}, nil
}
