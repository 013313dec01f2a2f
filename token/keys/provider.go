package keys

import (
	"context"
	"fmt"
	"sync"

	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/rs/zerolog/log"
)

// SecretStore persists the single root secret all keypairs are derived from.
type SecretStore interface {
	// GetRootSecret returns ErrNotFound when no secret has been stored yet.
	GetRootSecret(ctx context.Context) (string, error)
	// PutRootSecret is create-only and returns ErrAlreadyExists when a secret is present.
	PutRootSecret(ctx context.Context, secret string) error
}

// Material is the derived signing state for the process.
type Material struct {
	RootSecret string
	Access     *KeyPair
	Refresh    *KeyPair
}

// JWKS publishes the access verification key so resource servers can check tokens offline.
func (m *Material) JWKS() (*JWKS, error) {
	return NewKeyPairSigner(m.Access).GetJWKS()
}

// Provider hands out the process key material, generating and persisting
// the root secret on first use and re-deriving from it afterwards.
type Provider struct {
	store    SecretStore
	generate func() (string, error)

	mu       sync.Mutex
	material *Material
}

type ProviderOption func(*Provider)

// WithSecretGenerator replaces the root secret source, for tests.
func WithSecretGenerator(generate func() (string, error)) ProviderOption {
	return func(p *Provider) {
		p.generate = generate
	}
}

func NewProvider(store SecretStore, options ...ProviderOption) *Provider {
	p := &Provider{
		store:    store,
		generate: GenerateRootSecret,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// GetOrCreate returns the key material, creating the root secret if none is
// persisted. Any store failure is reported as ErrKeyMaterialUnavailable; the
// provider never falls back to an unpersisted secret.
func (p *Provider) GetOrCreate(ctx context.Context) (*Material, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.material != nil {
		return p.material, nil
	}

	secret, err := p.loadOrCreateSecret(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", autherrors.ErrKeyMaterialUnavailable, err)
	}

	material, err := DeriveMaterial(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", autherrors.ErrKeyMaterialUnavailable, err)
	}
	p.material = material
	return material, nil
}

func (p *Provider) loadOrCreateSecret(ctx context.Context) (string, error) {
	secret, err := p.store.GetRootSecret(ctx)
	if err == nil {
		return secret, nil
	}
	if !autherrors.Is(err, autherrors.ErrNotFound) {
		return "", fmt.Errorf("Provider.GetOrCreate GetRootSecret: %w", err)
	}

	secret, err = p.generate()
	if err != nil {
		return "", fmt.Errorf("Provider.GetOrCreate generate: %w", err)
	}

	err = p.store.PutRootSecret(ctx, secret)
	switch {
	case err == nil:
		log.Info().Msg("generated new root signing secret")
		return secret, nil
	case autherrors.Is(err, autherrors.ErrAlreadyExists):
		// Another instance won the race; use its secret.
		winner, err := p.store.GetRootSecret(ctx)
		if err != nil {
			return "", fmt.Errorf("Provider.GetOrCreate re-read: %w", err)
		}
		return winner, nil
	default:
		return "", fmt.Errorf("Provider.GetOrCreate PutRootSecret: %w", err)
	}
}

// DeriveMaterial derives the access and refresh keypairs from a root secret.
func DeriveMaterial(rootSecret string) (*Material, error) {
	access, err := Derive(rootSecret, PurposeAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := Derive(rootSecret, PurposeRefresh)
	if err != nil {
		return nil, err
	}
	return &Material{
		RootSecret: rootSecret,
		Access:     access,
		Refresh:    refresh,
	}, nil
}
