package federation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-authcore/federation/providers"
	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const DefaultStateTTL = 10 * time.Minute

// Completion is the result of a successful callback.
type Completion struct {
	Profile   *providers.Profile
	ReturnURL string
}

// Broker runs the authorization-code flow against external identity providers.
type Broker struct {
	registry          *providers.Registry
	states            StateRepo
	client            *providers.Client
	oidc              *oidcVerifiers
	stateTTL          time.Duration
	allowedReturnURLs []string
	verifyIDTokens    bool
	nowFunc           func() time.Time
	logger            zerolog.Logger
}

type BrokerOption func(*Broker)

func WithStateTTL(ttl time.Duration) BrokerOption {
	return func(b *Broker) {
		b.stateTTL = ttl
	}
}

// WithAllowedReturnURLs restricts return URLs to those starting with one of
// the given prefixes. With no prefixes any URL is accepted.
func WithAllowedReturnURLs(prefixes ...string) BrokerOption {
	return func(b *Broker) {
		b.allowedReturnURLs = prefixes
	}
}

// WithHTTPClient sets the client used for the token exchange, OIDC discovery and profile requests.
func WithHTTPClient(httpClient *http.Client) BrokerOption {
	return func(b *Broker) {
		b.client = providers.NewClient(httpClient)
	}
}

// WithIDTokenVerification checks the id_token of providers that have an OIDC issuer.
func WithIDTokenVerification(enabled bool) BrokerOption {
	return func(b *Broker) {
		b.verifyIDTokens = enabled
	}
}

func WithNowFunc(now func() time.Time) BrokerOption {
	return func(b *Broker) {
		b.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) BrokerOption {
	return func(b *Broker) {
		b.logger = logger
	}
}

func NewBroker(registry *providers.Registry, states StateRepo, options ...BrokerOption) *Broker {
	b := &Broker{
		registry: registry,
		states:   states,
		client:   providers.NewClient(nil),
		stateTTL: DefaultStateTTL,
		nowFunc:  time.Now,
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(b)
	}
	b.oidc = newOIDCVerifiers(b.client.HTTPClient())
	return b
}

// Begin records a new state for provider and returns the URL the user agent
// should be sent to. Scopes override the provider's configured scopes when given.
func (b *Broker) Begin(ctx context.Context, provider string, scopes []string, returnURL string) (string, error) {
	d, err := b.registry.Lookup(provider)
	if err != nil {
		return "", err
	}
	if err := b.checkReturnURL(returnURL); err != nil {
		return "", err
	}

	stateID, err := generateRandomString(stateBytes)
	if err != nil {
		return "", errors.Wrap(err, "Broker.Begin state")
	}

	now := b.nowFunc()
	state := &State{
		StateID:   stateID,
		Provider:  d.Name,
		ReturnURL: returnURL,
		CreatedAt: now,
		ExpiresAt: now.Add(b.stateTTL),
	}

	var opts []oauth2.AuthCodeOption
	if d.RequiresPKCE {
		state.PKCEVerifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(state.PKCEVerifier))
	}
	if b.verifyIDTokens && d.Issuer != "" {
		if state.Nonce, err = generateRandomString(16); err != nil {
			return "", errors.Wrap(err, "Broker.Begin nonce")
		}
		opts = append(opts, oauth2.SetAuthURLParam("nonce", state.Nonce))
	}

	if err := b.states.Put(ctx, state); err != nil {
		return "", errors.Wrap(err, "Broker.Begin states.Put")
	}

	conf := *d.OAuth2
	if len(scopes) > 0 {
		conf.Scopes = scopes
	}

	b.logger.Debug().Str("provider", d.Name).Time("expires_at", state.ExpiresAt).Msg("federation started")
	return conf.AuthCodeURL(stateID, opts...), nil
}

// Complete consumes the state, exchanges the code and loads the user's
// profile. The state is gone after this call whatever the outcome.
func (b *Broker) Complete(ctx context.Context, provider, code, stateID string) (*Completion, error) {
	d, err := b.registry.Lookup(provider)
	if err != nil {
		return nil, err
	}

	state, err := b.consume(ctx, d.Name, stateID)
	if err != nil {
		return nil, err
	}

	if code == "" {
		return nil, fmt.Errorf("%w: %s returned no authorization code", autherrors.ErrUpstreamProvider, d.Name)
	}

	httpCtx := context.WithValue(ctx, oauth2.HTTPClient, b.client.HTTPClient())
	var opts []oauth2.AuthCodeOption
	if state.PKCEVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(state.PKCEVerifier))
	}
	token, err := d.OAuth2.Exchange(httpCtx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s code exchange: %v", autherrors.ErrUpstreamProvider, d.Name, err)
	}

	var idSubject string
	if state.Nonce != "" {
		idSubject, err = b.verifyIDToken(ctx, d, token, state.Nonce)
		if err != nil {
			return nil, err
		}
	}

	profile, err := b.client.FetchProfile(ctx, d, token.AccessToken)
	if err != nil {
		return nil, err
	}
	if idSubject != "" && idSubject != profile.Subject {
		return nil, fmt.Errorf("%w: %s id token subject does not match profile", autherrors.ErrUpstreamProvider, d.Name)
	}

	b.logger.Info().Str("provider", d.Name).Str("subject", profile.Subject).Msg("federation completed")
	return &Completion{Profile: profile, ReturnURL: state.ReturnURL}, nil
}

// PurgeExpired removes expired states when the store needs it. Stores that
// expire entries themselves report zero.
func (b *Broker) PurgeExpired(ctx context.Context) (int64, error) {
	purger, ok := b.states.(StatePurger)
	if !ok {
		return 0, nil
	}
	n, err := purger.PurgeExpired(ctx, b.nowFunc())
	if err != nil {
		return 0, errors.Wrap(err, "Broker.PurgeExpired")
	}
	if n > 0 {
		b.logger.Debug().Int64("purged", n).Msg("expired federation states removed")
	}
	return n, nil
}

func (b *Broker) consume(ctx context.Context, provider, stateID string) (*State, error) {
	if stateID == "" {
		return nil, autherrors.ErrCSRFStateMismatchOrExpired
	}
	state, err := b.states.Consume(ctx, stateID)
	if errors.Is(err, autherrors.ErrNotFound) {
		return nil, autherrors.ErrCSRFStateMismatchOrExpired
	}
	if err != nil {
		return nil, errors.Wrap(err, "Broker.Complete states.Consume")
	}
	if state.Expired(b.nowFunc()) || state.Provider != provider {
		return nil, autherrors.ErrCSRFStateMismatchOrExpired
	}
	return state, nil
}

func (b *Broker) verifyIDToken(ctx context.Context, d *providers.Descriptor, token *oauth2.Token, nonce string) (string, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		b.logger.Warn().Str("provider", d.Name).Msg("no id_token in token response")
		return "", nil
	}
	claims, err := b.oidc.verify(ctx, d.Issuer, d.OAuth2.ClientID, rawIDToken, nonce)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", autherrors.ErrUpstreamProvider, d.Name, err)
	}
	return claims.Subject, nil
}

func (b *Broker) checkReturnURL(returnURL string) error {
	if returnURL == "" {
		return nil
	}
	u, err := url.Parse(returnURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", autherrors.ErrInvalidReturnURL, returnURL)
	}
	if len(b.allowedReturnURLs) == 0 {
		return nil
	}
	for _, prefix := range b.allowedReturnURLs {
		if strings.HasPrefix(returnURL, prefix) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", autherrors.ErrInvalidReturnURL, returnURL)
}
