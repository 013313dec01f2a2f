package token

import (
	"context"
	"time"

	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/token/jwt"
	"github.com/jrsteele09/go-authcore/token/keys"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultAccessTokenTTL    = 15 * time.Minute
	defaultRefreshTokenTTL   = 7 * 24 * time.Hour
	defaultRotationThreshold = time.Hour
)

// Manager issues, authenticates, refreshes and revokes session tokens.
type Manager struct {
	repo              Repo
	material          *keys.Material
	codec             *jwt.Codec
	revokedCache      RevokedTokenCache
	accessTokenTTL    time.Duration
	refreshTokenTTL   time.Duration
	rotationThreshold time.Duration
	issuer            string
	clockSkew         *time.Duration
	nowFunc           func() time.Time
	logger            zerolog.Logger
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenTTL time.Duration, refreshTokenTTL time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenTTL = accessTokenTTL
		m.refreshTokenTTL = refreshTokenTTL
	}
}

// WithRotationThreshold sets how close to expiry a refresh token must be before a refresh rotates it.
func WithRotationThreshold(threshold time.Duration) ManagerOption {
	return func(m *Manager) {
		m.rotationThreshold = threshold
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithClockSkew(skew time.Duration) ManagerOption {
	return func(m *Manager) {
		m.clockSkew = &skew
	}
}

func WithRevokedTokenCache(cache RevokedTokenCache) ManagerOption {
	return func(m *Manager) {
		m.revokedCache = cache
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func New(repo Repo, material *keys.Material, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:         repo,
		material:     material,
		revokedCache: NewInMemoryRevokedTokenCache(),
		logger:       log.Logger,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenTTL == 0 {
		m.accessTokenTTL = defaultAccessTokenTTL
	}
	if m.refreshTokenTTL == 0 {
		m.refreshTokenTTL = defaultRefreshTokenTTL
	}
	if m.rotationThreshold == 0 {
		m.rotationThreshold = defaultRotationThreshold
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}

	codecOptions := []jwt.CodecOption{jwt.WithIssuer(m.issuer), jwt.WithNowFunc(m.nowFunc)}
	if m.clockSkew != nil {
		codecOptions = append(codecOptions, jwt.WithClockSkew(*m.clockSkew))
	}
	m.codec = jwt.NewCodec(codecOptions...)
	return m
}

// IssuePair mints and persists a fresh access and refresh token for userID.
func (m *Manager) IssuePair(ctx context.Context, userID string) (*Pair, error) {
	access, err := m.mintAndStore(ctx, userID, m.accessTokenTTL, jwt.KindAccess, m.material.Access)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.IssuePair access")
	}
	refresh, err := m.mintAndStore(ctx, userID, m.refreshTokenTTL, jwt.KindRefresh, m.material.Refresh)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.IssuePair refresh")
	}

	return &Pair{
		UserID:           userID,
		AccessToken:      access.SignedValue,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.SignedValue,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// Authenticate returns the user id an access token was issued to. Every
// failure satisfies autherrors.IsUnauthorized except store outages.
func (m *Manager) Authenticate(ctx context.Context, accessToken string) (string, error) {
	claims, err := m.codec.Verify(accessToken, m.material.Access)
	if err != nil {
		m.logger.Debug().Err(err).Msg("access token rejected by codec")
		return "", errors.Wrap(err, "Manager.Authenticate Verify")
	}

	if _, err := m.activeRow(ctx, claims); err != nil {
		return "", errors.Wrap(err, "Manager.Authenticate")
	}
	return claims.Subject, nil
}

// Refresh exchanges a valid refresh token for a new access token. When the
// refresh token is within the rotation threshold of expiry it is revoked
// before a replacement is minted; a concurrent refresh that loses the revoke
// sees ErrRevoked.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := m.codec.Verify(refreshToken, m.material.Refresh)
	if err != nil {
		m.logger.Debug().Err(err).Msg("refresh token rejected by codec")
		return nil, errors.Wrap(err, "Manager.Refresh Verify")
	}

	row, err := m.activeRow(ctx, claims)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.Refresh")
	}

	result := &RefreshResult{
		UserID:           row.UserID,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: claims.ExpiresAt.Time,
	}

	if claims.ExpiresAt.Sub(m.nowFunc()) <= m.rotationThreshold {
		revoked, err := m.repo.RevokeIfActive(ctx, claims.ID)
		if err != nil {
			return nil, errors.Wrap(err, "Manager.Refresh RevokeIfActive")
		}
		if !revoked {
			m.logger.Warn().Str("jti", claims.ID).Msg("refresh token already rotated")
			return nil, errors.Wrap(autherrors.ErrRevoked, "Manager.Refresh RevokeIfActive")
		}
		m.revokedCache.Add(claims.ID, claims.ExpiresAt.Time)

		replacement, err := m.mintAndStore(ctx, row.UserID, m.refreshTokenTTL, jwt.KindRefresh, m.material.Refresh)
		if err != nil {
			return nil, errors.Wrap(err, "Manager.Refresh rotate")
		}
		result.RefreshToken = replacement.SignedValue
		result.RefreshExpiresAt = replacement.ExpiresAt
		result.Rotated = true
	}

	access, err := m.mintAndStore(ctx, row.UserID, m.accessTokenTTL, jwt.KindAccess, m.material.Access)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.Refresh access")
	}
	result.AccessToken = access.SignedValue
	result.AccessExpiresAt = access.ExpiresAt
	return result, nil
}

// Revoke marks an access or refresh token revoked. It reports false without
// error when the token was already revoked or has expired.
func (m *Manager) Revoke(ctx context.Context, signed string) (bool, error) {
	claims, err := m.codec.Verify(signed, m.material.Access)
	if autherrors.Is(err, autherrors.ErrKeyMismatch) {
		claims, err = m.codec.Verify(signed, m.material.Refresh)
	}
	if autherrors.Is(err, autherrors.ErrExpired) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "Manager.Revoke Verify")
	}

	revoked, err := m.repo.RevokeIfActive(ctx, claims.ID)
	if autherrors.Is(err, autherrors.ErrNotFound) {
		return false, errors.Wrap(autherrors.ErrUnknownToken, "Manager.Revoke")
	}
	if err != nil {
		return false, errors.Wrap(err, "Manager.Revoke RevokeIfActive")
	}
	m.revokedCache.Add(claims.ID, claims.ExpiresAt.Time)
	return revoked, nil
}

// CleanupRevokedTokens removes expired tokens from the revocation cache
func (m *Manager) CleanupRevokedTokens() {
	m.revokedCache.Cleanup(m.nowFunc())
}

// JWKS publishes the access token verification key
func (m *Manager) JWKS() (*keys.JWKS, error) {
	return m.material.JWKS()
}

func (m *Manager) activeRow(ctx context.Context, claims *jwt.Claims) (*Token, error) {
	if m.revokedCache.IsRevoked(claims.ID) {
		return nil, autherrors.ErrRevoked
	}

	row, err := m.repo.Get(ctx, claims.ID)
	if autherrors.Is(err, autherrors.ErrNotFound) {
		m.logger.Debug().Str("jti", claims.ID).Msg("token has no stored row")
		return nil, autherrors.ErrUnknownToken
	}
	if err != nil {
		return nil, err
	}
	if row.UserID != claims.Subject || row.Kind != claims.Kind {
		m.logger.Warn().Str("jti", claims.ID).Msg("token row does not match its claims")
		return nil, autherrors.ErrUnknownToken
	}
	if row.Revoked {
		m.revokedCache.Add(row.TokenID, row.ExpiresAt)
		return nil, autherrors.ErrRevoked
	}
	return row, nil
}

func (m *Manager) mintAndStore(ctx context.Context, userID string, ttl time.Duration, kind jwt.TokenKind, keyPair *keys.KeyPair) (*Token, error) {
	signed, claims, err := m.codec.Mint(userID, ttl, kind, keyPair)
	if err != nil {
		return nil, err
	}

	t := &Token{
		TokenID:     claims.ID,
		UserID:      userID,
		Kind:        kind,
		SignedValue: signed,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}
	if err := m.repo.Insert(ctx, t); err != nil {
		return nil, errors.Wrap(err, "Insert")
	}
	return t, nil
}
