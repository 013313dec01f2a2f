package jwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/token/keys"
)

// TokenKind separates access tokens from refresh tokens
type TokenKind string

const (
	KindAccess  TokenKind = keys.PurposeAccess
	KindRefresh TokenKind = keys.PurposeRefresh
)

func (k TokenKind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// Claims is the payload signed into every session token
type Claims struct {
	Kind TokenKind `json:"kind"`
	jwtlib.RegisteredClaims
}

// Codec mints and verifies signed session tokens. It never touches storage.
type Codec struct {
	issuer  string
	skew    time.Duration
	nowFunc func() time.Time
	parser  *jwtlib.Parser
}

type CodecOption func(*Codec)

func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

// WithClockSkew tolerates issuers whose clock runs slightly ahead
func WithClockSkew(skew time.Duration) CodecOption {
	return func(c *Codec) {
		c.skew = skew
	}
}

func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

func NewCodec(options ...CodecOption) *Codec {
	c := &Codec{
		skew:    30 * time.Second,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	c.parser = jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodEdDSA.Alg()}),
		jwtlib.WithStrictDecoding(),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithIssuedAt(),
		jwtlib.WithLeeway(c.skew),
		jwtlib.WithTimeFunc(c.nowFunc),
	)
	return c
}

// Mint signs a new token for userID that expires ttl from now.
func (c *Codec) Mint(userID string, ttl time.Duration, kind TokenKind, keyPair *keys.KeyPair) (string, *Claims, error) {
	if strings.TrimSpace(userID) == "" {
		return "", nil, fmt.Errorf("Codec.Mint: user id is required")
	}
	if !kind.Valid() {
		return "", nil, fmt.Errorf("Codec.Mint: unknown token kind %q", kind)
	}

	now := c.nowFunc().Truncate(time.Second)
	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			ID:        uuid.New().String(),
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := keys.NewKeyPairSigner(keyPair).Sign(claims)
	if err != nil {
		return "", nil, fmt.Errorf("Codec.Mint: %w", err)
	}
	return signed, claims, nil
}

type header struct {
	Kid string `json:"kid"`
}

// Verify checks the signature against keyPair before looking at any claim,
// then enforces expiry and issued-at. It is side-effect free.
func (c *Codec) Verify(signed string, keyPair *keys.KeyPair) (*Claims, error) {
	parts := strings.Split(signed, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", autherrors.ErrMalformedToken, len(parts))
	}
	signature, err := c.parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", autherrors.ErrMalformedToken, err)
	}

	// the algorithm comes from the key pair, never from the header
	if err := keyPair.GetSigningMethod().Verify(parts[0]+"."+parts[1], signature, keyPair.PublicKey); err != nil {
		if kid := c.unverifiedKeyID(parts[0]); kid != "" && kid != keyPair.KeyID {
			return nil, autherrors.ErrKeyMismatch
		}
		return nil, autherrors.ErrInvalidSignature
	}

	claims := &Claims{}
	_, err = c.parser.ParseWithClaims(signed, claims, keys.NewKeyPairSigner(keyPair).GetVerificationKey)
	if err != nil {
		return nil, classify(err)
	}
	if claims.Subject == "" || claims.ID == "" || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing required claims", autherrors.ErrMalformedToken)
	}
	if string(claims.Kind) != keyPair.Purpose {
		return nil, autherrors.ErrKeyMismatch
	}
	// skew only widens the issued-at window; expiry is exact
	if !c.nowFunc().Before(claims.ExpiresAt.Time) {
		return nil, autherrors.ErrExpired
	}
	return claims, nil
}

// unverifiedKeyID reads the kid header of a token whose signature failed.
func (c *Codec) unverifiedKeyID(segment string) string {
	raw, err := c.parser.DecodeSegment(segment)
	if err != nil {
		return ""
	}
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return ""
	}
	return h.Kid
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return autherrors.ErrExpired
	case errors.Is(err, jwtlib.ErrTokenNotValidYet), errors.Is(err, jwtlib.ErrTokenUsedBeforeIssued):
		return autherrors.ErrNotYetValid
	case errors.Is(err, jwtlib.ErrTokenSignatureInvalid), errors.Is(err, jwtlib.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", autherrors.ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: claims: %v", autherrors.ErrMalformedToken, err)
	}
}
