package token

import (
	"time"

	"github.com/jrsteele09/go-authcore/token/jwt"
)

// Token is the persisted record of an issued access or refresh token
type Token struct {
	TokenID     string
	UserID      string
	Kind        jwt.TokenKind
	SignedValue string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Revoked     bool
}

// Pair is returned when a user signs in
type Pair struct {
	UserID           string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RefreshResult carries a new access token and the refresh token the caller
// should keep, which is the presented one unless Rotated is set.
type RefreshResult struct {
	UserID           string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Rotated          bool
}
