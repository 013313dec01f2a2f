package users

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-authcore/federation/providers"
)

type User struct {
	ID        string    `json:"id,omitempty"`         // Unique identifier for the user
	Email     string    `json:"email,omitempty"`      // Lower-cased email, unique across users
	Name      string    `json:"name,omitempty"`       // Display name taken from the first provider used
	Verified  bool      `json:"verified,omitempty"`   // The provider shared a real address rather than a placeholder
	Blocked   bool      `json:"blocked,omitempty"`    // Blocked users cannot sign in
	CreatedAt time.Time `json:"created_at,omitempty"` // When the user first signed in
	LastLogin time.Time `json:"last_login,omitempty"` // Last successful sign-in through any provider
}

// Identity links a user to one account at one provider
type Identity struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Provider     string          `json:"provider"`
	Subject      string          `json:"subject"`
	Data         json.RawMessage `json:"data,omitempty"` // Raw profile document as last returned by the provider
	LastSignInAt time.Time       `json:"last_sign_in_at"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Directory finds users by the identities they sign in with.
type Directory interface {
	// LocateOrCreate returns the user linked to the profile's provider
	// identity. Failing that, the user with the same email is linked to the
	// identity, and failing that a new user is created. Either way the
	// identity's data and the user's last login are refreshed.
	LocateOrCreate(ctx context.Context, profile *providers.Profile, now time.Time) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListIdentities(ctx context.Context, userID string) ([]*Identity, error)
	SetBlocked(ctx context.Context, userID string, blocked bool) error
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewUser builds a user for a profile seen for the first time
func NewUser(profile *providers.Profile, now time.Time) *User {
	email := NormalizeEmail(profile.Email)
	return &User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      profile.DisplayName,
		Verified:  !providers.IsPlaceholderEmail(email),
		CreatedAt: now,
		LastLogin: now,
	}
}

// NewIdentity links profile to userID. The raw profile is kept as the identity data.
func NewIdentity(userID string, profile *providers.Profile, now time.Time) (*Identity, error) {
	data, err := ProfileData(profile)
	if err != nil {
		return nil, err
	}
	return &Identity{
		ID:           uuid.NewString(),
		UserID:       userID,
		Provider:     profile.Provider,
		Subject:      profile.Subject,
		Data:         data,
		LastSignInAt: now,
		CreatedAt:    now,
	}, nil
}

func ProfileData(profile *providers.Profile) (json.RawMessage, error) {
	if profile.Raw == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(profile.Raw)
}
