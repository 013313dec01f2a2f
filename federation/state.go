package federation

import (
	"context"
	"time"
)

// State is the server-side half of a federated sign-in. The StateID travels
// through the provider as the OAuth2 state parameter and must come back
// exactly once before ExpiresAt.
type State struct {
	StateID      string
	Provider     string
	PKCEVerifier string
	Nonce        string
	ReturnURL    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func (s *State) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// StateRepo stores pending federation states.
type StateRepo interface {
	Put(ctx context.Context, state *State) error
	// Consume atomically removes and returns the state. A second Consume of
	// the same id, or any unknown id, returns ErrNotFound.
	Consume(ctx context.Context, stateID string) (*State, error)
}

// StatePurger is implemented by stores that need expired rows removed
// explicitly rather than expiring them on their own.
type StatePurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
