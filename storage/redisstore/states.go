package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-authcore/federation"
	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/redis/go-redis/v9"
)

var _ federation.StateRepo = (*Store)(nil)

type storedState struct {
	Provider     string `json:"provider"`
	PKCEVerifier string `json:"pkce_verifier,omitempty"`
	Nonce        string `json:"nonce,omitempty"`
	ReturnURL    string `json:"return_url,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Put stores the state with a TTL equal to its lifetime, so Redis drops
// abandoned sign-ins without a purge job.
func (s *Store) Put(ctx context.Context, state *federation.State) error {
	ttl := state.ExpiresAt.Sub(state.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("federation state %s has no lifetime", state.StateID)
	}
	payload, err := json.Marshal(storedState{
		Provider:     state.Provider,
		PKCEVerifier: state.PKCEVerifier,
		Nonce:        state.Nonce,
		ReturnURL:    state.ReturnURL,
		CreatedAt:    state.CreatedAt.Unix(),
		ExpiresAt:    state.ExpiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.key("state", state.StateID), payload, ttl).Result()
	if err != nil {
		return unavailable("persist state", err)
	}
	if !created {
		return autherrors.ErrAlreadyExists
	}
	return nil
}

// Consume uses GETDEL so only one caller ever receives the state.
func (s *Store) Consume(ctx context.Context, stateID string) (*federation.State, error) {
	payload, err := s.client.GetDel(ctx, s.key("state", stateID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, autherrors.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("consume state", err)
	}

	var stored storedState
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &federation.State{
		StateID:      stateID,
		Provider:     stored.Provider,
		PKCEVerifier: stored.PKCEVerifier,
		Nonce:        stored.Nonce,
		ReturnURL:    stored.ReturnURL,
		CreatedAt:    time.Unix(stored.CreatedAt, 0).UTC(),
		ExpiresAt:    time.Unix(stored.ExpiresAt, 0).UTC(),
	}, nil
}
