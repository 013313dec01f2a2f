package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jrsteele09/go-authcore/federation"
	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
)

var (
	_ federation.StateRepo   = (*Store)(nil)
	_ federation.StatePurger = (*Store)(nil)
)

func (s *Store) Put(ctx context.Context, state *federation.State) error {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO federation_states (state_id, provider, pkce_verifier, nonce, return_url, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?);`,
		state.StateID,
		state.Provider,
		state.PKCEVerifier,
		state.Nonce,
		state.ReturnURL,
		state.CreatedAt.Unix(),
		state.ExpiresAt.Unix(),
	)
	if isUniqueViolation(err) {
		return autherrors.ErrAlreadyExists
	}
	if err != nil {
		return unavailable("put federation state", err)
	}
	return nil
}

// Consume deletes the row and returns it in one statement, so a state can
// only ever be consumed once.
func (s *Store) Consume(ctx context.Context, stateID string) (*federation.State, error) {
	row := s.queryRow(ctx, s.db, `
		DELETE FROM federation_states
		WHERE state_id = ?
		RETURNING state_id, provider, pkce_verifier, nonce, return_url, created_at, expires_at;`,
		stateID,
	)

	var (
		state                federation.State
		createdAt, expiresAt int64
	)
	err := row.Scan(&state.StateID, &state.Provider, &state.PKCEVerifier, &state.Nonce, &state.ReturnURL, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, autherrors.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("consume federation state", err)
	}
	state.CreatedAt = unixTime(createdAt)
	state.ExpiresAt = unixTime(expiresAt)
	return &state, nil
}

func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.exec(ctx, s.db, `DELETE FROM federation_states WHERE expires_at <= ?;`, now.Unix())
	if err != nil {
		return 0, unavailable("purge federation states", err)
	}
	return rowsChanged(result)
}
