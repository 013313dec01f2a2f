package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/token"
	"github.com/jrsteele09/go-authcore/token/jwt"
)

var _ token.Repo = (*Store)(nil)

func (s *Store) Insert(ctx context.Context, t *token.Token) error {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO tokens (token_id, user_id, kind, signed_value, issued_at, expires_at, revoked)
		VALUES (?, ?, ?, ?, ?, ?, ?);`,
		t.TokenID,
		t.UserID,
		string(t.Kind),
		t.SignedValue,
		t.IssuedAt.Unix(),
		t.ExpiresAt.Unix(),
		t.Revoked,
	)
	if isUniqueViolation(err) {
		return autherrors.ErrAlreadyExists
	}
	if err != nil {
		return unavailable("insert token", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, tokenID string) (*token.Token, error) {
	row := s.queryRow(ctx, s.db, `
		SELECT token_id, user_id, kind, signed_value, issued_at, expires_at, revoked
		FROM tokens
		WHERE token_id = ?;`,
		tokenID,
	)

	var (
		t                   token.Token
		kind                string
		issuedAt, expiresAt int64
	)
	err := row.Scan(&t.TokenID, &t.UserID, &kind, &t.SignedValue, &issuedAt, &expiresAt, &t.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, autherrors.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get token", err)
	}
	t.Kind = jwt.TokenKind(kind)
	t.IssuedAt = unixTime(issuedAt)
	t.ExpiresAt = unixTime(expiresAt)
	return &t, nil
}

// RevokeIfActive relies on the row lock taken by UPDATE so that exactly one
// of any concurrent callers sees a changed row.
func (s *Store) RevokeIfActive(ctx context.Context, tokenID string) (bool, error) {
	result, err := s.exec(ctx, s.db, `
		UPDATE tokens
		SET revoked = TRUE
		WHERE token_id = ? AND revoked = FALSE;`,
		tokenID,
	)
	if err != nil {
		return false, unavailable("revoke token", err)
	}
	n, err := rowsChanged(result)
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	err = s.queryRow(ctx, s.db, `SELECT 1 FROM tokens WHERE token_id = ?;`, tokenID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, autherrors.ErrNotFound
	}
	if err != nil {
		return false, unavailable("revoke token", err)
	}
	return false, nil
}
