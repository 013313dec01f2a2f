package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/token/keys"
)

var _ keys.SecretStore = (*Store)(nil)

func (s *Store) GetRootSecret(ctx context.Context) (string, error) {
	var secret string
	err := s.queryRow(ctx, s.db, `SELECT root_secret FROM key_material WHERE id = 1;`).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return "", autherrors.ErrNotFound
	}
	if err != nil {
		return "", unavailable("get root secret", err)
	}
	return secret, nil
}

// PutRootSecret stores the secret only if none exists. The single-row table
// makes the first writer win.
func (s *Store) PutRootSecret(ctx context.Context, secret string) error {
	result, err := s.exec(ctx, s.db, `
		INSERT INTO key_material (id, root_secret, created_at)
		VALUES (1, ?, ?)
		ON CONFLICT (id) DO NOTHING;`,
		secret,
		time.Now().Unix(),
	)
	if err != nil {
		return unavailable("put root secret", err)
	}
	n, err := rowsChanged(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return autherrors.ErrAlreadyExists
	}
	return nil
}
