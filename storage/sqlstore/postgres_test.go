package sqlstore_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jrsteele09/go-authcore/federation"
	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/storage/sqlstore"
	"github.com/jrsteele09/go-authcore/token"
	"github.com/jrsteele09/go-authcore/token/jwt"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func setupPostgresMock(t *testing.T) (*sqlstore.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return sqlstore.New(db, sqlstore.Postgres), mock
}

func TestPostgresPlaceholders(t *testing.T) {
	ctx := context.Background()

	t.Run("revoke uses numbered placeholders", func(t *testing.T) {
		store, mock := setupPostgresMock(t)
		mock.ExpectExec(`UPDATE tokens\s+SET revoked = TRUE\s+WHERE token_id = \$1 AND revoked = FALSE`).
			WithArgs("t1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		revoked, err := store.RevokeIfActive(ctx, "t1")
		require.NoError(t, err)
		require.True(t, revoked)
	})

	t.Run("lost revoke checks the row exists", func(t *testing.T) {
		store, mock := setupPostgresMock(t)
		mock.ExpectExec(`UPDATE tokens`).WithArgs("t1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM tokens WHERE token_id = \$1`).
			WithArgs("t1").
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		revoked, err := store.RevokeIfActive(ctx, "t1")
		require.NoError(t, err)
		require.False(t, revoked)
	})

	t.Run("insert token", func(t *testing.T) {
		store, mock := setupPostgresMock(t)
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		mock.ExpectExec(`INSERT INTO tokens .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)`).
			WithArgs("t1", "user-1", "access", "signed", now.Unix(), now.Add(time.Minute).Unix(), false).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.Insert(ctx, &token.Token{
			TokenID:     "t1",
			UserID:      "user-1",
			Kind:        jwt.KindAccess,
			SignedValue: "signed",
			IssuedAt:    now,
			ExpiresAt:   now.Add(time.Minute),
		})
		require.NoError(t, err)
	})
}

func TestPostgresErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unique violation", func(t *testing.T) {
		store, mock := setupPostgresMock(t)
		mock.ExpectExec(`INSERT INTO federation_states`).WillReturnError(&pq.Error{Code: "23505"})

		err := store.Put(ctx, &federation.State{StateID: "s1", Provider: "github"})
		require.ErrorIs(t, err, autherrors.ErrAlreadyExists)
	})

	t.Run("connection failure is store unavailable", func(t *testing.T) {
		store, mock := setupPostgresMock(t)
		mock.ExpectQuery(`SELECT token_id`).WithArgs("t1").WillReturnError(sql.ErrConnDone)

		_, err := store.Get(ctx, "t1")
		require.ErrorIs(t, err, autherrors.ErrStoreUnavailable)
	})

	t.Run("consume missing state", func(t *testing.T) {
		store, mock := setupPostgresMock(t)
		mock.ExpectQuery(`DELETE FROM federation_states\s+WHERE state_id = \$1\s+RETURNING`).
			WithArgs("s1").
			WillReturnRows(sqlmock.NewRows([]string{"state_id", "provider", "pkce_verifier", "nonce", "return_url", "created_at", "expires_at"}))

		_, err := store.Consume(ctx, "s1")
		require.ErrorIs(t, err, autherrors.ErrNotFound)
	})

	t.Run("root secret already present", func(t *testing.T) {
		store, mock := setupPostgresMock(t)
		mock.ExpectExec(`INSERT INTO key_material .* ON CONFLICT \(id\) DO NOTHING`).
			WithArgs("secret", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.ErrorIs(t, store.PutRootSecret(ctx, "secret"), autherrors.ErrAlreadyExists)
	})
}

func TestParseDialect(t *testing.T) {
	d, err := sqlstore.ParseDialect("Postgres")
	require.NoError(t, err)
	require.Equal(t, sqlstore.Postgres, d)

	_, err = sqlstore.ParseDialect("mysql")
	require.Error(t, err)
}
