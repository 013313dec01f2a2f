package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jrsteele09/go-authcore/federation/providers"
	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/users"
)

var _ users.Directory = (*Store)(nil)

const userColumns = `u.id, u.email, u.name, u.verified, u.blocked, u.created_at, u.last_login`

// LocateOrCreate runs in a transaction. Two first sign-ins racing on the same
// identity or email collide on a unique index; the loser retries once and
// finds the winner's rows.
func (s *Store) LocateOrCreate(ctx context.Context, profile *providers.Profile, now time.Time) (*users.User, error) {
	data, err := users.ProfileData(profile)
	if err != nil {
		return nil, err
	}

	var user *users.User
	for attempt := 0; attempt < 2; attempt++ {
		err = s.inTransaction(ctx, func(tx *sql.Tx) error {
			var txErr error
			user, txErr = s.locateOrCreate(ctx, tx, profile, string(data), now)
			return txErr
		})
		if !errors.Is(err, autherrors.ErrAlreadyExists) {
			break
		}
		s.logger.Debug().Str("provider", profile.Provider).Msg("concurrent first sign in, retrying")
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) locateOrCreate(ctx context.Context, tx *sql.Tx, profile *providers.Profile, data string, now time.Time) (*users.User, error) {
	user, err := s.scanUser(s.queryRow(ctx, tx, `
		SELECT `+userColumns+`
		FROM user_identities i
		JOIN users u ON u.id = i.user_id
		WHERE i.provider = ? AND i.subject = ?;`,
		profile.Provider, profile.Subject,
	))
	switch {
	case err == nil:
		if _, err := s.exec(ctx, tx, `
			UPDATE user_identities SET data = ?, last_sign_in_at = ?
			WHERE provider = ? AND subject = ?;`,
			data, now.Unix(), profile.Provider, profile.Subject,
		); err != nil {
			return nil, unavailable("update identity", err)
		}
		return s.touchLastLogin(ctx, tx, user, now)
	case !errors.Is(err, autherrors.ErrNotFound):
		return nil, err
	}

	user, err = s.scanUser(s.queryRow(ctx, tx, `SELECT `+userColumns+` FROM users u WHERE u.email = ?;`, users.NormalizeEmail(profile.Email)))
	switch {
	case err == nil:
		if user, err = s.touchLastLogin(ctx, tx, user, now); err != nil {
			return nil, err
		}
	case errors.Is(err, autherrors.ErrNotFound):
		user = users.NewUser(profile, now)
		_, err = s.exec(ctx, tx, `
			INSERT INTO users (id, email, name, verified, blocked, created_at, last_login)
			VALUES (?, ?, ?, ?, ?, ?, ?);`,
			user.ID, user.Email, user.Name, user.Verified, user.Blocked, user.CreatedAt.Unix(), user.LastLogin.Unix(),
		)
		if isUniqueViolation(err) {
			return nil, autherrors.ErrAlreadyExists
		}
		if err != nil {
			return nil, unavailable("insert user", err)
		}
	default:
		return nil, err
	}

	identity, err := users.NewIdentity(user.ID, profile, now)
	if err != nil {
		return nil, err
	}
	_, err = s.exec(ctx, tx, `
		INSERT INTO user_identities (id, user_id, provider, subject, data, last_sign_in_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?);`,
		identity.ID, identity.UserID, identity.Provider, identity.Subject, data, identity.LastSignInAt.Unix(), identity.CreatedAt.Unix(),
	)
	if isUniqueViolation(err) {
		return nil, autherrors.ErrAlreadyExists
	}
	if err != nil {
		return nil, unavailable("insert identity", err)
	}
	return user, nil
}

func (s *Store) touchLastLogin(ctx context.Context, tx *sql.Tx, user *users.User, now time.Time) (*users.User, error) {
	if _, err := s.exec(ctx, tx, `UPDATE users SET last_login = ? WHERE id = ?;`, now.Unix(), user.ID); err != nil {
		return nil, unavailable("update last login", err)
	}
	user.LastLogin = unixTime(now.Unix())
	return user, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*users.User, error) {
	return s.scanUser(s.queryRow(ctx, s.db, `SELECT `+userColumns+` FROM users u WHERE u.id = ?;`, id))
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return s.scanUser(s.queryRow(ctx, s.db, `SELECT `+userColumns+` FROM users u WHERE u.email = ?;`, users.NormalizeEmail(email)))
}

func (s *Store) ListIdentities(ctx context.Context, userID string) ([]*users.Identity, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT id, user_id, provider, subject, data, last_sign_in_at, created_at
		FROM user_identities
		WHERE user_id = ?
		ORDER BY created_at, provider;`,
		userID,
	)
	if err != nil {
		return nil, unavailable("list identities", err)
	}
	defer rows.Close()

	var identities []*users.Identity
	for rows.Next() {
		var (
			identity             users.Identity
			data                 string
			lastSignIn, createdAt int64
		)
		if err := rows.Scan(&identity.ID, &identity.UserID, &identity.Provider, &identity.Subject, &data, &lastSignIn, &createdAt); err != nil {
			return nil, unavailable("scan identity", err)
		}
		identity.Data = []byte(data)
		identity.LastSignInAt = unixTime(lastSignIn)
		identity.CreatedAt = unixTime(createdAt)
		identities = append(identities, &identity)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list identities", err)
	}
	return identities, nil
}

func (s *Store) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	result, err := s.exec(ctx, s.db, `UPDATE users SET blocked = ? WHERE id = ?;`, blocked, userID)
	if err != nil {
		return unavailable("set blocked", err)
	}
	n, err := rowsChanged(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return autherrors.ErrNotFound
	}
	return nil
}

func (s *Store) scanUser(row *sql.Row) (*users.User, error) {
	var (
		user                 users.User
		createdAt, lastLogin int64
	)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Verified, &user.Blocked, &createdAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, autherrors.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("scan user", err)
	}
	user.CreatedAt = unixTime(createdAt)
	user.LastLogin = unixTime(lastLogin)
	return &user, nil
}
