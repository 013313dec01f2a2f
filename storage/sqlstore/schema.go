package sqlstore

import (
	"context"
	"fmt"
)

// Timestamps are unix seconds so both dialects share one schema.
var schema = []struct {
	name string
	ddl  string
}{
	{"tokens", `
		CREATE TABLE IF NOT EXISTS tokens (
			token_id     TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			kind         TEXT NOT NULL,
			signed_value TEXT NOT NULL,
			issued_at    BIGINT NOT NULL,
			expires_at   BIGINT NOT NULL,
			revoked      BOOLEAN NOT NULL DEFAULT FALSE
		);`},
	{"tokens_user_idx", `CREATE INDEX IF NOT EXISTS tokens_user_idx ON tokens (user_id);`},
	{"federation_states", `
		CREATE TABLE IF NOT EXISTS federation_states (
			state_id      TEXT PRIMARY KEY,
			provider      TEXT NOT NULL,
			pkce_verifier TEXT NOT NULL DEFAULT '',
			nonce         TEXT NOT NULL DEFAULT '',
			return_url    TEXT NOT NULL DEFAULT '',
			created_at    BIGINT NOT NULL,
			expires_at    BIGINT NOT NULL
		);`},
	{"federation_states_expiry_idx", `CREATE INDEX IF NOT EXISTS federation_states_expiry_idx ON federation_states (expires_at);`},
	{"key_material", `
		CREATE TABLE IF NOT EXISTS key_material (
			id          INTEGER PRIMARY KEY CHECK (id = 1),
			root_secret TEXT NOT NULL,
			created_at  BIGINT NOT NULL
		);`},
	{"provider_configs", `
		CREATE TABLE IF NOT EXISTS provider_configs (
			name       TEXT PRIMARY KEY,
			config     TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		);`},
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL DEFAULT '',
			verified   BOOLEAN NOT NULL DEFAULT FALSE,
			blocked    BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL,
			last_login BIGINT NOT NULL
		);`},
	{"user_identities", `
		CREATE TABLE IF NOT EXISTS user_identities (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL REFERENCES users (id),
			provider        TEXT NOT NULL,
			subject         TEXT NOT NULL,
			data            TEXT NOT NULL DEFAULT '{}',
			last_sign_in_at BIGINT NOT NULL,
			created_at      BIGINT NOT NULL,
			UNIQUE (provider, subject)
		);`},
}

// Migrate creates any missing tables. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if s.dialect == SQLite {
		if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
			return fmt.Errorf("failed to init database schema: couldn't enable foreign keys: %w", err)
		}
	}
	for _, table := range schema {
		if _, err := s.db.ExecContext(ctx, table.ddl); err != nil {
			return fmt.Errorf("failed to init '%s' table schema: %w", table.name, err)
		}
	}
	return nil
}
