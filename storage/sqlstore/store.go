// Package sqlstore persists tokens, federation states, key material, provider
// configs and users in SQLite or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  zerolog.Logger
}

type StoreOption func(*Store)

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open connects to the database, applies the schema and returns a ready store.
func Open(ctx context.Context, dialect Dialect, dsn string, options ...StoreOption) (*Store, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == SQLite {
		// one writer at a time avoids SQLITE_BUSY under concurrent refreshes
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := New(db, dialect, options...)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info().Str("dialect", string(dialect)).Msg("database connection established")
	return s, nil
}

// New wraps an existing connection pool. The schema is not touched.
func New(db *sql.DB, dialect Dialect, options ...StoreOption) *Store {
	s := &Store{
		db:      db,
		dialect: dialect,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database and runs a trivial query
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("%w: health check: %v", autherrors.ErrStoreUnavailable, err)
	}
	return nil
}

// executor is satisfied by both *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exec(ctx context.Context, ex executor, query string, args ...any) (sql.Result, error) {
	return ex.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, ex executor, query string, args ...any) *sql.Row {
	return ex.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, ex executor, query string, args ...any) (*sql.Rows, error) {
	return ex.QueryContext(ctx, s.dialect.rebind(query), args...)
}

// inTransaction runs fn in a transaction, committing if it succeeds and rolling back otherwise.
func (s *Store) inTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).AnErr("original_error", err).Msg("failed to rollback transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit transaction", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", autherrors.ErrStoreUnavailable, op, err)
}

func rowsChanged(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, unavailable("rows affected", err)
	}
	return n, nil
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
