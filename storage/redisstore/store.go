// Package redisstore keeps tokens, federation states and the root secret in Redis.
package redisstore

import (
	"context"
	"fmt"
	"time"

	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultPrefix = "authcore:"
	// tokens stay readable this long after expiry so late revokes still resolve
	defaultGrace = time.Hour
)

type Store struct {
	client redis.UniversalClient
	prefix string
	grace  time.Duration
	logger zerolog.Logger
}

type StoreOption func(*Store)

func WithPrefix(prefix string) StoreOption {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithExpiryGrace sets how long token records outlive the token itself.
func WithExpiryGrace(grace time.Duration) StoreOption {
	return func(s *Store) {
		s.grace = grace
	}
}

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open connects to a single Redis server and checks it responds.
func Open(ctx context.Context, addr, password string, db int, options ...StoreOption) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	s := New(client, options...)
	s.logger.Info().Str("addr", addr).Int("db", db).Msg("redis connection established")
	return s, nil
}

func New(client redis.UniversalClient, options ...StoreOption) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
		grace:  defaultGrace,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *Store) key(kind, id string) string {
	return s.prefix + kind + ":" + id
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", autherrors.ErrStoreUnavailable, op, err)
}
