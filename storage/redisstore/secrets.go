package redisstore

import (
	"context"
	"errors"

	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/token/keys"
	"github.com/redis/go-redis/v9"
)

var _ keys.SecretStore = (*Store)(nil)

func (s *Store) GetRootSecret(ctx context.Context) (string, error) {
	secret, err := s.client.Get(ctx, s.key("key_material", "root")).Result()
	if errors.Is(err, redis.Nil) {
		return "", autherrors.ErrNotFound
	}
	if err != nil {
		return "", unavailable("get root secret", err)
	}
	return secret, nil
}

func (s *Store) PutRootSecret(ctx context.Context, secret string) error {
	created, err := s.client.SetNX(ctx, s.key("key_material", "root"), secret, 0).Result()
	if err != nil {
		return unavailable("put root secret", err)
	}
	if !created {
		return autherrors.ErrAlreadyExists
	}
	return nil
}
