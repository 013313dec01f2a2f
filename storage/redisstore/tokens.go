package redisstore

import (
	"context"
	"strconv"
	"time"

	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/token"
	"github.com/jrsteele09/go-authcore/token/jwt"
	"github.com/redis/go-redis/v9"
)

var _ token.Repo = (*Store)(nil)

var insertTokenScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'user_id', ARGV[1],
	'kind', ARGV[2],
	'signed_value', ARGV[3],
	'issued_at', ARGV[4],
	'expires_at', ARGV[5],
	'revoked', ARGV[6])
redis.call('PEXPIRE', KEYS[1], ARGV[7])
return 1
`)

// -1 missing, 0 already revoked, 1 revoked by this call
var revokeTokenScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HGET', KEYS[1], 'revoked') == '1' then
	return 0
end
redis.call('HSET', KEYS[1], 'revoked', '1')
return 1
`)

func (s *Store) Insert(ctx context.Context, t *token.Token) error {
	lifetime := t.ExpiresAt.Sub(t.IssuedAt) + s.grace
	created, err := insertTokenScript.Run(ctx, s.client, []string{s.key("token", t.TokenID)},
		t.UserID,
		string(t.Kind),
		t.SignedValue,
		t.IssuedAt.Unix(),
		t.ExpiresAt.Unix(),
		boolFlag(t.Revoked),
		lifetime.Milliseconds(),
	).Int()
	if err != nil {
		return unavailable("insert token", err)
	}
	if created == 0 {
		return autherrors.ErrAlreadyExists
	}
	return nil
}

func (s *Store) Get(ctx context.Context, tokenID string) (*token.Token, error) {
	fields, err := s.client.HGetAll(ctx, s.key("token", tokenID)).Result()
	if err != nil {
		return nil, unavailable("get token", err)
	}
	if len(fields) == 0 {
		return nil, autherrors.ErrNotFound
	}

	issuedAt, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, unavailable("decode token issued_at", err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, unavailable("decode token expires_at", err)
	}
	return &token.Token{
		TokenID:     tokenID,
		UserID:      fields["user_id"],
		Kind:        jwt.TokenKind(fields["kind"]),
		SignedValue: fields["signed_value"],
		IssuedAt:    time.Unix(issuedAt, 0).UTC(),
		ExpiresAt:   time.Unix(expiresAt, 0).UTC(),
		Revoked:     fields["revoked"] == "1",
	}, nil
}

// RevokeIfActive runs as a single script so the check and the write cannot interleave.
func (s *Store) RevokeIfActive(ctx context.Context, tokenID string) (bool, error) {
	result, err := revokeTokenScript.Run(ctx, s.client, []string{s.key("token", tokenID)}).Int()
	if err != nil {
		return false, unavailable("revoke token", err)
	}
	switch result {
	case -1:
		return false, autherrors.ErrNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
