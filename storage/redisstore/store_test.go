package redisstore_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-authcore/federation"
	"github.com/jrsteele09/go-authcore/federation/providers"
	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/storage/redisstore"
	"github.com/jrsteele09/go-authcore/token"
	"github.com/jrsteele09/go-authcore/token/jwt"
	"github.com/jrsteele09/go-authcore/token/keys"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	redis *miniredis.Miniredis
	store *redisstore.Store
	now   time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return &testFixture{
		redis: mr,
		store: redisstore.New(client, redisstore.WithExpiryGrace(time.Minute)),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *testFixture) newToken(id string) *token.Token {
	return &token.Token{
		TokenID:     id,
		UserID:      "user-1",
		Kind:        jwt.KindAccess,
		SignedValue: "signed." + id,
		IssuedAt:    f.now,
		ExpiresAt:   f.now.Add(time.Hour),
	}
}

func TestTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("insert and get", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Insert(ctx, f.newToken("t1")))

		got, err := f.store.Get(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, "user-1", got.UserID)
		require.Equal(t, jwt.KindAccess, got.Kind)
		require.Equal(t, "signed.t1", got.SignedValue)
		require.True(t, got.ExpiresAt.Equal(f.now.Add(time.Hour)))
		require.False(t, got.Revoked)

		require.Equal(t, time.Hour+time.Minute, f.redis.TTL("authcore:token:t1"))
	})

	t.Run("duplicate id", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Insert(ctx, f.newToken("t1")))
		require.ErrorIs(t, f.store.Insert(ctx, f.newToken("t1")), autherrors.ErrAlreadyExists)
	})

	t.Run("record expires after token plus grace", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Insert(ctx, f.newToken("t1")))
		f.redis.FastForward(time.Hour + time.Minute)

		_, err := f.store.Get(ctx, "t1")
		require.ErrorIs(t, err, autherrors.ErrNotFound)
	})

	t.Run("revoke transitions once", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Insert(ctx, f.newToken("t1")))

		revoked, err := f.store.RevokeIfActive(ctx, "t1")
		require.NoError(t, err)
		require.True(t, revoked)

		revoked, err = f.store.RevokeIfActive(ctx, "t1")
		require.NoError(t, err)
		require.False(t, revoked)

		got, err := f.store.Get(ctx, "t1")
		require.NoError(t, err)
		require.True(t, got.Revoked)

		_, err = f.store.RevokeIfActive(ctx, "missing")
		require.ErrorIs(t, err, autherrors.ErrNotFound)
	})

	t.Run("concurrent revokes have one winner", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Insert(ctx, f.newToken("t1")))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if revoked, err := f.store.RevokeIfActive(ctx, "t1"); err == nil && revoked {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		require.EqualValues(t, 1, wins.Load())
	})

	t.Run("server down", func(t *testing.T) {
		f := setupTestFixture(t)
		f.redis.Close()
		_, err := f.store.Get(ctx, "t1")
		require.ErrorIs(t, err, autherrors.ErrStoreUnavailable)
	})
}

func TestStates(t *testing.T) {
	ctx := context.Background()
	newState := func(f *testFixture, id string) *federation.State {
		return &federation.State{
			StateID:      id,
			Provider:     providers.Twitter,
			PKCEVerifier: "verifier",
			ReturnURL:    "https://app.example.com/",
			CreatedAt:    f.now,
			ExpiresAt:    f.now.Add(10 * time.Minute),
		}
	}

	t.Run("consume once", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Put(ctx, newState(f, "s1")))

		got, err := f.store.Consume(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, providers.Twitter, got.Provider)
		require.Equal(t, "verifier", got.PKCEVerifier)
		require.True(t, got.ExpiresAt.Equal(f.now.Add(10*time.Minute)))

		_, err = f.store.Consume(ctx, "s1")
		require.ErrorIs(t, err, autherrors.ErrNotFound)
	})

	t.Run("duplicate state", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Put(ctx, newState(f, "s1")))
		require.ErrorIs(t, f.store.Put(ctx, newState(f, "s1")), autherrors.ErrAlreadyExists)
	})

	t.Run("abandoned states expire", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Put(ctx, newState(f, "s1")))
		f.redis.FastForward(10 * time.Minute)

		_, err := f.store.Consume(ctx, "s1")
		require.ErrorIs(t, err, autherrors.ErrNotFound)
	})

	t.Run("zero lifetime", func(t *testing.T) {
		f := setupTestFixture(t)
		state := newState(f, "s1")
		state.ExpiresAt = state.CreatedAt
		require.Error(t, f.store.Put(ctx, state))
	})
}

func TestRootSecret(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	_, err := f.store.GetRootSecret(ctx)
	require.ErrorIs(t, err, autherrors.ErrNotFound)

	first, err := keys.NewProvider(f.store).GetOrCreate(ctx)
	require.NoError(t, err)
	second, err := keys.NewProvider(f.store).GetOrCreate(ctx)
	require.NoError(t, err)
	require.Equal(t, first.Access.KeyID, second.Access.KeyID)

	require.ErrorIs(t, f.store.PutRootSecret(ctx, "x"), autherrors.ErrAlreadyExists)
}

func TestBrokerPurgeIsNoOp(t *testing.T) {
	f := setupTestFixture(t)
	registry, err := providers.NewRegistry(nil)
	require.NoError(t, err)

	n, err := federation.NewBroker(registry, f.store).PurgeExpired(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestStoreOptions(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := redisstore.New(client, redisstore.WithPrefix("tenant-a:"))

	t.Run("prefix namespaces every key", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, store.Insert(ctx, &token.Token{
			TokenID:   "t1",
			UserID:    "user-1",
			Kind:      jwt.KindRefresh,
			IssuedAt:  now,
			ExpiresAt: now.Add(time.Hour),
		}))
		require.NoError(t, store.PutRootSecret(ctx, "secret"))

		require.True(t, mr.Exists("tenant-a:token:t1"))
		require.True(t, mr.Exists("tenant-a:key_material:root"))
		require.False(t, mr.Exists("authcore:token:t1"))
	})

	t.Run("health check", func(t *testing.T) {
		require.NoError(t, store.HealthCheck(ctx))
		mr.Close()
		require.ErrorIs(t, store.HealthCheck(ctx), autherrors.ErrStoreUnavailable)
	})
}
