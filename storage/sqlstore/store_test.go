package sqlstore_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-authcore/federation"
	"github.com/jrsteele09/go-authcore/federation/providers"
	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/storage/sqlstore"
	"github.com/jrsteele09/go-authcore/token"
	"github.com/jrsteele09/go-authcore/token/jwt"
	"github.com/jrsteele09/go-authcore/token/keys"
	"github.com/jrsteele09/go-authcore/users"
	"github.com/jrsteele09/go-authcore/users/directorytest"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	store *sqlstore.Store
	now   time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	store, err := sqlstore.Open(context.Background(), sqlstore.SQLite, filepath.Join(t.TempDir(), "authcore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &testFixture{
		store: store,
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *testFixture) newToken(id string) *token.Token {
	return &token.Token{
		TokenID:     id,
		UserID:      "user-1",
		Kind:        jwt.KindRefresh,
		SignedValue: "signed." + id,
		IssuedAt:    f.now,
		ExpiresAt:   f.now.Add(time.Hour),
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Migrate(context.Background()))
	require.NoError(t, f.store.HealthCheck(context.Background()))
}

func TestTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("insert and get", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Insert(ctx, f.newToken("t1")))

		got, err := f.store.Get(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, "user-1", got.UserID)
		require.Equal(t, jwt.KindRefresh, got.Kind)
		require.Equal(t, "signed.t1", got.SignedValue)
		require.True(t, got.IssuedAt.Equal(f.now))
		require.True(t, got.ExpiresAt.Equal(f.now.Add(time.Hour)))
		require.False(t, got.Revoked)
	})

	t.Run("duplicate id", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Insert(ctx, f.newToken("t1")))
		require.ErrorIs(t, f.store.Insert(ctx, f.newToken("t1")), autherrors.ErrAlreadyExists)
	})

	t.Run("missing", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.store.Get(ctx, "nope")
		require.ErrorIs(t, err, autherrors.ErrNotFound)
		_, err = f.store.RevokeIfActive(ctx, "nope")
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
				revoked, err := f.store.RevokeIfActive(ctx, "t1")
				if err == nil && revoked {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		require.EqualValues(t, 1, wins.Load())
	})
}

func TestManagerOnSQLite(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	material, err := keys.NewProvider(f.store).GetOrCreate(ctx)
	require.NoError(t, err)

	now := time.Now().Truncate(time.Second)
	clock := func() time.Time { return now }
	manager := token.New(f.store, material,
		token.WithNowFunc(clock),
		token.WithTokenExpiry(15*time.Minute, 30*time.Minute),
		token.WithRotationThreshold(time.Hour),
	)

	pair, err := manager.IssuePair(ctx, "user-1")
	require.NoError(t, err)

	userID, err := manager.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)

	// every refresh rotates because the whole lifetime is inside the threshold
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := manager.Refresh(ctx, pair.RefreshToken)
			if err == nil && result.Rotated {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins.Load())

	revoked, err := manager.Revoke(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.True(t, revoked)
	_, err = manager.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, autherrors.ErrRevoked)
}

func TestStates(t *testing.T) {
	ctx := context.Background()
	newState := func(f *testFixture, id string, ttl time.Duration) *federation.State {
		return &federation.State{
			StateID:      id,
			Provider:     providers.Twitter,
			PKCEVerifier: "verifier-" + id,
			Nonce:        "nonce-" + id,
			ReturnURL:    "https://app.example.com/",
			CreatedAt:    f.now,
			ExpiresAt:    f.now.Add(ttl),
		}
	}

	t.Run("consume once", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Put(ctx, newState(f, "s1", time.Minute)))

		got, err := f.store.Consume(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, providers.Twitter, got.Provider)
		require.Equal(t, "verifier-s1", got.PKCEVerifier)
		require.Equal(t, "nonce-s1", got.Nonce)
		require.Equal(t, "https://app.example.com/", got.ReturnURL)
		require.True(t, got.ExpiresAt.Equal(f.now.Add(time.Minute)))

		_, err = f.store.Consume(ctx, "s1")
		require.ErrorIs(t, err, autherrors.ErrNotFound)
	})

	t.Run("duplicate state", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Put(ctx, newState(f, "s1", time.Minute)))
		require.ErrorIs(t, f.store.Put(ctx, newState(f, "s1", time.Minute)), autherrors.ErrAlreadyExists)
	})

	t.Run("purge expired", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Put(ctx, newState(f, "old", time.Minute)))
		require.NoError(t, f.store.Put(ctx, newState(f, "new", time.Hour)))

		n, err := f.store.PurgeExpired(ctx, f.now.Add(time.Minute))
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		_, err = f.store.Consume(ctx, "new")
		require.NoError(t, err)
	})
}

func TestRootSecret(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	_, err := f.store.GetRootSecret(ctx)
	require.ErrorIs(t, err, autherrors.ErrNotFound)

	first, err := keys.NewProvider(f.store).GetOrCreate(ctx)
	require.NoError(t, err)

	// a second process sees the stored secret rather than generating its own
	second, err := keys.NewProvider(f.store).GetOrCreate(ctx)
	require.NoError(t, err)
	require.Equal(t, first.Access.KeyID, second.Access.KeyID)
	require.Equal(t, first.Refresh.KeyID, second.Refresh.KeyID)

	require.ErrorIs(t, f.store.PutRootSecret(ctx, "another-secret-another-secret-another"), autherrors.ErrAlreadyExists)
}

func TestProviderConfigs(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	github := providers.Config{Name: "GitHub", ClientID: "id-1", ClientSecret: "s", RedirectURL: "https://app.example.com/cb"}
	require.NoError(t, f.store.PutProviderConfig(ctx, github))
	require.NoError(t, f.store.PutProviderConfig(ctx, providers.Config{Name: "google", ClientID: "g", RedirectURL: "https://app.example.com/cb"}))

	github.ClientID = "id-2"
	require.NoError(t, f.store.PutProviderConfig(ctx, github))

	configs, err := f.store.ListProviderConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	require.Equal(t, "github", configs[0].Name)
	require.Equal(t, "id-2", configs[0].ClientID)

	registry, err := providers.NewRegistry(configs)
	require.NoError(t, err)
	require.Equal(t, []string{"github", "google"}, registry.Names())
}

func TestDirectory(t *testing.T) {
	directorytest.Run(t, func(t *testing.T) users.Directory {
		return setupTestFixture(t).store
	})
}
