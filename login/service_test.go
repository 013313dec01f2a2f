package login_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-authcore/federation"
	"github.com/jrsteele09/go-authcore/federation/providers"
	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/login"
	"github.com/jrsteele09/go-authcore/token"
	"github.com/jrsteele09/go-authcore/token/keys"
	tokenfakerepo "github.com/jrsteele09/go-authcore/token/repofake"
	fakeuserrepo "github.com/jrsteele09/go-authcore/users/repofake"
	"github.com/stretchr/testify/require"
)

const testRootSecret = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKL"

type fakeFederation struct {
	completion *federation.Completion
	err        error
	calls      int
}

func (f *fakeFederation) Begin(_ context.Context, provider string, _ []string, _ string) (string, error) {
	return "https://provider.example.com/authorize?provider=" + provider, nil
}

func (f *fakeFederation) Complete(_ context.Context, _, _, _ string) (*federation.Completion, error) {
	f.calls++
	return f.completion, f.err
}

type testFixture struct {
	federation *fakeFederation
	users      *fakeuserrepo.FakeUserRepo
	tokens     *tokenfakerepo.FakeTokenRepo
	manager    *token.Manager
	service    *login.Service
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	material, err := keys.DeriveMaterial(testRootSecret)
	require.NoError(t, err)

	now := time.Now().Truncate(time.Second)
	f := &testFixture{
		federation: &fakeFederation{
			completion: &federation.Completion{
				Profile: &providers.Profile{
					Provider:    providers.GitHub,
					Subject:     "42",
					Email:       "octo@example.com",
					DisplayName: "Octo",
				},
				ReturnURL: "https://app.example.com/home",
			},
		},
		users:  fakeuserrepo.NewFakeUserRepo(),
		tokens: tokenfakerepo.NewFakeTokensRepo(),
	}
	f.manager = token.New(f.tokens, material, token.WithNowFunc(func() time.Time { return now }))
	f.service = login.NewService(f.federation, f.users, f.manager, login.WithNowFunc(func() time.Time { return now }))
	return f
}

func TestCompleteFederatedLogin(t *testing.T) {
	t.Run("signs in a new user", func(t *testing.T) {
		f := setupTestFixture(t)
		result, err := f.service.CompleteFederatedLogin(context.Background(), providers.GitHub, "code", "state")
		require.NoError(t, err)
		require.Equal(t, "octo@example.com", result.User.Email)
		require.Equal(t, "https://app.example.com/home", result.ReturnURL)
		require.Equal(t, result.User.ID, result.Tokens.UserID)
		require.Equal(t, 2, f.tokens.Len())

		userID, err := f.manager.Authenticate(context.Background(), result.Tokens.AccessToken)
		require.NoError(t, err)
		require.Equal(t, result.User.ID, userID)
	})

	t.Run("returning user keeps the same id", func(t *testing.T) {
		f := setupTestFixture(t)
		first, err := f.service.CompleteFederatedLogin(context.Background(), providers.GitHub, "code", "state")
		require.NoError(t, err)
		second, err := f.service.CompleteFederatedLogin(context.Background(), providers.GitHub, "code", "state-2")
		require.NoError(t, err)
		require.Equal(t, first.User.ID, second.User.ID)
		require.NotEqual(t, first.Tokens.AccessToken, second.Tokens.AccessToken)
	})

	t.Run("federation failure issues nothing", func(t *testing.T) {
		f := setupTestFixture(t)
		f.federation.err = autherrors.ErrCSRFStateMismatchOrExpired
		_, err := f.service.CompleteFederatedLogin(context.Background(), providers.GitHub, "code", "state")
		require.ErrorIs(t, err, autherrors.ErrCSRFStateMismatchOrExpired)
		require.Zero(t, f.tokens.Len())
	})

	t.Run("blocked user", func(t *testing.T) {
		f := setupTestFixture(t)
		first, err := f.service.CompleteFederatedLogin(context.Background(), providers.GitHub, "code", "state")
		require.NoError(t, err)
		require.NoError(t, f.users.SetBlocked(context.Background(), first.User.ID, true))

		_, err = f.service.CompleteFederatedLogin(context.Background(), providers.GitHub, "code", "state-2")
		require.ErrorIs(t, err, autherrors.ErrUserBlocked)
		require.Equal(t, 2, f.tokens.Len())
	})

	t.Run("directory outage", func(t *testing.T) {
		f := setupTestFixture(t)
		f.users.Err = autherrors.ErrStoreUnavailable
		_, err := f.service.CompleteFederatedLogin(context.Background(), providers.GitHub, "code", "state")
		require.ErrorIs(t, err, autherrors.ErrStoreUnavailable)
	})
}

func TestBeginFederatedLogin(t *testing.T) {
	f := setupTestFixture(t)
	authURL, err := f.service.BeginFederatedLogin(context.Background(), providers.GitHub, nil, "")
	require.NoError(t, err)
	require.Contains(t, authURL, "provider=github")
}

func TestLogout(t *testing.T) {
	t.Run("revokes both tokens", func(t *testing.T) {
		f := setupTestFixture(t)
		result, err := f.service.CompleteFederatedLogin(context.Background(), providers.GitHub, "code", "state")
		require.NoError(t, err)

		require.NoError(t, f.service.Logout(context.Background(), result.Tokens.AccessToken, result.Tokens.RefreshToken))

		_, err = f.manager.Authenticate(context.Background(), result.Tokens.AccessToken)
		require.ErrorIs(t, err, autherrors.ErrRevoked)
		_, err = f.manager.Refresh(context.Background(), result.Tokens.RefreshToken)
		require.ErrorIs(t, err, autherrors.ErrRevoked)
	})

	t.Run("second logout is not an error", func(t *testing.T) {
		f := setupTestFixture(t)
		result, err := f.service.CompleteFederatedLogin(context.Background(), providers.GitHub, "code", "state")
		require.NoError(t, err)
		require.NoError(t, f.service.Logout(context.Background(), result.Tokens.AccessToken, result.Tokens.RefreshToken))
		require.NoError(t, f.service.Logout(context.Background(), result.Tokens.AccessToken, result.Tokens.RefreshToken))
	})

	t.Run("garbage token still revokes the other", func(t *testing.T) {
		f := setupTestFixture(t)
		result, err := f.service.CompleteFederatedLogin(context.Background(), providers.GitHub, "code", "state")
		require.NoError(t, err)

		err = f.service.Logout(context.Background(), "not-a-token", result.Tokens.RefreshToken)
		require.ErrorIs(t, err, autherrors.ErrMalformedToken)

		_, err = f.manager.Refresh(context.Background(), result.Tokens.RefreshToken)
		require.ErrorIs(t, err, autherrors.ErrRevoked)
	})

	t.Run("nothing to revoke", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.service.Logout(context.Background(), "", ""))
	})
}
