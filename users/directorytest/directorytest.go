// Package directorytest checks a users.Directory implementation against the
// behaviour every store must share.
package directorytest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jrsteele09/go-authcore/federation/providers"
	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/users"
	"github.com/stretchr/testify/require"
)

func profile(provider, subject, email, name string) *providers.Profile {
	return &providers.Profile{
		Provider:    provider,
		Subject:     subject,
		Email:       email,
		DisplayName: name,
		Raw:         map[string]any{"id": subject, "name": name},
	}
}

// Run exercises newDirectory, which must return an empty directory each call.
func Run(t *testing.T, newDirectory func(t *testing.T) users.Directory) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("creates a user on first sign in", func(t *testing.T) {
		dir := newDirectory(t)
		user, err := dir.LocateOrCreate(ctx, profile(providers.GitHub, "42", "Octo@Example.com", "Octo"), now)
		require.NoError(t, err)
		require.NotEmpty(t, user.ID)
		require.Equal(t, "octo@example.com", user.Email)
		require.Equal(t, "Octo", user.Name)
		require.True(t, user.Verified)
		require.True(t, user.LastLogin.Equal(now))

		byEmail, err := dir.GetByEmail(ctx, "OCTO@example.com")
		require.NoError(t, err)
		require.Equal(t, user.ID, byEmail.ID)

		identities, err := dir.ListIdentities(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, identities, 1)
		require.Equal(t, providers.GitHub, identities[0].Provider)
		require.Equal(t, "42", identities[0].Subject)

		var data map[string]any
		require.NoError(t, json.Unmarshal(identities[0].Data, &data))
		require.Equal(t, "Octo", data["name"])
	})

	t.Run("same identity returns same user", func(t *testing.T) {
		dir := newDirectory(t)
		first, err := dir.LocateOrCreate(ctx, profile(providers.GitHub, "42", "octo@example.com", "Octo"), now)
		require.NoError(t, err)

		later := now.Add(time.Hour)
		// the provider side email changed, the identity still wins
		second, err := dir.LocateOrCreate(ctx, profile(providers.GitHub, "42", "new@example.com", "Octo Cat"), later)
		require.NoError(t, err)
		require.Equal(t, first.ID, second.ID)
		require.True(t, second.LastLogin.Equal(later))

		identities, err := dir.ListIdentities(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, identities, 1)
		require.True(t, identities[0].LastSignInAt.Equal(later))
	})

	t.Run("second provider with same email links to existing user", func(t *testing.T) {
		dir := newDirectory(t)
		first, err := dir.LocateOrCreate(ctx, profile(providers.GitHub, "42", "octo@example.com", "Octo"), now)
		require.NoError(t, err)

		second, err := dir.LocateOrCreate(ctx, profile(providers.Google, "g-1", "octo@example.com", "Octo G"), now)
		require.NoError(t, err)
		require.Equal(t, first.ID, second.ID)

		identities, err := dir.ListIdentities(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, identities, 2)
	})

	t.Run("placeholder email is not verified", func(t *testing.T) {
		dir := newDirectory(t)
		user, err := dir.LocateOrCreate(ctx, profile(providers.Twitter, "99", "99@twitter.local", "Tweeter"), now)
		require.NoError(t, err)
		require.False(t, user.Verified)
	})

	t.Run("blocking", func(t *testing.T) {
		dir := newDirectory(t)
		user, err := dir.LocateOrCreate(ctx, profile(providers.GitHub, "42", "octo@example.com", "Octo"), now)
		require.NoError(t, err)

		require.NoError(t, dir.SetBlocked(ctx, user.ID, true))
		got, err := dir.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, got.Blocked)

		require.ErrorIs(t, dir.SetBlocked(ctx, "missing", true), autherrors.ErrNotFound)
	})

	t.Run("not found", func(t *testing.T) {
		dir := newDirectory(t)
		_, err := dir.GetByID(ctx, "missing")
		require.ErrorIs(t, err, autherrors.ErrNotFound)
		_, err = dir.GetByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, autherrors.ErrNotFound)
	})
}
