package errors_test

import (
	"fmt"
	"testing"

	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestIsUnauthorized(t *testing.T) {
	t.Run("session failures collapse to unauthorized", func(t *testing.T) {
		for _, err := range []error{
			autherrors.ErrMalformedToken,
			autherrors.ErrInvalidSignature,
			autherrors.ErrKeyMismatch,
			autherrors.ErrExpired,
			autherrors.ErrNotYetValid,
			autherrors.ErrRevoked,
			autherrors.ErrUnknownToken,
			fmt.Errorf("Manager.Authenticate: %w", autherrors.ErrRevoked),
		} {
			require.True(t, autherrors.IsUnauthorized(err), err.Error())
			require.Equal(t, autherrors.PublicUnauthorized, autherrors.PublicMessage(err))
		}
	})

	t.Run("infrastructure failures are not unauthorized", func(t *testing.T) {
		require.False(t, autherrors.IsUnauthorized(autherrors.ErrStoreUnavailable))
		require.False(t, autherrors.IsUnauthorized(nil))
		require.Equal(t, "internal error", autherrors.PublicMessage(autherrors.ErrStoreUnavailable))
	})

	t.Run("key mismatch is an invalid signature", func(t *testing.T) {
		require.ErrorIs(t, autherrors.ErrKeyMismatch, autherrors.ErrInvalidSignature)
	})
}

func TestWrapf(t *testing.T) {
	require.Nil(t, autherrors.Wrapf(nil, "nothing"))

	err := autherrors.Wrapf(autherrors.ErrNotFound, "token %s", "abc")
	require.EqualError(t, err, "token abc: not found")
	require.True(t, autherrors.Is(err, autherrors.ErrNotFound))
}
