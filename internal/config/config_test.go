package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-authcore/internal/config"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := config.FromEnv()
		require.NoError(t, err)
		require.Equal(t, "DEV", c.GetEnv())
		require.Equal(t, 15*time.Minute, c.GetAccessTokenTTL())
		require.Equal(t, 7*24*time.Hour, c.GetRefreshTokenTTL())
		require.Equal(t, time.Hour, c.GetRotationThreshold())
		require.Equal(t, 30*time.Second, c.GetClockSkew())
		require.Equal(t, 10*time.Minute, c.GetStateTTL())
		require.Equal(t, config.DriverSQLite, c.GetDatabaseDriver())
		require.Equal(t, config.SessionStoreDatabase, c.GetSessionStore())
		require.True(t, c.GetVerifyIDTokens())
		require.Equal(t, "authcore:", c.GetRedisKeyPrefix())
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("ACCESS_TOKEN_TTL", "5m")
		t.Setenv("REFRESH_ROTATION_THRESHOLD", "2h")
		t.Setenv("FEDERATION_ALLOWED_RETURN_URLS", "https://app.example.com/,https://admin.example.com/")
		t.Setenv("SESSION_STORE", "redis")
		t.Setenv("REDIS_ADDR", "localhost:6379")
		t.Setenv("REDIS_KEY_PREFIX", "staging:")

		c, err := config.FromEnv()
		require.NoError(t, err)
		require.Equal(t, 5*time.Minute, c.GetAccessTokenTTL())
		require.Equal(t, 2*time.Hour, c.GetRotationThreshold())
		require.Equal(t, []string{"https://app.example.com/", "https://admin.example.com/"}, c.GetAllowedReturnURLs())
		require.Equal(t, "localhost:6379", c.GetRedisAddr())
		require.Equal(t, "staging:", c.GetRedisKeyPrefix())
	})

	t.Run("redis session store needs an address", func(t *testing.T) {
		t.Setenv("SESSION_STORE", "redis")
		_, err := config.FromEnv()
		require.Error(t, err)
	})

	t.Run("unknown driver rejected", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "mongo")
		_, err := config.FromEnv()
		require.Error(t, err)
	})

	t.Run("refresh ttl must exceed access ttl", func(t *testing.T) {
		t.Setenv("ACCESS_TOKEN_TTL", "2h")
		t.Setenv("REFRESH_TOKEN_TTL", "1h")
		_, err := config.FromEnv()
		require.Error(t, err)
	})

	t.Run("unparseable duration", func(t *testing.T) {
		t.Setenv("CLOCK_SKEW", "soon")
		_, err := config.FromEnv()
		require.Error(t, err)
	})
}
