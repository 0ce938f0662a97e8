package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_DATABASE_URL", "postgres://localhost/store")
	t.Setenv("STORE_AUTH_SECRET", "s3cret")

	cfg, err := loadConfig([]string{})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, 30*time.Second, cfg.Auth.Leeway)
	assert.False(t, cfg.Checkout.ReserveStock)
	assert.Equal(t, 6*time.Hour, cfg.Checkout.CancelWindow)
	assert.Equal(t, 5, cfg.Checkout.TrackingAttempts)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 300, cfg.RateLimit.Read)
	assert.Equal(t, 60, cfg.RateLimit.Write)
	assert.Equal(t, []string{"*"}, cfg.CORS.Origins)
	assert.Equal(t, 24*time.Hour, cfg.CORS.MaxAge)
	assert.Equal(t, 30*time.Second, cfg.Graceful.StartupTimeout)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORE_DATABASE_URL", "postgres://localhost/store")
	t.Setenv("STORE_AUTH_SECRET", "s3cret")
	t.Setenv("STORE_CHECKOUT_RESERVE_STOCK", "true")
	t.Setenv("STORE_CHECKOUT_CANCEL_WINDOW", "30m")
	t.Setenv("STORE_RATE_LIMIT_WRITE", "0")

	cfg, err := loadConfig([]string{"-auth.issuer=storefront"})
	require.NoError(t, err)
	assert.True(t, cfg.Checkout.ReserveStock)
	assert.Equal(t, 30*time.Minute, cfg.Checkout.CancelWindow)
	assert.Equal(t, "storefront", cfg.Auth.Issuer)
	assert.Zero(t, cfg.RateLimit.Write)
}

func TestLoadConfigPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_AUTH_SECRET", "s3cret")

	cfg, err := loadConfig([]string{})
	require.NoError(t, err)
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := loadConfig([]string{})
	require.ErrorContains(t, err, "database URL is required")

	t.Setenv("STORE_DATABASE_URL", "postgres://localhost/store")
	_, err = loadConfig([]string{})
	require.ErrorContains(t, err, "auth secret is required")

	t.Setenv("STORE_AUTH_SECRET", "s3cret")
	t.Setenv("STORE_CHECKOUT_TRACKING_ATTEMPTS", "0")
	_, err = loadConfig([]string{})
	require.ErrorContains(t, err, "tracking attempts")

	t.Setenv("STORE_CHECKOUT_TRACKING_ATTEMPTS", "5")
	t.Setenv("STORE_RATE_LIMIT_READ", "-1")
	_, err = loadConfig([]string{})
	require.ErrorContains(t, err, "rate limit budgets")

	t.Setenv("STORE_RATE_LIMIT_READ", "300")
	t.Setenv("STORE_CORS_ALLOW_CREDENTIALS", "true")
	_, err = loadConfig([]string{})
	require.ErrorContains(t, err, "CORS credentials require explicit origins")
}
