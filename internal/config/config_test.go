package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLocal() Config {
	return Config{
		App:      AppConfig{Env: "local", Port: 8080},
		DB:       DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "storefront"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379},
		Auth:     AuthConfig{AccessSecret: "access", RefreshSecret: "refresh"},
		Agent:    AgentConfig{KeySalt: "salt"},
		Upstream: UpstreamConfig{StorefrontURL: "http://localhost:3000"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	require.Error(t, err)
	for _, want := range []string{"APP_ENV", "JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET", "AGENT_KEY_SALT", "STOREFRONT_URL"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_ProductionRequiresSSLModeAndLongSecrets(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_SSLMODE is required in production")
	assert.Contains(t, err.Error(), "JWT_ACCESS_SECRET must be at least 32 bytes")
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	require.NoError(t, c.Validate())

	assert.Equal(t, "disable", c.DB.SSLMode)
	assert.Equal(t, 15*time.Minute, c.Auth.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, c.Auth.RefreshTTL)
	assert.Equal(t, "/api/auth", c.Auth.CookiePath)

	assert.Equal(t, PolicyConfig{Window: time.Minute, Max: 5, OnStoreError: OnStoreErrorClosed}, c.RateLimit.Auth)
	assert.Equal(t, PolicyConfig{Window: time.Minute, Max: 10, OnStoreError: OnStoreErrorLocal}, c.RateLimit.Checkout)
	assert.Equal(t, PolicyConfig{Window: 10 * time.Minute, Max: 3, OnStoreError: OnStoreErrorClosed}, c.RateLimit.Recovery)
	assert.Equal(t, PolicyConfig{Window: time.Minute, Max: 60, OnStoreError: OnStoreErrorClosed}, c.RateLimit.Agent)
	assert.Equal(t, PolicyConfig{Window: time.Minute, Max: 120, OnStoreError: OnStoreErrorLocal}, c.RateLimit.Global)
	assert.Equal(t, SlowDownConfig{Window: time.Minute, After: 3, Step: 500 * time.Millisecond, MaxDelay: 5 * time.Second}, c.SlowDown)
	assert.Equal(t, "X-Agent-Key", c.Agent.KeyHeader)
}

func TestValidate_RejectsSharedSigningSecret(t *testing.T) {
	c := validLocal()
	c.Auth.RefreshSecret = c.Auth.AccessSecret
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestValidate_RejectsUnknownStoreErrorMode(t *testing.T) {
	c := validLocal()
	c.RateLimit.Auth.OnStoreError = "maybe"
	err := c.Validate()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "RATE_LIMIT_AUTH_ON_STORE_ERROR"))
}

func TestLoad_ParsesEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_NAME", "n")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("JWT_ACCESS_SECRET", "a")
	t.Setenv("JWT_REFRESH_SECRET", "b")
	t.Setenv("AGENT_KEY_SALT", "s")
	t.Setenv("STOREFRONT_URL", "http://storefront:3000")
	t.Setenv("RATE_LIMIT_CHECKOUT_MAX", "25")
	t.Setenv("RATE_LIMIT_AUTH_ON_STORE_ERROR", "open")
	t.Setenv("JWT_ACCESS_TTL", "5m")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, c.App.Port)
	assert.Equal(t, 6379, c.Redis.Port)
	assert.Equal(t, 25, c.RateLimit.Checkout.Max)
	assert.Equal(t, time.Minute, c.RateLimit.Checkout.Window)
	assert.Equal(t, OnStoreErrorOpen, c.RateLimit.Auth.OnStoreError)
	assert.Equal(t, 5*time.Minute, c.Auth.AccessTTL)
	assert.Equal(t, "X-Agent-Key", c.Agent.KeyHeader)
	assert.Equal(t, "redis:6379", c.RedisAddr())
}
