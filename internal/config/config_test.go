package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chatline-app/chatline/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiration)
	assert.Equal(t, 15*time.Minute, cfg.SignInCodeTTL)
	assert.Equal(t, "/auth", cfg.SignInPath)
	assert.Equal(t, 3*time.Second, cfg.TypingIdleTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.TracingEnabled)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TYPING_IDLE_TIMEOUT", "5s")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("RATE_LIMIT_REQUESTS", "120")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 5*time.Second, cfg.TypingIdleTimeout)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, 120, cfg.RateLimitRequests)
}
