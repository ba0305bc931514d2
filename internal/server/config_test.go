package server

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestNewConfig verifies the defaults used when nothing is configured.
func TestNewConfig(t *testing.T) {
	req := require.New(t)
	cfg := NewConfig()

	req.Equal(":8080", cfg.Port)
	req.Equal([]string{"http://localhost:8080", "http://localhost:3000"}, cfg.AllowedOrigins)
	req.EqualValues(4096, cfg.MaxMessageSize)
	req.Equal(RateLimitConfig{Burst: 5, RefillInterval: time.Second}, cfg.RateLimit)
	req.Equal(256, cfg.SendBufferSize)
	req.Zero(cfg.ClaimTTL, "pending claims must not expire unless configured")
	req.Equal(10*time.Second, cfg.ShutdownTimeout)
	req.Equal("INFO", cfg.LogLevel)
}

// TestNewConfigFromEnv verifies that every variable is read from the environment.
func TestNewConfigFromEnv(t *testing.T) {
	req := require.New(t)
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, http://localhost:3000,,https://chat.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("SEND_BUFFER_SIZE", "32")
	t.Setenv("CLAIM_TTL", "30s")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := NewConfigFromEnv()

	req.NoError(err)
	req.Equal(":9090", cfg.Port)
	req.Equal([]string{"https://chat.example.com", "http://localhost:3000"}, cfg.AllowedOrigins)
	req.EqualValues(1024, cfg.MaxMessageSize)
	req.Equal(RateLimitConfig{Burst: 10, RefillInterval: 2 * time.Second}, cfg.RateLimit)
	req.Equal(32, cfg.SendBufferSize)
	req.Equal(30*time.Second, cfg.ClaimTTL)
	req.Equal(3*time.Second, cfg.ShutdownTimeout)
	req.Equal("DEBUG", cfg.LogLevel)
}

// TestNewConfigFromEnvDefaults verifies the fallbacks when variables are unset.
func TestNewConfigFromEnvDefaults(t *testing.T) {
	req := require.New(t)
	for _, key := range []string{
		"SERVER_PORT", "ALLOWED_ORIGINS", "MAX_MESSAGE_SIZE", "RATE_LIMIT_BURST",
		"RATE_LIMIT_REFILL_INTERVAL", "SEND_BUFFER_SIZE", "CLAIM_TTL",
		"SHUTDOWN_TIMEOUT", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := NewConfigFromEnv()

	req.NoError(err)
	req.Equal(*NewConfig(), *cfg)
}

// TestNewConfigFromEnvInvalidDuration verifies that malformed values are reported.
func TestNewConfigFromEnvInvalidDuration(t *testing.T) {
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "soon")

	_, err := NewConfigFromEnv()

	require.Error(t, err)
}

// TestSanitizeConfig verifies that out-of-range values fall back to defaults.
func TestSanitizeConfig(t *testing.T) {
	req := require.New(t)

	cfg := sanitizeConfig(Config{
		Port:            "9000",
		MaxMessageSize:  -1,
		RateLimit:       RateLimitConfig{Burst: 0, RefillInterval: -time.Second},
		SendBufferSize:  0,
		ClaimTTL:        0,
		ShutdownTimeout: 0,
	})

	req.Equal(":9000", cfg.Port)
	req.EqualValues(defaultMaxMessageSize, cfg.MaxMessageSize)
	req.Equal(defaultRateBurst, cfg.RateLimit.Burst)
	req.Equal(defaultRefillInterval, cfg.RateLimit.RefillInterval)
	req.Equal(defaultSendBufferSize, cfg.SendBufferSize)
	req.Zero(cfg.ClaimTTL, "a zero claim TTL disables expiry and must be kept")
	req.Equal(defaultShutdownTimeout, cfg.ShutdownTimeout)
	req.Equal(defaultLogLevel, cfg.LogLevel)
	req.Equal(NewConfig().AllowedOrigins, cfg.AllowedOrigins)
}
