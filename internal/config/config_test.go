package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("QueueTTL converts seconds to duration", func(t *testing.T) {
		cfg := &Config{QueueTTLSeconds: 180}
		assert.Equal(t, 180*time.Second, cfg.QueueTTL())
	})

	t.Run("MatchCeiling converts seconds to duration", func(t *testing.T) {
		cfg := &Config{MatchCeilingSeconds: 120}
		assert.Equal(t, 120*time.Second, cfg.MatchCeiling())
	})

	t.Run("PollInterval converts millis to duration", func(t *testing.T) {
		cfg := &Config{PollIntervalMillis: 1500}
		assert.Equal(t, 1500*time.Millisecond, cfg.PollInterval())
	})

	t.Run("OfferDelay converts millis to duration", func(t *testing.T) {
		cfg := &Config{OfferDelayMillis: 500}
		assert.Equal(t, 500*time.Millisecond, cfg.OfferDelay())
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			QueueTTLSeconds:        180,
			PollIntervalMillis:     1000,
			FreshnessWindowSeconds: 120,
		}
	}

	t.Run("accepts sane values", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects non-positive queue TTL", func(t *testing.T) {
		cfg := valid()
		cfg.QueueTTLSeconds = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects poll interval under 100ms", func(t *testing.T) {
		cfg := valid()
		cfg.PollIntervalMillis = 50
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects non-positive freshness window", func(t *testing.T) {
		cfg := valid()
		cfg.FreshnessWindowSeconds = -1
		assert.Error(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	keys := []string{
		"PORT", "DATABASE_URL", "REDIS_URL", "LOG_LEVEL",
		"QUEUE_TTL_SECONDS", "MATCH_CEILING_SECONDS", "POLL_INTERVAL_MS",
		"FRESHNESS_WINDOW_SECONDS", "HANDSHAKE_TIMEOUT_SECONDS", "OFFER_DELAY_MS",
	}
	originalEnv := map[string]string{}
	for _, k := range keys {
		originalEnv[k] = os.Getenv(k)
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	reset := func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
	}

	t.Run("loads config with defaults", func(t *testing.T) {
		reset()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
		assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 180, cfg.QueueTTLSeconds)
		assert.Equal(t, 180, cfg.MatchCeilingSeconds)
		assert.Equal(t, 1000, cfg.PollIntervalMillis)
		assert.Equal(t, 120, cfg.FreshnessWindowSeconds)
		assert.Equal(t, 30, cfg.HandshakeTimeoutSeconds)
		assert.Equal(t, 500, cfg.OfferDelayMillis)
	})

	t.Run("loads custom values", func(t *testing.T) {
		reset()
		os.Setenv("PORT", "3000")
		os.Setenv("MATCH_CEILING_SECONDS", "60")
		os.Setenv("POLL_INTERVAL_MS", "250")
		os.Setenv("LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Port)
		assert.Equal(t, 60, cfg.MatchCeilingSeconds)
		assert.Equal(t, 250, cfg.PollIntervalMillis)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("fails without DATABASE_URL", func(t *testing.T) {
		reset()
		os.Unsetenv("DATABASE_URL")

		_, err := Load()
		assert.Error(t, err)
	})
}
