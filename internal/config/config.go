package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port                    int    `env:"PORT" envDefault:"8080"`
	DatabaseURL             string `env:"DATABASE_URL,required"`
	RedisURL                string `env:"REDIS_URL,required"`
	LogLevel                string `env:"LOG_LEVEL" envDefault:"info"`
	QueueTTLSeconds         int    `env:"QUEUE_TTL_SECONDS" envDefault:"180"`
	MatchCeilingSeconds     int    `env:"MATCH_CEILING_SECONDS" envDefault:"180"`
	PollIntervalMillis      int    `env:"POLL_INTERVAL_MS" envDefault:"1000"`
	FreshnessWindowSeconds  int    `env:"FRESHNESS_WINDOW_SECONDS" envDefault:"120"`
	HandshakeTimeoutSeconds int    `env:"HANDSHAKE_TIMEOUT_SECONDS" envDefault:"30"`
	OfferDelayMillis        int    `env:"OFFER_DELAY_MS" envDefault:"500"`
}

func (c *Config) QueueTTL() time.Duration {
	return time.Duration(c.QueueTTLSeconds) * time.Second
}

func (c *Config) MatchCeiling() time.Duration {
	return time.Duration(c.MatchCeilingSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c *Config) FreshnessWindow() time.Duration {
	return time.Duration(c.FreshnessWindowSeconds) * time.Second
}

func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSeconds) * time.Second
}

func (c *Config) OfferDelay() time.Duration {
	return time.Duration(c.OfferDelayMillis) * time.Millisecond
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if c.QueueTTLSeconds <= 0 {
		return fmt.Errorf("QUEUE_TTL_SECONDS must be positive")
	}
	if c.PollIntervalMillis < 100 {
		return fmt.Errorf("POLL_INTERVAL_MS must be at least 100")
	}
	if c.FreshnessWindowSeconds <= 0 {
		return fmt.Errorf("FRESHNESS_WINDOW_SECONDS must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
