package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/pairing-relay/internal/util"
)

type Config struct {
	Port                  int      `env:"PORT" envDefault:"8080"`
	LogLevel              string   `env:"LOG_LEVEL" envDefault:"info"`
	RedisURL              string   `env:"REDIS_URL"`
	AllowedOrigins        []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	TrustedProxies        []string `env:"TRUSTED_PROXIES" envSeparator:","`
	CodeTTLSeconds        int      `env:"CODE_TTL_SECONDS" envDefault:"600"`
	JoinMaxAttempts       int      `env:"JOIN_MAX_ATTEMPTS" envDefault:"5"`
	JoinWindowSeconds     int      `env:"JOIN_WINDOW_SECONDS" envDefault:"60"`
	LockoutSeconds        int      `env:"LOCKOUT_SECONDS" envDefault:"900"`
	RateLimitGraceSeconds int      `env:"RATELIMIT_GRACE_SECONDS" envDefault:"600"`
	SessionSweepSeconds   int      `env:"SESSION_SWEEP_SECONDS" envDefault:"60"`
	RateLimitSweepSeconds int      `env:"RATELIMIT_SWEEP_SECONDS" envDefault:"300"`
	MaxMessageBytes       int64    `env:"MAX_MESSAGE_BYTES" envDefault:"65536"`
	MaxMessagesPerSecond  int      `env:"MAX_MESSAGES_PER_SECOND" envDefault:"20"`
	ConnectRatePerMin     int      `env:"CONNECT_RATE_PER_MIN" envDefault:"30"`
}

func (c *Config) CodeTTL() time.Duration {
	return time.Duration(c.CodeTTLSeconds) * time.Second
}

func (c *Config) JoinWindow() time.Duration {
	return time.Duration(c.JoinWindowSeconds) * time.Second
}

func (c *Config) Lockout() time.Duration {
	return time.Duration(c.LockoutSeconds) * time.Second
}

func (c *Config) RateLimitGrace() time.Duration {
	return time.Duration(c.RateLimitGraceSeconds) * time.Second
}

func (c *Config) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepSeconds) * time.Second
}

func (c *Config) RateLimitSweepInterval() time.Duration {
	return time.Duration(c.RateLimitSweepSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	positive := map[string]int{
		"CODE_TTL_SECONDS":        c.CodeTTLSeconds,
		"JOIN_MAX_ATTEMPTS":       c.JoinMaxAttempts,
		"JOIN_WINDOW_SECONDS":     c.JoinWindowSeconds,
		"LOCKOUT_SECONDS":         c.LockoutSeconds,
		"RATELIMIT_GRACE_SECONDS": c.RateLimitGraceSeconds,
		"SESSION_SWEEP_SECONDS":   c.SessionSweepSeconds,
		"RATELIMIT_SWEEP_SECONDS": c.RateLimitSweepSeconds,
		"MAX_MESSAGES_PER_SECOND": c.MaxMessagesPerSecond,
		"CONNECT_RATE_PER_MIN":    c.ConnectRatePerMin,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be greater than zero", name)
		}
	}

	if c.CodeTTLSeconds > MaxCodeTTLSeconds {
		return fmt.Errorf("CODE_TTL_SECONDS must not exceed %d", MaxCodeTTLSeconds)
	}
	if c.MaxMessageBytes < MinMessageBytes {
		return fmt.Errorf("MAX_MESSAGE_BYTES must be at least %d", MinMessageBytes)
	}

	for _, o := range c.AllowedOrigins {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("ALLOWED_ORIGINS contains an empty entry")
		}
	}

	if _, err := util.ParsePrefixes(c.TrustedProxies); err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	if isProduction {
		if len(c.AllowedOrigins) == 0 {
			log.Warn().Msg("ALLOWED_ORIGINS is empty in production: only same-host origins may open pairing sockets")
		}
		if c.RedisURL != "" && strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
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
