// Package config handles loading and validating runtime configuration for the archery club API.
// Configuration values (like the database URL and API port) are read from environment variables
// rather than being hardcoded, so the same binary runs in development and production with only
// the environment changed.
package config

import (
	"errors"
	"fmt"
	"time"

	// env parses environment variables into a struct using `env:"..."` field tags.
	"github.com/caarlos0/env/v11"
	// godotenv reads a .env file and loads its key=value pairs into the process environment.
	// Handy in development; in production real env vars are set by the deployment platform.
	"github.com/joho/godotenv"

	"github.com/trentd187/archery-club/internal/scoring"
)

// Config holds all runtime configuration values for the application.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`
	// Env is "development", "staging" or "production".
	Env         string `env:"ENV" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL"`
	// JWTSecret is the HMAC key bearer tokens are signed with.
	JWTSecret string `env:"JWT_SECRET"`
	// RedisURL is optional; empty keeps the read cache in process memory.
	RedisURL string        `env:"REDIS_URL"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"60s"`
	// RankingPolicy is "competition" (1,1,3) or "dense" (1,1,2).
	RankingPolicy  string `env:"RANKING_POLICY" envDefault:"competition"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"file://migrations"`
}

// Load reads configuration from the environment (after an optional .env file) and validates it.
func Load() (*Config, error) {
	// A missing .env file is fine: real environment variables are used instead.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that have a closed set of options.
func (c *Config) Validate() error {
	if _, err := scoring.ParsePolicy(c.RankingPolicy); err != nil {
		return fmt.Errorf("RANKING_POLICY: %w", err)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL: unknown level %q", c.LogLevel)
	}
	if c.CacheTTL < 0 {
		return errors.New("CACHE_TTL must not be negative")
	}
	return nil
}

// RequireServer checks the settings the API server cannot start without.
func (c *Config) RequireServer() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

// Policy returns the validated ranking policy.
func (c *Config) Policy() scoring.Policy {
	p, err := scoring.ParsePolicy(c.RankingPolicy)
	if err != nil {
		return scoring.PolicyCompetition
	}
	return p
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool { return c.Env == "production" }
