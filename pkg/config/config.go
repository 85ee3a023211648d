// Package config reads server configuration from the environment, with an
// optional YAML policy profile for operator-defined deny rules.
package config

import (
	"os"
	"strconv"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	// StoreBackend selects persistence: "postgres", "sqlite" or "memory".
	// Empty means postgres when DATABASE_URL is set, sqlite otherwise.
	StoreBackend string
	DatabaseURL  string
	SQLitePath   string

	// RedisAddr enables Redis-backed sessions and rate limiting. Empty
	// falls back to in-process equivalents.
	RedisAddr     string
	RedisPassword string

	// ServiceTokenKey verifies signed service tokens; empty disables them.
	ServiceTokenKey    string
	ServiceTokenIssuer string

	RateLimitRPM   int
	RateLimitBurst int

	// ProfilePath points at a YAML policy profile; empty means no overlay.
	ProfilePath string

	// OTLPEndpoint enables telemetry export when set.
	OTLPEndpoint string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		Port:               envOr("PORT", "8080"),
		LogLevel:           envOr("LOG_LEVEL", "INFO"),
		StoreBackend:       os.Getenv("STORE_BACKEND"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         envOr("SQLITE_PATH", "campuskeep.db"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		ServiceTokenKey:    os.Getenv("SERVICE_TOKEN_KEY"),
		ServiceTokenIssuer: envOr("SERVICE_TOKEN_ISSUER", "campuskeep"),
		RateLimitRPM:       envInt("RATE_LIMIT_RPM", 120),
		RateLimitBurst:     envInt("RATE_LIMIT_BURST", 20),
		ProfilePath:        os.Getenv("POLICY_PROFILE"),
		OTLPEndpoint:       os.Getenv("OTLP_ENDPOINT"),
	}
	if cfg.StoreBackend == "" {
		if cfg.DatabaseURL != "" {
			cfg.StoreBackend = "postgres"
		} else {
			cfg.StoreBackend = "sqlite"
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
