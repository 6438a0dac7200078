// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ListenAddr      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	DSN       string        // PostgreSQL DSN
	JWTKey    string        // HS256 signing key
	AccessTTL time.Duration // access token lifetime
	DataDir   string        // local slot directory

	AnthropicAPIKey string // empty = enrichment disabled
	AnthropicModel  string

	LoginWindow   time.Duration // failure counting window
	LoginMaxFails int           // failures before lockout
	LoginBlockFor time.Duration // lockout duration
}

// Load reads configuration from BOOKHAVEN_* variables. DSN and the JWT key
// have no sane defaults and are required.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:      getenv("BOOKHAVEN_LISTEN_ADDR", ":8080"),
		ShutdownTimeout: mustDuration("BOOKHAVEN_SHUTDOWN_TIMEOUT", 5*time.Second),

		LogLevel:  getenv("BOOKHAVEN_LOG_LEVEL", "info"),
		PrettyLog: mustBool("BOOKHAVEN_PRETTY_LOG", false),

		DSN:       os.Getenv("BOOKHAVEN_DSN"),
		JWTKey:    os.Getenv("BOOKHAVEN_JWT_KEY"),
		AccessTTL: mustDuration("BOOKHAVEN_ACCESS_TTL", 24*time.Hour),
		DataDir:   getenv("BOOKHAVEN_DATA_DIR", defaultDataDir()),

		AnthropicAPIKey: os.Getenv("BOOKHAVEN_ANTHROPIC_API_KEY"),
		AnthropicModel:  getenv("BOOKHAVEN_ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),

		LoginWindow:   mustDuration("BOOKHAVEN_LOGIN_WINDOW", 15*time.Minute),
		LoginMaxFails: getenvInt("BOOKHAVEN_LOGIN_MAX_FAILS", 5),
		LoginBlockFor: mustDuration("BOOKHAVEN_LOGIN_BLOCK_FOR", 15*time.Minute),
	}

	if cfg.DSN == "" {
		return nil, fmt.Errorf("BOOKHAVEN_DSN is not set")
	}
	if cfg.JWTKey == "" {
		return nil, fmt.Errorf("BOOKHAVEN_JWT_KEY is not set")
	}
	return cfg, nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/bookhaven"
	}
	return ".bookhaven"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
