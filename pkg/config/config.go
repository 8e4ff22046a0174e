// Package config handles configuration loading from environment variables.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ListenOff disables the HTTP feed when used as SYSDASH_LISTEN
const ListenOff = "off"

// Config holds all configuration for the sysdash daemon
type Config struct {
	// Node identification
	Service string // Service name used in Redis keys (default: "sysdash")
	Name    string // Optional: custom node name (defaults to hostname)

	// Redis feed (optional, empty disables publishing)
	RedisURL string
	KeyTTL   time.Duration // Lifetime of the published node key

	// HTTP feed (empty disables the server)
	ListenAddr string

	// Logging
	LogLevel slog.Level
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Service:    "sysdash",
		KeyTTL:     5 * time.Second,
		ListenAddr: ":9470",
		LogLevel:   slog.LevelInfo,
	}
}

// Load creates a Config from environment variables
func Load() *Config {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("SYSDASH_SERVICE")); v != "" {
		cfg.Service = v
	}

	if v := strings.TrimSpace(os.Getenv("SYSDASH_NAME")); v != "" {
		cfg.Name = v
	}

	if v := os.Getenv("SYSDASH_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		// Common convention
		cfg.RedisURL = v
	}

	if v := os.Getenv("SYSDASH_KEY_TTL"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			cfg.KeyTTL = time.Duration(seconds) * time.Second
		}
	}

	if v, ok := os.LookupEnv("SYSDASH_LISTEN"); ok {
		v = strings.TrimSpace(v)
		if strings.EqualFold(v, ListenOff) {
			v = ""
		}
		cfg.ListenAddr = v
	}

	if v := os.Getenv("SYSDASH_LOG_LEVEL"); v != "" {
		if level, ok := parseLevel(v); ok {
			cfg.LogLevel = level
		}
	}

	return cfg
}

// parseLevel maps a level name onto slog levels
func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// NodeName returns the configured node name or the hostname
func (c *Config) NodeName() string {
	if c.Name != "" {
		return c.Name
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "unknown"
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Service == "" {
		return &ConfigError{Field: "Service", Message: "service name is required (set SYSDASH_SERVICE)"}
	}
	if strings.ContainsAny(c.Service, ": ") {
		return &ConfigError{Field: "Service", Message: "service name must not contain ':' or spaces"}
	}
	if c.RedisURL != "" && c.KeyTTL <= 0 {
		return &ConfigError{Field: "KeyTTL", Message: "key TTL must be positive (set SYSDASH_KEY_TTL)"}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}
