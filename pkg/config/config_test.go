package config

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

var envVars = []string{
	"SYSDASH_SERVICE",
	"SYSDASH_NAME",
	"SYSDASH_REDIS_URL",
	"REDIS_URL",
	"SYSDASH_KEY_TTL",
	"SYSDASH_LISTEN",
	"SYSDASH_LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		if val, ok := os.LookupEnv(key); ok {
			os.Unsetenv(key)
			t.Cleanup(func() { os.Setenv(key, val) })
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		clearEnv(t)

		cfg := Load()

		if cfg.Service != "sysdash" {
			t.Errorf("Expected default service sysdash, got %s", cfg.Service)
		}

		if cfg.ListenAddr != ":9470" {
			t.Errorf("Expected default listen address :9470, got %s", cfg.ListenAddr)
		}

		if cfg.RedisURL != "" {
			t.Errorf("Expected Redis feed disabled by default, got %s", cfg.RedisURL)
		}

		if cfg.KeyTTL != 5*time.Second {
			t.Errorf("Expected default key TTL 5s, got %v", cfg.KeyTTL)
		}

		if cfg.LogLevel != slog.LevelInfo {
			t.Errorf("Expected default log level info, got %v", cfg.LogLevel)
		}
	})

	t.Run("from environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SYSDASH_SERVICE", "office-dash")
		t.Setenv("SYSDASH_NAME", "desk-01")
		t.Setenv("SYSDASH_REDIS_URL", "redis://zenith:6379")
		t.Setenv("SYSDASH_KEY_TTL", "9")
		t.Setenv("SYSDASH_LISTEN", "127.0.0.1:8080")
		t.Setenv("SYSDASH_LOG_LEVEL", "debug")

		cfg := Load()

		if cfg.Service != "office-dash" {
			t.Errorf("Expected service office-dash, got %s", cfg.Service)
		}

		if cfg.Name != "desk-01" || cfg.NodeName() != "desk-01" {
			t.Errorf("Expected name desk-01, got %s", cfg.Name)
		}

		if cfg.RedisURL != "redis://zenith:6379" {
			t.Errorf("Expected RedisURL redis://zenith:6379, got %s", cfg.RedisURL)
		}

		if cfg.KeyTTL != 9*time.Second {
			t.Errorf("Expected key TTL 9s, got %v", cfg.KeyTTL)
		}

		if cfg.ListenAddr != "127.0.0.1:8080" {
			t.Errorf("Expected listen address 127.0.0.1:8080, got %s", cfg.ListenAddr)
		}

		if cfg.LogLevel != slog.LevelDebug {
			t.Errorf("Expected debug level, got %v", cfg.LogLevel)
		}
	})

	t.Run("redis url fallback", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("REDIS_URL", "redis://fallback:6379/2")

		cfg := Load()

		if cfg.RedisURL != "redis://fallback:6379/2" {
			t.Errorf("Expected fallback RedisURL, got %s", cfg.RedisURL)
		}
	})

	t.Run("listen off", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SYSDASH_LISTEN", "OFF")

		cfg := Load()

		if cfg.ListenAddr != "" {
			t.Errorf("Expected HTTP feed disabled, got %s", cfg.ListenAddr)
		}
	})

	t.Run("invalid values keep defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SYSDASH_KEY_TTL", "soon")
		t.Setenv("SYSDASH_LOG_LEVEL", "loud")

		cfg := Load()

		if cfg.KeyTTL != 5*time.Second {
			t.Errorf("Expected default key TTL, got %v", cfg.KeyTTL)
		}
		if cfg.LogLevel != slog.LevelInfo {
			t.Errorf("Expected default log level, got %v", cfg.LogLevel)
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
		ok       bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{" warning ", slog.LevelWarn, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"trace", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, ok := parseLevel(tt.input)
			if level != tt.expected || ok != tt.ok {
				t.Errorf("parseLevel(%q) = %v, %v; expected %v, %v", tt.input, level, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("missing service", func(t *testing.T) {
		cfg := &Config{}

		err := cfg.Validate()
		if err == nil {
			t.Fatal("Expected validation error for missing service")
		}

		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Field != "Service" {
			t.Errorf("Expected ConfigError on Service, got %v", err)
		}
	})

	t.Run("service with separator", func(t *testing.T) {
		cfg := &Config{Service: "a:b"}

		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for ':' in service")
		}
	})

	t.Run("redis without ttl", func(t *testing.T) {
		cfg := &Config{Service: "sysdash", RedisURL: "redis://localhost:6379"}

		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for zero key TTL")
		}
	})

	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultConfig()

		if err := cfg.Validate(); err != nil {
			t.Errorf("Expected no validation error, got %v", err)
		}
	})
}
