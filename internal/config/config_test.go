package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidatesWithSecret(t *testing.T) {
	config := DefaultConfig()
	config.Auth.Secret = "test-secret"

	if err := config.Validate(); err != nil {
		t.Errorf("default config with secret should validate: %v", err)
	}
}

func TestDefaultConfigRequiresSecret(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err == nil {
		t.Error("config without auth secret should fail validation")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil database", func(c *Config) { c.Database = nil }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero database timeout", func(c *Config) { c.Database.Timeout = 0 }},
		{"nil http", func(c *Config) { c.HTTP = nil }},
		{"port zero", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"nil websocket", func(c *Config) { c.WebSocket = nil }},
		{"zero ping interval", func(c *Config) { c.WebSocket.PingInterval = 0 }},
		{"zero buffer size", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"nil auth", func(c *Config) { c.Auth = nil }},
		{"zero token ttl", func(c *Config) { c.Auth.TokenTTL = 0 }},
		{"nil ai", func(c *Config) { c.AI = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Auth.Secret = "test-secret"
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestEmptyAIKeyIsValid(t *testing.T) {
	config := DefaultConfig()
	config.Auth.Secret = "test-secret"
	config.AI.APIKey = ""

	// Assist endpoints are optional; an empty key must not fail startup.
	if err := config.Validate(); err != nil {
		t.Errorf("empty AI key should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CODEPAIR_HTTP_PORT", "9090")
	t.Setenv("CODEPAIR_HTTP_HOST", "127.0.0.1")
	t.Setenv("CODEPAIR_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("CODEPAIR_DATABASE_TIMEOUT", "45s")
	t.Setenv("CODEPAIR_AUTH_SECRET", "env-secret")
	t.Setenv("CODEPAIR_AUTH_TOKEN_TTL", "2h")
	t.Setenv("CODEPAIR_WEBSOCKET_BUFFER_SIZE", "250")

	config := LoadFromEnv()

	if config.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090", config.HTTP.Port)
	}
	if config.HTTP.Host != "127.0.0.1" {
		t.Errorf("HTTP.Host = %q, want 127.0.0.1", config.HTTP.Host)
	}
	if config.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want /tmp/test.db", config.Database.Path)
	}
	if config.Database.Timeout != 45*time.Second {
		t.Errorf("Database.Timeout = %v, want 45s", config.Database.Timeout)
	}
	if config.Auth.Secret != "env-secret" {
		t.Errorf("Auth.Secret = %q, want env-secret", config.Auth.Secret)
	}
	if config.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want 2h", config.Auth.TokenTTL)
	}
	if config.WebSocket.BufferSize != 250 {
		t.Errorf("WebSocket.BufferSize = %d, want 250", config.WebSocket.BufferSize)
	}
}

func TestLoadFromEnvIgnoresUnparseableValues(t *testing.T) {
	t.Setenv("CODEPAIR_HTTP_PORT", "not-a-port")
	t.Setenv("CODEPAIR_DATABASE_TIMEOUT", "yesterday")

	config := LoadFromEnv()

	if config.HTTP.Port != 8080 {
		t.Errorf("HTTP.Port = %d, want default 8080", config.HTTP.Port)
	}
	if config.Database.Timeout != 30*time.Second {
		t.Errorf("Database.Timeout = %v, want default 30s", config.Database.Timeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `{
		"database": {"path": "/tmp/file.db", "timeout": "20s"},
		"http": {"port": 3000, "host": "localhost"},
		"websocket": {"ping_interval": "15s", "buffer_size": 50},
		"auth": {"secret": "file-secret", "token_ttl": "1h"},
		"ai": {"model": "claude-3-5-haiku-20241022"}
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}

	if config.Database.Path != "/tmp/file.db" {
		t.Errorf("Database.Path = %q, want /tmp/file.db", config.Database.Path)
	}
	if config.Database.Timeout != 20*time.Second {
		t.Errorf("Database.Timeout = %v, want 20s", config.Database.Timeout)
	}
	if config.HTTP.Port != 3000 {
		t.Errorf("HTTP.Port = %d, want 3000", config.HTTP.Port)
	}
	if config.WebSocket.PingInterval != 15*time.Second {
		t.Errorf("WebSocket.PingInterval = %v, want 15s", config.WebSocket.PingInterval)
	}
	if config.WebSocket.BufferSize != 50 {
		t.Errorf("WebSocket.BufferSize = %d, want 50", config.WebSocket.BufferSize)
	}
	if config.Auth.Secret != "file-secret" {
		t.Errorf("Auth.Secret = %q, want file-secret", config.Auth.Secret)
	}
	if config.AI.Model != "claude-3-5-haiku-20241022" {
		t.Errorf("AI.Model = %q", config.AI.Model)
	}
	// Fields absent from the file keep their defaults.
	if config.HTTP.ReadTimeout != 30*time.Second {
		t.Errorf("HTTP.ReadTimeout = %v, want default 30s", config.HTTP.ReadTimeout)
	}
}

func TestLoadFromFileOverridesEnv(t *testing.T) {
	t.Setenv("CODEPAIR_HTTP_PORT", "9090")
	t.Setenv("CODEPAIR_AUTH_SECRET", "env-secret")

	content := `{"http": {"port": 3000}, "auth": {"secret": "file-secret"}}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if config.HTTP.Port != 3000 {
		t.Errorf("HTTP.Port = %d, want file value 3000", config.HTTP.Port)
	}
	if config.Auth.Secret != "file-secret" {
		t.Errorf("Auth.Secret = %q, want file value", config.Auth.Secret)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.json"); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for malformed file")
	}
}

func TestLoadConfigWithPrecedenceFallsBack(t *testing.T) {
	t.Setenv("CODEPAIR_AUTH_SECRET", "env-secret")

	// Missing file falls back to the environment silently.
	config := LoadConfigWithPrecedence("/nonexistent/config.json")
	if config.Auth.Secret != "env-secret" {
		t.Errorf("Auth.Secret = %q, want env-secret", config.Auth.Secret)
	}

	config = LoadConfigWithPrecedence("")
	if config.Auth.Secret != "env-secret" {
		t.Errorf("Auth.Secret = %q, want env-secret", config.Auth.Secret)
	}
}
