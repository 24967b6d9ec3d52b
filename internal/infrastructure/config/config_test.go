package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Std())
	assert.Equal(t, []string{"*"}, cfg.Server.AllowOrigins)

	// Storage config
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "codelive_code", cfg.Storage.Key)
	assert.Equal(t, uint32(3), cfg.Storage.BreakerFailures)
	assert.Equal(t, 30*time.Second, cfg.Storage.BreakerTimeout.Std())

	// Preview and sandbox config
	assert.True(t, cfg.Preview.AutoRun)
	assert.Equal(t, 500*time.Millisecond, cfg.Preview.Delay.Std())
	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout.Std())
	assert.Equal(t, 1024, cfg.Sandbox.MaxCallStackSize)
	assert.True(t, cfg.Sandbox.EnableDOM)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	assert.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefault(t *testing.T) {
	// Should match Default when no env vars are set
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":               "9000",
		"HOST":               "127.0.0.1",
		"CORS_ORIGINS":       "http://a.test,http://b.test",
		"STORAGE_DRIVER":     "memory",
		"STORAGE_KEY":        "slot",
		"PREVIEW_AUTO_RUN":   "false",
		"PREVIEW_DELAY":      "250ms",
		"SANDBOX_TIMEOUT":    "2s",
		"CONSOLE_MAX_LINES":  "50",
		"LOG_LEVEL":          "debug",
		"LOG_DEV":            "true",
		"RATE_LIMIT_RPS":     "500",
		"RATE_LIMIT_BURST":   "1000",
		"RATE_LIMIT_ENABLED": "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowOrigins)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "slot", cfg.Storage.Key)
	assert.False(t, cfg.Preview.AutoRun)
	assert.Equal(t, 250*time.Millisecond, cfg.Preview.Delay.Std())
	assert.Equal(t, 2*time.Second, cfg.Sandbox.Timeout.Std())
	assert.Equal(t, 50, cfg.Console.MaxLines)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("PREVIEW_DELAY", "soon")

	_, err := Load()
	assert.Error(t, err)
	assert.Equal(t, Default(), LoadOrDefault())
}

func TestServerConfig(t *testing.T) {
	tests := []struct {
		name     string
		port     string
		host     string
		wantAddr string
	}{
		{"default values", "", "", "0.0.0.0:8000"},
		{"custom port", "9000", "", "0.0.0.0:9000"},
		{"custom host", "", "localhost", "localhost:8000"},
		{"custom port and host", "3000", "127.0.0.1", "127.0.0.1:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.port != "" {
				t.Setenv("PORT", tt.port)
			}
			if tt.host != "" {
				t.Setenv("HOST", tt.host)
			}

			cfg := LoadOrDefault()
			assert.Equal(t, tt.wantAddr, cfg.Address())
		})
	}
}

func TestLoadFileOverlaysEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), "codelive.toml")
	data := []byte(`
[server]
port = "7000"

[preview]
auto_run = false
delay = "1s"

[storage]
driver = "memory"
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port, "file beats environment")
	assert.Equal(t, "warn", cfg.Logging.Level, "absent keys keep the environment value")
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "absent keys keep the default")
	assert.False(t, cfg.Preview.AutoRun)
	assert.Equal(t, time.Second, cfg.Preview.Delay.Std())
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.toml"))
	assert.ErrorContains(t, err, "failed to read config file")

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[server\nport = 1"), 0o600))
	_, err = LoadFile(bad)
	assert.ErrorContains(t, err, "failed to parse config file")

	unknown := filepath.Join(dir, "unknown.toml")
	require.NoError(t, os.WriteFile(unknown, []byte("[kernel]\naddr = \"x\"\n"), 0o600))
	_, err = LoadFile(unknown)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = "http" }, "invalid port"},
		{"port out of range", func(c *Config) { c.Server.Port = "70000" }, "invalid port"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }, "invalid storage driver"},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }, "storage path"},
		{"memory without path", func(c *Config) { c.Storage.Driver = "memory"; c.Storage.Path = "" }, ""},
		{"zero breaker failures", func(c *Config) { c.Storage.BreakerFailures = 0 }, "storage breaker"},
		{"zero delay", func(c *Config) { c.Preview.Delay = 0 }, "preview delay"},
		{"zero timeout", func(c *Config) { c.Sandbox.Timeout = 0 }, "sandbox timeout"},
		{"zero console", func(c *Config) { c.Console.MaxLines = 0 }, "console max lines"},
		{"zero rps", func(c *Config) { c.RateLimit.RequestsPerSecond = 0 }, "rate limit"},
		{"zero rps disabled", func(c *Config) { c.RateLimit.RequestsPerSecond = 0; c.RateLimit.Enabled = false }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
