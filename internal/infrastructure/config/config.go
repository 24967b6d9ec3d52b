package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Preview   PreviewConfig   `toml:"preview"`
	Sandbox   SandboxConfig   `toml:"sandbox"`
	Console   ConsoleConfig   `toml:"console"`
	Logging   LogConfig       `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string   `envconfig:"PORT" default:"8000" toml:"port"`
	Host            string   `envconfig:"HOST" default:"0.0.0.0" toml:"host"`
	ShutdownTimeout Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" toml:"shutdown_timeout"`
	AllowOrigins    []string `envconfig:"CORS_ORIGINS" default:"*" toml:"allow_origins"`
}

// StorageConfig selects where the session is persisted.
type StorageConfig struct {
	Driver string `envconfig:"STORAGE_DRIVER" default:"sqlite" toml:"driver"`
	Path   string `envconfig:"STORAGE_PATH" default:"codelive.db" toml:"path"`
	Key    string `envconfig:"STORAGE_KEY" default:"codelive_code" toml:"key"`

	// Consecutive write failures before saves fail fast, and for how long
	BreakerFailures uint32   `envconfig:"STORAGE_BREAKER_FAILURES" default:"3" toml:"breaker_failures"`
	BreakerTimeout  Duration `envconfig:"STORAGE_BREAKER_TIMEOUT" default:"30s" toml:"breaker_timeout"`
}

// PreviewConfig holds rebuild scheduling configuration.
type PreviewConfig struct {
	AutoRun bool     `envconfig:"PREVIEW_AUTO_RUN" default:"true" toml:"auto_run"`
	Delay   Duration `envconfig:"PREVIEW_DELAY" default:"500ms" toml:"delay"`
}

// SandboxConfig bounds script execution in the preview.
type SandboxConfig struct {
	Timeout           Duration `envconfig:"SANDBOX_TIMEOUT" default:"5s" toml:"timeout"`
	MaxCallStackSize  int      `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024" toml:"max_call_stack"`
	MaxConsoleEntries int      `envconfig:"SANDBOX_MAX_CONSOLE" default:"500" toml:"max_console_entries"`
	EnableDOM         bool     `envconfig:"SANDBOX_ENABLE_DOM" default:"true" toml:"enable_dom"`
}

// ConsoleConfig holds console panel configuration.
type ConsoleConfig struct {
	MaxLines int `envconfig:"CONSOLE_MAX_LINES" default:"1000" toml:"max_lines"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" toml:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" toml:"enabled"`
}

// Duration is a time.Duration read from "500ms" style strings in both the
// environment and TOML files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile loads the environment and then overlays the TOML file at path.
// Keys absent from the file keep their environment or default value.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := cfg.Merge(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge overlays TOML data onto c.
func (c *Config) Merge(data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("failed to parse config file at %d:%d: %w", row, col, err)
		}
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if p, err := strconv.Atoi(c.Server.Port); err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid port %q", c.Server.Port)
	}
	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("invalid storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		return errors.New("storage path is required for sqlite")
	}
	if c.Storage.BreakerFailures == 0 || c.Storage.BreakerTimeout <= 0 {
		return errors.New("storage breaker failures and timeout must be positive")
	}
	if c.Preview.Delay <= 0 {
		return fmt.Errorf("preview delay must be positive, got %s", c.Preview.Delay)
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("sandbox timeout must be positive, got %s", c.Sandbox.Timeout)
	}
	if c.Console.MaxLines <= 0 {
		return fmt.Errorf("console max lines must be positive, got %d", c.Console.MaxLines)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("rate limit rps and burst must be positive")
	}
	return nil
}

// Address returns host:port for the HTTP listener.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: Duration(10 * time.Second),
			AllowOrigins:    []string{"*"},
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "codelive.db",
			Key:    "codelive_code",

			BreakerFailures: 3,
			BreakerTimeout:  Duration(30 * time.Second),
		},
		Preview: PreviewConfig{
			AutoRun: true,
			Delay:   Duration(500 * time.Millisecond),
		},
		Sandbox: SandboxConfig{
			Timeout:           Duration(5 * time.Second),
			MaxCallStackSize:  1024,
			MaxConsoleEntries: 500,
			EnableDOM:         true,
		},
		Console: ConsoleConfig{
			MaxLines: 1000,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
