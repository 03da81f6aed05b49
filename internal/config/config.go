// Package config provides YAML-based configuration for the dashboard.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DASHBOARD_"

// AppConfig represents the root configuration structure
type AppConfig struct {
	// Backend endpoints
	Backend BackendConfig `yaml:"backend"`

	// Startup source list retry policy
	Bootstrap BootstrapConfig `yaml:"bootstrap"`

	// Where downloaded archives go
	Downloads DownloadConfig `yaml:"downloads"`

	// Operational logging
	Logging LoggingConfig `yaml:"logging"`

	// Optional Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics"`
}

// BackendConfig contains the REST and push channel addresses
type BackendConfig struct {
	BaseURL               string `yaml:"base_url"`
	WebSocketURL          string `yaml:"websocket_url"`
	ReconnectDelaySeconds int    `yaml:"reconnect_delay_seconds"`
	HandshakeTimeout      int    `yaml:"handshake_timeout_seconds"`
	StartTimeoutMinutes   int    `yaml:"start_timeout_minutes"`
}

// BootstrapConfig controls the initial source list fetch
type BootstrapConfig struct {
	InitialDelaySeconds int `yaml:"initial_delay_seconds"`
	RetryDelaySeconds   int `yaml:"retry_delay_seconds"`
	MaxAttempts         int `yaml:"max_attempts"`
}

// DownloadConfig selects the archive sink
type DownloadConfig struct {
	Backend     string `yaml:"backend"` // local or s3
	Directory   string `yaml:"directory"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	S3Prefix    string `yaml:"s3_prefix"`
}

// LoggingConfig contains slog settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file"`   // used by the TUI so logs do not corrupt the screen
}

// MetricsConfig contains the /metrics listener
type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables the endpoint
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Backend: BackendConfig{
			BaseURL:               "http://localhost:8000",
			WebSocketURL:          "ws://localhost:8000/ws",
			ReconnectDelaySeconds: 3,
			HandshakeTimeout:      10,
			StartTimeoutMinutes:   120,
		},
		Bootstrap: BootstrapConfig{
			InitialDelaySeconds: 1,
			RetryDelaySeconds:   2,
			MaxAttempts:         4,
		},
		Downloads: DownloadConfig{
			Backend:   "local",
			Directory: "./downloads",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "./dashboard.log",
		},
	}
}

// LoadEnvFile loads a .env file into the process environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file, writing the defaults when it does not exist.
// An empty path skips the file and uses defaults plus environment overrides.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			if err := config.Save(configPath); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := config.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}

	if configPath != "" {
		config.resolvePaths(filepath.Dir(configPath))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Tender automation dashboard configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() error {
	if v := env("BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := env("WS_URL"); v != "" {
		c.Backend.WebSocketURL = v
	}
	if v := env("RECONNECT_DELAY"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("%sRECONNECT_DELAY: %w", EnvPrefix, err)
		}
		c.Backend.ReconnectDelaySeconds = d
	}
	if v := env("DOWNLOAD_BACKEND"); v != "" {
		c.Downloads.Backend = v
	}
	if v := env("DOWNLOAD_DIR"); v != "" {
		c.Downloads.Directory = v
	}
	if v := env("S3_BUCKET"); v != "" {
		c.Downloads.S3Bucket = v
	}
	if v := env("S3_REGION"); v != "" {
		c.Downloads.S3Region = v
	}
	if v := env("S3_ENDPOINT"); v != "" {
		c.Downloads.S3Endpoint = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := env("METRICS_ADDR"); v != "" {
		c.Metrics.Address = v
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

// parseSeconds accepts either a bare integer or a Go duration such as "5s".
// Durations must be a whole number of seconds.
func parseSeconds(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: want seconds such as 3 or 3s", v)
	}
	if d%time.Second != 0 {
		return 0, fmt.Errorf("duration %q is not a whole number of seconds", v)
	}
	return int(d / time.Second), nil
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if c.Downloads.Directory != "" && !filepath.IsAbs(c.Downloads.Directory) {
		c.Downloads.Directory = filepath.Join(configDir, c.Downloads.Directory)
	}
	if c.Logging.File != "" && !filepath.IsAbs(c.Logging.File) {
		c.Logging.File = filepath.Join(configDir, c.Logging.File)
	}
}

// Validate checks the configuration for values the dashboard cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error

	if u, err := url.Parse(c.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.base_url must be an http(s) URL, got %q", c.Backend.BaseURL))
	}
	if u, err := url.Parse(c.Backend.WebSocketURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.websocket_url must be a ws(s) URL, got %q", c.Backend.WebSocketURL))
	}
	if c.Backend.ReconnectDelaySeconds <= 0 {
		errs = append(errs, errors.New("backend.reconnect_delay_seconds must be positive"))
	}
	if c.Bootstrap.MaxAttempts <= 0 {
		errs = append(errs, errors.New("bootstrap.max_attempts must be positive"))
	}
	if c.Bootstrap.InitialDelaySeconds < 0 || c.Bootstrap.RetryDelaySeconds <= 0 {
		errs = append(errs, errors.New("bootstrap delays must not be negative and retry delay must be positive"))
	}
	switch c.Downloads.Backend {
	case "local":
	case "s3":
		if c.Downloads.S3Bucket == "" {
			errs = append(errs, errors.New("downloads.s3_bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("downloads.backend must be local or s3, got %q", c.Downloads.Backend))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// ReconnectDelay returns the push channel reconnect delay.
func (c *AppConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.Backend.ReconnectDelaySeconds) * time.Second
}

// HandshakeTimeout returns the websocket handshake timeout.
func (c *AppConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.Backend.HandshakeTimeout) * time.Second
}

// StartTimeout returns how long the start request may take.
func (c *AppConfig) StartTimeout() time.Duration {
	return time.Duration(c.Backend.StartTimeoutMinutes) * time.Minute
}

// InitialDelay returns the delay before the first source list fetch.
func (c *AppConfig) InitialDelay() time.Duration {
	return time.Duration(c.Bootstrap.InitialDelaySeconds) * time.Second
}

// RetryDelay returns the delay between source list fetches.
func (c *AppConfig) RetryDelay() time.Duration {
	return time.Duration(c.Bootstrap.RetryDelaySeconds) * time.Second
}
