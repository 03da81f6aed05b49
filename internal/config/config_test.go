package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "dashboard.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Backend.BaseURL)
	assert.Equal(t, "ws://localhost:8000/ws", cfg.Backend.WebSocketURL)
	assert.Equal(t, 3*time.Second, cfg.ReconnectDelay())
	assert.Equal(t, time.Second, cfg.InitialDelay())
	assert.Equal(t, 2*time.Second, cfg.RetryDelay())
	assert.Equal(t, 4, cfg.Bootstrap.MaxAttempts)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "downloads"), cfg.Downloads.Directory)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "base_url: http://localhost:8000")
}

func TestLoadConfigReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  base_url: https://tenders.example.com
  websocket_url: wss://tenders.example.com/ws
bootstrap:
  max_attempts: 6
downloads:
  backend: s3
  s3_bucket: archives
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://tenders.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 6, cfg.Bootstrap.MaxAttempts)
	assert.Equal(t, 3, cfg.Backend.ReconnectDelaySeconds, "unset keys keep defaults")
	assert.Equal(t, "archives", cfg.Downloads.S3Bucket)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("DASHBOARD_BASE_URL", "http://backend:9000")
	t.Setenv("DASHBOARD_WS_URL", "ws://backend:9000/ws")
	t.Setenv("DASHBOARD_RECONNECT_DELAY", "5s")
	t.Setenv("DASHBOARD_LOG_LEVEL", "debug")
	t.Setenv("DASHBOARD_METRICS_ADDR", ":9102")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "http://backend:9000", cfg.Backend.BaseURL)
	assert.Equal(t, "ws://backend:9000/ws", cfg.Backend.WebSocketURL)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":9102", cfg.Metrics.Address)
}

func TestReconnectDelayOverride(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Duration
		wantErr string
	}{
		{"7", 7 * time.Second, ""},
		{"2m", 2 * time.Minute, ""},
		{"1500ms", 0, "not a whole number of seconds"},
		{"500ms", 0, "not a whole number of seconds"},
		{"soon", 0, "invalid duration"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("DASHBOARD_RECONNECT_DELAY", tt.value)

			cfg, err := LoadConfig("")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "DASHBOARD_RECONNECT_DELAY")
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.ReconnectDelay())
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DASHBOARD_S3_REGION=eu-west-1\n"), 0644))
	t.Setenv("DASHBOARD_S3_REGION", "")
	os.Unsetenv("DASHBOARD_S3_REGION")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "eu-west-1", os.Getenv("DASHBOARD_S3_REGION"))

	assert.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *AppConfig)
	}{
		{"bad base url", func(c *AppConfig) { c.Backend.BaseURL = "localhost:8000" }},
		{"http websocket url", func(c *AppConfig) { c.Backend.WebSocketURL = "http://localhost:8000/ws" }},
		{"zero reconnect delay", func(c *AppConfig) { c.Backend.ReconnectDelaySeconds = 0 }},
		{"zero attempts", func(c *AppConfig) { c.Bootstrap.MaxAttempts = 0 }},
		{"s3 without bucket", func(c *AppConfig) { c.Downloads.Backend = "s3" }},
		{"unknown backend", func(c *AppConfig) { c.Downloads.Backend = "ftp" }},
		{"unknown log format", func(c *AppConfig) { c.Logging.Format = "xml" }},
	}

	assert.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [not, a, map]"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
