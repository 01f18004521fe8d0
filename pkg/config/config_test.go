package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "panic", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.Equal(t, "auto", cfg.ValueFormat)
	assert.True(t, cfg.Notifications)
	assert.Equal(t, 32, cfg.HistorySize)
	assert.NoError(t, cfg.Validate(), "defaults MUST be valid")
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", expected: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", expected: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", expected: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", expected: logrus.ErrorLevel},
		{name: "falls back to panic on garbage", logLevel: "loud", expected: logrus.PanicLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "table format is valid", mutate: func(c *Config) { c.OutputFormat = "table" }},
		{name: "json format is valid", mutate: func(c *Config) { c.OutputFormat = "json" }},
		{name: "unknown output format", mutate: func(c *Config) { c.OutputFormat = "xml" }, wantErr: "output_format"},
		{name: "unknown value format", mutate: func(c *Config) { c.ValueFormat = "base64" }, wantErr: "value_format"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "chatty" }, wantErr: "log_level"},
		{name: "zero scan timeout", mutate: func(c *Config) { c.ScanTimeout = 0 }, wantErr: "scan_timeout"},
		{name: "negative connect timeout", mutate: func(c *Config) { c.ConnectTimeout = -time.Second }, wantErr: "connect_timeout"},
		{name: "negative history", mutate: func(c *Config) { c.HistorySize = -1 }, wantErr: "history_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	t.Run("reports every problem", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.OutputFormat = "xml"
		cfg.HistorySize = -3
		err := cfg.Validate()
		assert.ErrorContains(t, err, "output_format")
		assert.ErrorContains(t, err, "history_size")
	})
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file overlays defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "blescope.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nscan_timeout: 3s\nvalue_format: hex\nnotifications: false\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 3*time.Second, cfg.ScanTimeout)
		assert.Equal(t, "hex", cfg.ValueFormat)
		assert.False(t, cfg.Notifications)
		assert.Equal(t, 30*time.Second, cfg.ConnectTimeout, "missing keys MUST keep defaults")
		assert.Equal(t, "table", cfg.OutputFormat)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("output_format: xml\n"), 0o600))

		_, err := Load(path)
		assert.ErrorContains(t, err, "output_format")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("scan_timeout: [\n"), 0o600))

		_, err := Load(path)
		assert.ErrorContains(t, err, "failed to parse config")
	})
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}
