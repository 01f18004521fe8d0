package main

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blescope/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoggerTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.SetErr(new(bytes.Buffer))
	return cmd
}

func TestConfigureLogger(t *testing.T) {
	tests := []struct {
		name        string
		logLevel    string
		verbose     bool
		configured  string
		expected    logrus.Level
		expectError bool
	}{
		{name: "configured level", configured: "warn", expected: logrus.WarnLevel},
		{name: "verbose overrides config", verbose: true, configured: "warn", expected: logrus.DebugLevel},
		{name: "log-level overrides verbose", logLevel: "error", verbose: true, expected: logrus.ErrorLevel},
		{name: "log-level info", logLevel: "info", expected: logrus.InfoLevel},
		{name: "invalid log-level", logLevel: "loud", expectError: true},
		{name: "invalid configured level", configured: "nope", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newLoggerTestCmd()
			require.NoError(t, cmd.Flags().Set("log-level", tt.logLevel))
			if tt.verbose {
				require.NoError(t, cmd.Flags().Set("verbose", "true"))
			}
			cfg := config.DefaultConfig()
			if tt.configured != "" {
				cfg.LogLevel = tt.configured
			}

			logger, err := configureLogger(cmd, "verbose", cfg)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, logger.GetLevel())
		})
	}
}

func TestConfigureLoggerWritesToCommandErr(t *testing.T) {
	cmd := newLoggerTestCmd()
	buf := new(bytes.Buffer)
	cmd.SetErr(buf)
	require.NoError(t, cmd.Flags().Set("log-level", "info"))

	logger, err := configureLogger(cmd, "verbose", config.DefaultConfig())
	require.NoError(t, err)
	logger.Info("hello")

	assert.Contains(t, buf.String(), "msg=hello")
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
