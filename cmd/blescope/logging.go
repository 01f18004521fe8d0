package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blescope/pkg/config"
)

// loadConfig reads --config over the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// configureLogger creates a logger with the appropriate log level based on flags.
// --log-level takes precedence over --verbose, which takes precedence over the
// configured level. Returns an error if the log-level is invalid.
func configureLogger(cmd *cobra.Command, verboseFlagName string, cfg *config.Config) (*logrus.Logger, error) {
	logLevel, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr != "" {
		switch logLevelStr {
		case "debug":
			logLevel = logrus.DebugLevel
		case "info":
			logLevel = logrus.InfoLevel
		case "warn":
			logLevel = logrus.WarnLevel
		case "error":
			logLevel = logrus.ErrorLevel
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
		}
	} else if verboseFlagName != "" {
		if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
			logLevel = logrus.DebugLevel
		}
	}

	logger := logrus.New()
	logger.SetLevel(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	logger.SetOutput(cmd.ErrOrStderr())

	return logger, nil
}
