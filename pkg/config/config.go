package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel       string        `yaml:"log_level" json:"log_level" default:"panic"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" json:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"30s"`
	OutputFormat   string        `yaml:"output_format" json:"output_format" default:"table"`
	ValueFormat    string        `yaml:"value_format" json:"value_format" default:"auto"`
	Notifications  bool          `yaml:"notifications" json:"notifications" default:"true"`
	HistorySize    int           `yaml:"history_size" json:"history_size" default:"32"`
}

var (
	outputFormats = []string{"table", "json"}
	valueFormats  = []string{"auto", "hex", "utf8"}
)

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.ScanTimeout <= 0 {
		errs = append(errs, fmt.Errorf("scan_timeout must be positive, got %s", c.ScanTimeout))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout))
	}
	if !oneOf(c.OutputFormat, outputFormats) {
		errs = append(errs, fmt.Errorf("output_format must be one of %s, got %q", strings.Join(outputFormats, ", "), c.OutputFormat))
	}
	if !oneOf(c.ValueFormat, valueFormats) {
		errs = append(errs, fmt.Errorf("value_format must be one of %s, got %q", strings.Join(valueFormats, ", "), c.ValueFormat))
	}
	if c.HistorySize < 0 {
		errs = append(errs, fmt.Errorf("history_size must not be negative, got %d", c.HistorySize))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (logrus.Level, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.PanicLevel, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// NewLogger creates a configured logger instance. An unparsable level
// falls back to panic, which keeps the output quiet.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, _ := c.Level()
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
