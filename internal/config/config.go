// Package config provides configuration management for the item feed server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/vyrodovalexey/itemfeed/internal/source"
)

// Default configuration values.
const (
	DefaultServerPort      = 8080
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultSourceURL       = "https://jsonplaceholder.typicode.com/posts"
	DefaultSourceTimeout   = 30 * time.Second
	DefaultRefreshOnStart  = true
	DefaultDiscardStale    = false
)

// Environment variable names.
const (
	EnvServerPort      = "APP_SERVER_PORT"
	EnvLogLevel        = "APP_LOG_LEVEL"
	EnvShutdownTimeout = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled  = "APP_METRICS_ENABLED"
	EnvSourceURL       = "APP_SOURCE_URL"
	EnvSourceTimeout   = "APP_SOURCE_TIMEOUT"
	EnvRefreshOnStart  = "APP_REFRESH_ON_START"
	EnvDiscardStale    = "APP_DISCARD_STALE"
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool

	// Source settings.
	SourceURL     string
	SourceTimeout time.Duration

	// Store settings.
	RefreshOnStart bool
	DiscardStale   bool // Drop completions of superseded refreshes.
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidSourceURL       = errors.New("source URL must be an absolute http or https URL")
	ErrInvalidSourceTimeout   = errors.New("source timeout must be positive")
)

// Load reads configuration from environment variables with defaults.
// Environment variables have priority over default values.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:      DefaultServerPort,
		LogLevel:        DefaultLogLevel,
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsEnabled:  DefaultMetricsEnabled,
		SourceURL:       DefaultSourceURL,
		SourceTimeout:   DefaultSourceTimeout,
		RefreshOnStart:  DefaultRefreshOnStart,
		DiscardStale:    DefaultDiscardStale,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromEnv loads configuration values from environment variables.
func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	return c.loadSourceEnv()
}

// loadServerEnv loads server-related environment variables.
func (c *Config) loadServerEnv() error {
	if val := os.Getenv(EnvServerPort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvServerPort, err)
		}
		c.ServerPort = port
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if err := parseDurationEnv(EnvShutdownTimeout, &c.ShutdownTimeout); err != nil {
		return err
	}

	return parseBoolEnv(EnvMetricsEnabled, &c.MetricsEnabled)
}

// loadSourceEnv loads the item source and store environment variables.
func (c *Config) loadSourceEnv() error {
	if val := os.Getenv(EnvSourceURL); val != "" {
		c.SourceURL = val
	}

	if err := parseDurationEnv(EnvSourceTimeout, &c.SourceTimeout); err != nil {
		return err
	}

	if err := parseBoolEnv(EnvRefreshOnStart, &c.RefreshOnStart); err != nil {
		return err
	}

	return parseBoolEnv(EnvDiscardStale, &c.DiscardStale)
}

func parseDurationEnv(name string, dst *time.Duration) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = d
	return nil
}

func parseBoolEnv(name string, dst *bool) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}

	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = b
	return nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	return c.validateSource()
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

// validateSource validates the item source configuration.
func (c *Config) validateSource() error {
	if _, err := source.ParseEndpoint(c.SourceURL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSourceURL, err)
	}

	if c.SourceTimeout <= 0 {
		return ErrInvalidSourceTimeout
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}
