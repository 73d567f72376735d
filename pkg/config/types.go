// Package config provides configuration management for filewatch.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Environment variables (highest priority)
// 2. Configuration file
// 3. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Serving %s on %s\n", cfg.Resolver.Root, cfg.Server.Addr)
package config

import (
	"time"
)

// Config represents the complete application configuration.
//
// Invariants:
// - Server.Addr must not be empty
// - Registry.IdleTimeout and Registry.ReapInterval must be > 0
// - Detector.MaxAttempts must be > 0
// - Resolver.Root must not be empty and FileTypes must not be empty
// - History.Retention must be > 0 when History.Enabled.
type Config struct {
	// HTTP and websocket server settings
	Server ServerConfig `yaml:"server"`

	// Watch registry settings
	Registry RegistryConfig `yaml:"registry"`

	// Change detection settings
	Detector DetectorConfig `yaml:"detector"`

	// Proposal path mapping
	Resolver ResolverConfig `yaml:"resolver"`

	// Change journal settings
	History HistoryConfig `yaml:"history"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Listen address
	Addr string `yaml:"addr"`

	// Origins allowed for CORS and websocket upgrades ("*" allows any)
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Per-write deadline for HTTP responses and websocket frames
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Time allowed to read request headers
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// Grace period for in-flight requests on shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RegistryConfig contains watch registry settings.
type RegistryConfig struct {
	// How long a watch may go without client activity
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// How often the idle reaper sweeps
	ReapInterval time.Duration `yaml:"reap_interval"`

	// Capacity of the native event channel
	EventBuffer int `yaml:"event_buffer"`
}

// DetectorConfig contains change detection settings.
type DetectorConfig struct {
	// Read attempts per detection
	MaxAttempts int `yaml:"max_attempts"`

	// Delay between read attempts
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Largest file that will be fingerprinted, in bytes
	MaxFileSize int64 `yaml:"max_file_size"`
}

// ResolverConfig contains proposal path mapping settings.
type ResolverConfig struct {
	// Directory holding one subdirectory per proposal
	Root string `yaml:"root"`

	// File type name -> file name
	FileTypes map[string]string `yaml:"file_types"`
}

// HistoryConfig contains change journal settings.
type HistoryConfig struct {
	// Record verified changes
	Enabled bool `yaml:"enabled"`

	// Path to BoltDB database file
	DBPath string `yaml:"db_path"`

	// Records kept per path
	Retention int `yaml:"retention"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output"`

	// Log format (text, json)
	Format string `yaml:"format"`
}

// Validate checks if the configuration satisfies all invariants.
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return ErrEmptyAddr
	}
	if c.Server.WriteTimeout <= 0 || c.Server.ReadHeaderTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return ErrInvalidServerTimeout
	}

	// Validate registry config
	if c.Registry.IdleTimeout <= 0 {
		return ErrInvalidIdleTimeout
	}
	if c.Registry.ReapInterval <= 0 {
		return ErrInvalidReapInterval
	}
	if c.Registry.EventBuffer <= 0 {
		return ErrInvalidEventBuffer
	}

	// Validate detector config
	if c.Detector.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if c.Detector.RetryDelay < 0 {
		return ErrInvalidRetryDelay
	}
	if c.Detector.MaxFileSize <= 0 {
		return ErrInvalidMaxFileSize
	}

	// Validate resolver config
	if c.Resolver.Root == "" {
		return ErrEmptyRoot
	}
	if len(c.Resolver.FileTypes) == 0 {
		return ErrNoFileTypes
	}

	if c.History.Enabled {
		if c.History.DBPath == "" {
			return ErrEmptyDBPath
		}
		if c.History.Retention <= 0 {
			return ErrInvalidRetention
		}
	}

	// Validate logging config
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}

// Default returns a configuration with sensible default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8000",
			AllowedOrigins:    []string{"*"},
			WriteTimeout:      10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Registry: RegistryConfig{
			IdleTimeout:  10 * time.Second,
			ReapInterval: 10 * time.Second,
			EventBuffer:  64,
		},
		Detector: DetectorConfig{
			MaxAttempts: 3,
			RetryDelay:  100 * time.Millisecond,
			MaxFileSize: 64 * 1024 * 1024,
		},
		Resolver: ResolverConfig{
			Root:      defaultRoot(),
			FileTypes: defaultFileTypes(),
		},
		History: HistoryConfig{
			Enabled:   true,
			DBPath:    defaultDBPath(),
			Retention: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}
}
