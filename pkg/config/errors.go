package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrEmptyAddr is returned when the server listen address is empty.
	ErrEmptyAddr = errors.New("server address cannot be empty")

	// ErrInvalidServerTimeout is returned when a server timeout is <= 0.
	ErrInvalidServerTimeout = errors.New("invalid server timeout: must be > 0")

	// ErrInvalidIdleTimeout is returned when idle timeout is <= 0.
	ErrInvalidIdleTimeout = errors.New("invalid idle timeout: must be > 0")

	// ErrInvalidReapInterval is returned when reap interval is <= 0.
	ErrInvalidReapInterval = errors.New("invalid reap interval: must be > 0")

	// ErrInvalidEventBuffer is returned when event buffer is <= 0.
	ErrInvalidEventBuffer = errors.New("invalid event buffer: must be > 0")

	// ErrInvalidMaxAttempts is returned when max attempts is <= 0.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be > 0")

	// ErrInvalidRetryDelay is returned when retry delay is negative.
	ErrInvalidRetryDelay = errors.New("invalid retry delay: must be >= 0")

	// ErrInvalidMaxFileSize is returned when max file size is <= 0.
	ErrInvalidMaxFileSize = errors.New("invalid max file size: must be > 0")

	// ErrEmptyRoot is returned when no proposal root is configured.
	ErrEmptyRoot = errors.New("resolver root cannot be empty")

	// ErrNoFileTypes is returned when no file types are configured.
	ErrNoFileTypes = errors.New("no file types configured")

	// ErrEmptyDBPath is returned when history is enabled without a database path.
	ErrEmptyDBPath = errors.New("history database path cannot be empty")

	// ErrInvalidRetention is returned when history retention is <= 0.
	ErrInvalidRetention = errors.New("invalid history retention: must be > 0")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)
