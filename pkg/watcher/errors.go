package watcher

import "errors"

// Common errors returned by the watcher.
var (
	// ErrInvalidPath is returned when a watch path is empty or relative.
	ErrInvalidPath = errors.New("invalid watch path")

	// ErrNilCallback is returned when Watch is called without a callback.
	ErrNilCallback = errors.New("watch callback is required")

	// ErrCircuitBreakerOpen is recorded when a watch gives up after
	// repeated fsnotify errors.
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")
)
