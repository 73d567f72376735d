package registry

import "errors"

// Common errors returned by the registry.
var (
	// ErrClosed is returned when using a closed registry.
	ErrClosed = errors.New("registry is closed")

	// ErrInvalidPath is returned for empty or relative paths.
	ErrInvalidPath = errors.New("path must be absolute")
)
