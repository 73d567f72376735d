package resolver

import "errors"

// Common errors returned by the resolver package.
var (
	// ErrMalformedRequest is returned when a proposal name is empty or
	// would escape the root directory.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrUnknownFileType is returned when a file type is not configured.
	ErrUnknownFileType = errors.New("unknown file type")

	// ErrInvalidRoot is returned when the root directory is empty.
	ErrInvalidRoot = errors.New("invalid root directory")
)
