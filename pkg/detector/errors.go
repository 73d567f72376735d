package detector

import "errors"

// Common errors returned by the detector.
var (
	// ErrNotFound is returned when the file does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrReadFailed is returned when reads keep failing after all attempts.
	ErrReadFailed = errors.New("file read failed")

	// ErrNotRegular is returned when the path is a directory or device.
	ErrNotRegular = errors.New("not a regular file")

	// ErrFileTooLarge is returned when the file exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds maximum size")
)
