package history

import "errors"

// Common errors returned by the journal.
var (
	// ErrEmptyPath is returned when a record has no path.
	ErrEmptyPath = errors.New("record path cannot be empty")

	// ErrNoFingerprint is returned when a record has no fingerprint.
	ErrNoFingerprint = errors.New("record fingerprint cannot be empty")
)
