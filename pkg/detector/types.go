// Package detector computes content fingerprints for watched files.
//
// A fingerprint is the SHA-256 of a file's full byte content. The detector
// retries transient read failures a bounded number of times so that a file
// caught in the middle of an atomic rewrite does not surface as missing or
// changed.
//
// Example usage:
//
//	d := detector.New(detector.Config{}, logger.Default())
//
//	snap, err := d.Detect(ctx, "/srv/proposals/p1/context.py")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(snap.Fingerprint, snap.ModTime)
package detector

import (
	"context"
	"time"
)

// Fingerprint is the hex-encoded SHA-256 of a file's content.
//
// The zero value means the fingerprint has not been established yet, which
// is distinct from any real fingerprint.
type Fingerprint string

// Established reports whether f holds a computed fingerprint.
func (f Fingerprint) Established() bool {
	return f != ""
}

// String implements fmt.Stringer.
func (f Fingerprint) String() string {
	return string(f)
}

// Short returns the first 12 characters, for log lines.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// Snapshot is the result of a single successful detection.
type Snapshot struct {
	// Path is the file that was read.
	Path string

	// Fingerprint of the content that was read.
	Fingerprint Fingerprint

	// ModTime is the file's modification time at read.
	ModTime time.Time

	// Size is the number of bytes hashed.
	Size int64

	// Content holds the raw bytes; nil unless requested via DetectContent.
	Content []byte
}

// Detector produces fingerprints for files.
type Detector interface {
	// Detect reads path and returns its fingerprint and modification time.
	//
	// Returns ErrNotFound if the file is still missing after all attempts,
	// ErrReadFailed if reads kept failing for another reason.
	Detect(ctx context.Context, path string) (Snapshot, error)

	// DetectContent behaves like Detect but also returns the raw content.
	DetectContent(ctx context.Context, path string) (Snapshot, error)
}

// Config contains detector configuration.
type Config struct {
	// MaxAttempts is the number of read attempts before giving up.
	// Default: 3.
	MaxAttempts int

	// RetryDelay is the fixed delay between attempts.
	// Default: 100ms.
	RetryDelay time.Duration

	// MaxFileSize is the largest file that will be fingerprinted.
	// Default: 64MiB.
	MaxFileSize int64
}
