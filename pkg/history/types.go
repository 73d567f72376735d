// Package history keeps a persistent journal of verified changes.
//
// The journal is an audit trail only. It is never read back to recreate
// watches: every watch starts fresh after a restart.
//
// Example usage:
//
//	j, err := history.New(history.Config{
//	    DBPath:    "~/.config/filewatch/history.db",
//	    Retention: 100,
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer j.Close()
//
//	records, err := j.List("/srv/p1/context.py", 10)
package history

import (
	"time"

	"github.com/0xmhha/filewatch/pkg/detector"
	"github.com/0xmhha/filewatch/pkg/registry"
)

// Record is one journaled change.
type Record struct {
	// Path is the watched file.
	Path string `json:"path"`

	// Fingerprint is the verified new content fingerprint.
	Fingerprint detector.Fingerprint `json:"checksum"`

	// ModTime is the file modification time observed with the change.
	ModTime time.Time `json:"last_modified"`

	// RecordedAt is when the change was detected.
	RecordedAt time.Time `json:"recorded_at"`
}

// Journal stores change records per path.
//
// A Journal is also a registry.Listener so it can be attached directly to
// the registry; evictions are ignored.
type Journal interface {
	registry.Listener

	// Record appends rec to its path's journal, trimming the oldest
	// records beyond the retention limit.
	Record(rec Record) error

	// List returns up to limit records for path, newest first. A limit of
	// zero or less returns every retained record.
	List(path string, limit int) ([]Record, error)

	// Paths returns every path with at least one record, sorted.
	Paths() ([]string, error)

	// Close closes the database.
	Close() error
}

// Config contains journal configuration.
type Config struct {
	// DBPath is the BoltDB file path. A leading ~ is expanded.
	DBPath string

	// Timeout is how long to wait for the database file lock
	// (default: 1 second).
	Timeout time.Duration

	// Retention is the number of records kept per path (default: 100).
	Retention int
}
