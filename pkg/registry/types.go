// Package registry multiplexes change detection for watched files across
// many clients.
//
// The registry owns one entry per watched path. Each entry holds exactly one
// native watch no matter how many clients observe the path, a baseline
// fingerprint, the set of interested clients and the time of their last
// interaction. All entry state is owned by a single goroutine; native watch
// callbacks and client calls reach it only through channels.
//
// A raw filesystem event is treated as a change only after the file has been
// re-fingerprinted and found to differ from the stored fingerprint. Verified
// changes and entry retirements are reported to Listeners in the order they
// happen.
//
// Example usage:
//
//	reg, err := registry.New(registry.Config{
//	    Listeners: []registry.Listener{dispatcher},
//	}, detector.New(detector.Config{}, log), watcher.NewFactory(watcher.Config{}, log), log)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reg.Close()
//
//	cmp, err := reg.Compare(ctx, "/srv/p1/context.py", knownFingerprint, "10.0.0.4")
package registry

import (
	"context"
	"time"

	"github.com/0xmhha/filewatch/pkg/detector"
)

// Comparison is the result of comparing a client's fingerprint with the
// registry's current one.
type Comparison int

const (
	// Unknown means the current fingerprint is not established.
	Unknown Comparison = iota

	// Unchanged means the client's fingerprint is current.
	Unchanged

	// Changed means the file content differs from the client's fingerprint.
	Changed
)

// String returns a human-readable comparison name.
func (c Comparison) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	default:
		return "unknown"
	}
}

// EvictReason explains why an entry was retired.
type EvictReason string

// Retirement reasons.
const (
	EvictIdle     EvictReason = "idle"
	EvictExplicit EvictReason = "unregistered"
	EvictFailed   EvictReason = "watch_failed"
	EvictShutdown EvictReason = "shutdown"
)

// Change is a verified content change.
type Change struct {
	// Path is the watched file.
	Path string

	// Fingerprint is the new content fingerprint.
	Fingerprint detector.Fingerprint

	// Previous is the fingerprint the change replaced.
	Previous detector.Fingerprint

	// ModTime is the file's modification time at verification.
	ModTime time.Time

	// DetectedAt is when the change was verified.
	DetectedAt time.Time
}

// Listener receives registry notifications.
//
// Methods are called on the registry's own goroutine and must not call back
// into the registry or block for long.
type Listener interface {
	// OnChange is called once per verified change, in detection order.
	OnChange(change Change)

	// OnEvict is called after an entry's native watch has stopped and the
	// entry has been removed.
	OnEvict(path string, reason EvictReason)
}

// EntryInfo is a read-only snapshot of one entry.
type EntryInfo struct {
	Path         string
	Fingerprint  detector.Fingerprint
	ModTime      time.Time
	Subscribers  []string
	LastActivity time.Time
	CreatedAt    time.Time
	Alive        bool
}

// Registry tracks watched files and their clients.
type Registry interface {
	// Register records clientID's interest in path, creating the entry, the
	// baseline fingerprint and the native watch on first use.
	//
	// Idempotent: repeated calls only refresh the client's activity.
	// Returns detector.ErrNotFound or detector.ErrReadFailed when the baseline
	// cannot be established.
	Register(ctx context.Context, path, clientID string) error

	// Compare registers clientID (as Register does) and reports whether the
	// current fingerprint differs from known.
	//
	// Returns Unknown together with the registration error when the path
	// cannot be registered.
	Compare(ctx context.Context, path string, known detector.Fingerprint, clientID string) (Comparison, error)

	// Status reports whether a live native watch exists for path.
	// Unregistered paths report false.
	Status(ctx context.Context, path string) bool

	// Touch refreshes activity for path without creating an entry.
	// Returns false when path is not watched.
	Touch(ctx context.Context, path, clientID string) bool

	// Unregister stops the native watch for path, waits for it, then removes
	// the entry. Returns false when path was not watched.
	Unregister(ctx context.Context, path string) (bool, error)

	// Reap retires every entry idle for longer than timeout and returns how
	// many were retired. Stop failures are joined into the returned error
	// and never prevent other entries from being retired.
	Reap(ctx context.Context, timeout time.Duration) (int, error)

	// Entries returns snapshots of all entries sorted by path.
	Entries(ctx context.Context) []EntryInfo

	// Close stops every native watch and shuts the registry down.
	Close() error
}

// Config contains registry configuration.
type Config struct {
	// Listeners receive verified changes and retirements.
	Listeners []Listener

	// EventBuffer is the capacity of the native event hand-off queue.
	// Default: 64.
	EventBuffer int

	// StopConcurrency bounds parallel native watch stops during reaping and
	// shutdown. Default: 8.
	StopConcurrency int

	// Now returns the current time. Default: time.Now.
	Now func() time.Time
}
