// Package watcher provides the native filesystem watch behind each watched
// file.
//
// A Watch observes exactly one file by registering a non-recursive fsnotify
// watch on the file's parent directory and filtering events by name. That
// keeps atomic rewrites (write temp file, rename over target) visible, which a
// watch on the file inode itself would lose.
//
// Example usage:
//
//	f := watcher.NewFactory(watcher.Config{}, logger.Default())
//
//	w, err := f.Watch("/srv/proposals/p1/context.py", func(ctx context.Context, ev watcher.Event) {
//	    fmt.Printf("%s: %s\n", ev.Path, ev.Op)
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
package watcher

import (
	"context"
	"time"
)

// Op describes a file operation type.
type Op uint32

// File operation types.
const (
	OpCreate Op = 1 << iota // File created
	OpWrite                 // File modified
	OpRemove                // File deleted
	OpRename                // File renamed/moved
	OpChmod                 // File attributes changed
)

// String returns a human-readable operation name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	case OpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// Event is a raw, unverified signal that the watched file was touched.
type Event struct {
	// Path is the watched file.
	Path string

	// Op is the operation reported by the OS.
	Op Op

	// Timestamp is when the signal was received.
	Timestamp time.Time
}

// Callback receives raw events on the watch's own goroutine.
//
// ctx is cancelled as soon as Stop begins, so a callback that hands the event
// to another goroutine must select on ctx.Done() to avoid blocking Stop.
type Callback func(ctx context.Context, ev Event)

// Watch is one native watch on one file.
type Watch interface {
	// Path returns the watched file path.
	Path() string

	// Alive reports whether the watch is still delivering events.
	Alive() bool

	// Stop releases the OS watch and waits for the event goroutine to exit.
	// After Stop returns the callback is never invoked again.
	// Stop is idempotent.
	Stop() error
}

// Factory creates native watches.
type Factory interface {
	// Watch starts watching path and invokes cb for each raw event on it.
	Watch(path string, cb Callback) (Watch, error)
}

// Config contains watcher configuration.
type Config struct {
	// Debounce coalesces bursts of events for the file into one callback.
	// Zero disables coalescing.
	Debounce time.Duration

	// CircuitBreakerThreshold is the number of consecutive fsnotify errors
	// after which the watch gives up and reports itself not alive.
	// Default: 5.
	CircuitBreakerThreshold int
}
