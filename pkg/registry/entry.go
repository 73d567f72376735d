package registry

import (
	"sort"
	"time"

	"github.com/0xmhha/filewatch/pkg/detector"
	"github.com/0xmhha/filewatch/pkg/watcher"
)

// entry is the per-path state. Only the registry goroutine touches it.
type entry struct {
	path         string
	generation   uint64
	fingerprint  detector.Fingerprint
	modTime      time.Time
	subscribers  map[string]struct{}
	lastActivity time.Time
	createdAt    time.Time
	watch        watcher.Watch
}

func newEntry(path string, generation uint64, now time.Time) *entry {
	return &entry{
		path:         path,
		generation:   generation,
		subscribers:  make(map[string]struct{}),
		lastActivity: now,
		createdAt:    now,
	}
}

// touch records client activity; an empty clientID refreshes activity only.
func (e *entry) touch(clientID string, now time.Time) {
	if clientID != "" {
		e.subscribers[clientID] = struct{}{}
	}
	e.lastActivity = now
}

func (e *entry) idleSince(cutoff time.Time) bool {
	return e.lastActivity.Before(cutoff)
}

func (e *entry) alive() bool {
	return e.watch != nil && e.watch.Alive()
}

func (e *entry) info() EntryInfo {
	subs := make([]string, 0, len(e.subscribers))
	for id := range e.subscribers {
		subs = append(subs, id)
	}
	sort.Strings(subs)

	return EntryInfo{
		Path:         e.path,
		Fingerprint:  e.fingerprint,
		ModTime:      e.modTime,
		Subscribers:  subs,
		LastActivity: e.lastActivity,
		CreatedAt:    e.createdAt,
		Alive:        e.alive(),
	}
}
