// Package notify fans verified changes out to push subscribers.
//
// Pull clients need nothing from this package: the registry's stored
// fingerprint is the current value and they compare against it on demand.
// Push clients subscribe to a path and receive a Message for every verified
// change. Delivery runs on the dispatcher's own goroutine so a slow or dead
// subscriber never stalls change detection.
package notify

import (
	"time"

	"github.com/0xmhha/filewatch/pkg/detector"
)

// EventKind identifies a pushed message.
type EventKind string

const (
	// EventChange reports a verified content change.
	EventChange EventKind = "change"

	// EventUnwatched tells subscribers the path is no longer watched and
	// they must subscribe again to keep receiving changes.
	EventUnwatched EventKind = "unwatched"
)

// Message is what a push subscriber receives.
type Message struct {
	Event       EventKind            `json:"event"`
	Path        string               `json:"path"`
	Fingerprint detector.Fingerprint `json:"checksum,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
}

// Subscriber receives pushed messages.
//
// Send should return promptly. A Send error removes the subscriber from
// every path it was subscribed to.
type Subscriber interface {
	ID() string
	Send(msg Message) error
}

// Config contains dispatcher configuration.
type Config struct {
	// OnDelivered is called after a change for path reached at least one
	// subscriber. It runs on the dispatcher goroutine.
	OnDelivered func(path string)
}
