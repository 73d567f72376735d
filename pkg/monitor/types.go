// Package monitor follows a fixed set of files through a local registry and
// streams their verified changes.
//
// A monitor is a registry.Listener. It is attached to the registry it later
// drives, so construction happens in two steps:
//
//	mon := monitor.New(monitor.Config{Paths: paths}, log)
//	reg, _ := registry.New(registry.Config{Listeners: []registry.Listener{mon}}, det, factory, log)
//	if err := mon.Start(ctx, reg); err != nil {
//	    return err
//	}
//	for update := range mon.Updates() {
//	    ...
//	}
package monitor

import (
	"context"
	"time"

	"github.com/0xmhha/filewatch/pkg/registry"
)

// Config holds the configuration for the live monitor.
type Config struct {
	// Paths to follow. Must not be empty.
	Paths []string

	// ClientID identifies the monitor to the registry.
	// Default: "monitor".
	ClientID string

	// RetryInterval is how often paths whose watch failed are registered
	// again. Default: 1s.
	RetryInterval time.Duration

	// UpdateBuffer is the capacity of the updates channel. Updates beyond
	// it are dropped. Default: 64.
	UpdateBuffer int
}

// LiveMonitor streams verified changes for a set of files.
type LiveMonitor interface {
	registry.Listener

	// Start registers every path with reg and keeps failed watches
	// re-registered until ctx is cancelled or Stop is called.
	Start(ctx context.Context, reg registry.Registry) error

	// Stop stops the re-registration loop. Updates keep flowing until
	// Close.
	Stop() error

	// Updates returns the update stream. It is closed by Close.
	Updates() <-chan Update

	// Stats returns the counters accumulated since creation.
	Stats() Stats

	// Close stops the monitor and closes the update stream.
	Close() error
}

// UpdateKind distinguishes update payloads.
type UpdateKind string

const (
	// UpdateChange carries a verified change.
	UpdateChange UpdateKind = "change"

	// UpdateLost reports that a followed path lost its watch.
	UpdateLost UpdateKind = "lost"
)

// Update represents a live monitoring update event.
type Update struct {
	// Timestamp of the update
	Timestamp time.Time

	Kind UpdateKind

	// Change is set for UpdateChange.
	Change registry.Change

	// Path and Reason are set for UpdateLost.
	Path   string
	Reason registry.EvictReason
}

// Stats holds monitor counters.
type Stats struct {
	// Paths is the number of followed paths.
	Paths int

	// Changes is the total number of verified changes.
	Changes int

	// PerPath counts verified changes by path.
	PerPath map[string]int

	// Lost counts watch losses.
	Lost int

	// Dropped counts updates discarded because the channel was full.
	Dropped int

	// StartedAt is when the monitor was created.
	StartedAt time.Time
}
