// Package display renders fingerprints, changes and history for the CLI.
//
// It supports three output formats: an aligned table, JSON, and a one-line
// simple text form suited to scripts and logs.
package display

import (
	"io"

	"github.com/0xmhha/filewatch/pkg/detector"
	"github.com/0xmhha/filewatch/pkg/history"
	"github.com/0xmhha/filewatch/pkg/registry"
	"github.com/0xmhha/filewatch/pkg/resolver"
)

// Format represents an output format.
type Format string

const (
	// FormatTable displays records in an aligned table.
	FormatTable Format = "table"

	// FormatJSON displays records as JSON.
	FormatJSON Format = "json"

	// FormatSimple displays one line per record.
	FormatSimple Format = "simple"
)

// ParseFormat validates a format name. An empty name selects FormatTable.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatSimple:
		return Format(s), nil
	default:
		return "", ErrUnknownFormat
	}
}

// Formatter formats CLI output.
type Formatter interface {
	// FormatSnapshot formats the fingerprint of one file.
	FormatSnapshot(w io.Writer, snap detector.Snapshot) error

	// FormatChange formats one verified change. Streaming output calls it
	// once per change, so it never writes headers.
	FormatChange(w io.Writer, change registry.Change) error

	// FormatHistory formats the journaled changes of path, newest first.
	FormatHistory(w io.Writer, path string, records []history.Record) error

	// FormatProposals formats the proposal directories under the root.
	FormatProposals(w io.Writer, proposals []resolver.Proposal) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format.
	// Default: FormatTable.
	Format Format

	// FullFingerprints prints whole fingerprints instead of the short form.
	// JSON output always carries the full value.
	FullFingerprints bool

	// Compact enables compact output (less whitespace).
	// Default: false.
	Compact bool
}
