package display

import (
	"encoding/json"
	"io"
	"time"

	"github.com/0xmhha/filewatch/pkg/detector"
	"github.com/0xmhha/filewatch/pkg/history"
	"github.com/0xmhha/filewatch/pkg/registry"
	"github.com/0xmhha/filewatch/pkg/resolver"
)

// jsonFormatter formats output as JSON.
type jsonFormatter struct {
	config Config
}

type snapshotJSON struct {
	Path         string               `json:"path"`
	Checksum     detector.Fingerprint `json:"checksum"`
	Size         int64                `json:"size"`
	LastModified time.Time            `json:"last_modified"`
}

type changeJSON struct {
	Path         string               `json:"path"`
	Checksum     detector.Fingerprint `json:"checksum"`
	Previous     detector.Fingerprint `json:"previous,omitempty"`
	LastModified time.Time            `json:"last_modified"`
	DetectedAt   time.Time            `json:"detected_at"`
}

type historyJSON struct {
	Path    string           `json:"path"`
	Records []history.Record `json:"records"`
}

func (f *jsonFormatter) encoder(w io.Writer) *json.Encoder {
	encoder := json.NewEncoder(w)
	if !f.config.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder
}

// FormatSnapshot implements Formatter.FormatSnapshot.
func (f *jsonFormatter) FormatSnapshot(w io.Writer, snap detector.Snapshot) error {
	return f.encoder(w).Encode(snapshotJSON{
		Path:         snap.Path,
		Checksum:     snap.Fingerprint,
		Size:         snap.Size,
		LastModified: snap.ModTime,
	})
}

// FormatChange implements Formatter.FormatChange. Changes are always
// written one object per line so the stream stays line-delimited.
func (f *jsonFormatter) FormatChange(w io.Writer, change registry.Change) error {
	return json.NewEncoder(w).Encode(changeJSON{
		Path:         change.Path,
		Checksum:     change.Fingerprint,
		Previous:     change.Previous,
		LastModified: change.ModTime,
		DetectedAt:   change.DetectedAt,
	})
}

// FormatHistory implements Formatter.FormatHistory.
func (f *jsonFormatter) FormatHistory(w io.Writer, path string, records []history.Record) error {
	if records == nil {
		records = []history.Record{}
	}
	return f.encoder(w).Encode(historyJSON{Path: path, Records: records})
}

// FormatProposals implements Formatter.FormatProposals.
func (f *jsonFormatter) FormatProposals(w io.Writer, proposals []resolver.Proposal) error {
	if proposals == nil {
		proposals = []resolver.Proposal{}
	}
	return f.encoder(w).Encode(proposals)
}
