package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/0xmhha/filewatch/pkg/detector"
	"github.com/0xmhha/filewatch/pkg/history"
	"github.com/0xmhha/filewatch/pkg/registry"
	"github.com/0xmhha/filewatch/pkg/resolver"
)

// simpleFormatter formats output as simple text.
type simpleFormatter struct {
	config Config
}

// FormatSnapshot implements Formatter.FormatSnapshot. The layout matches
// sha256sum so the output can be fed to checksum tools.
func (f *simpleFormatter) FormatSnapshot(w io.Writer, snap detector.Snapshot) error {
	_, err := fmt.Fprintf(w, "%s  %s\n", snap.Fingerprint, snap.Path)
	return err
}

// FormatChange implements Formatter.FormatChange.
func (f *simpleFormatter) FormatChange(w io.Writer, change registry.Change) error {
	_, err := fmt.Fprintf(w, "%s changed %s -> %s\n",
		change.Path,
		formatFingerprint(change.Previous, f.config.FullFingerprints),
		formatFingerprint(change.Fingerprint, f.config.FullFingerprints))
	return err
}

// FormatHistory implements Formatter.FormatHistory.
func (f *simpleFormatter) FormatHistory(w io.Writer, path string, records []history.Record) error {
	for _, rec := range records {
		if _, err := fmt.Fprintf(w, "%s %s %s\n",
			rec.RecordedAt.Local().Format(timeLayout),
			formatFingerprint(rec.Fingerprint, f.config.FullFingerprints),
			path); err != nil {
			return err
		}
	}
	return nil
}

// FormatProposals implements Formatter.FormatProposals.
func (f *simpleFormatter) FormatProposals(w io.Writer, proposals []resolver.Proposal) error {
	for _, p := range proposals {
		if _, err := fmt.Fprintf(w, "%s: %s\n", p.Name, strings.Join(p.FileTypes, ",")); err != nil {
			return err
		}
	}
	return nil
}
