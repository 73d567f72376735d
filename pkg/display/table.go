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

// tableFormatter formats output as tables.
type tableFormatter struct {
	config Config
}

// FormatSnapshot implements Formatter.FormatSnapshot.
func (f *tableFormatter) FormatSnapshot(w io.Writer, snap detector.Snapshot) error {
	rows := [][]string{
		{"Path", snap.Path},
		{"Checksum", snap.Fingerprint.String()},
		{"Size", formatNumber(snap.Size) + " bytes"},
		{"Last Modified", formatTime(snap.ModTime)},
	}
	return f.writeTable(w, []string{"Field", "Value"}, rows)
}

// FormatChange implements Formatter.FormatChange.
func (f *tableFormatter) FormatChange(w io.Writer, change registry.Change) error {
	_, err := fmt.Fprintf(w, "%s  %-12s -> %-12s  %s\n",
		change.DetectedAt.Local().Format(timeLayout),
		formatFingerprint(change.Previous, f.config.FullFingerprints),
		formatFingerprint(change.Fingerprint, f.config.FullFingerprints),
		change.Path)
	return err
}

// FormatHistory implements Formatter.FormatHistory.
func (f *tableFormatter) FormatHistory(w io.Writer, path string, records []history.Record) error {
	if err := writeHeader(w, "History: "+path, f.config.Compact); err != nil {
		return err
	}

	rows := make([][]string, len(records))
	for i, rec := range records {
		rows[i] = []string{
			fmt.Sprintf("#%d", i+1),
			formatTime(rec.RecordedAt),
			formatTime(rec.ModTime),
			formatFingerprint(rec.Fingerprint, f.config.FullFingerprints),
		}
	}

	return f.writeTable(w, []string{"#", "Detected", "Modified", "Checksum"}, rows)
}

// FormatProposals implements Formatter.FormatProposals.
func (f *tableFormatter) FormatProposals(w io.Writer, proposals []resolver.Proposal) error {
	if err := writeHeader(w, "Proposals", f.config.Compact); err != nil {
		return err
	}

	rows := make([][]string, len(proposals))
	for i, p := range proposals {
		types := strings.Join(p.FileTypes, ", ")
		if types == "" {
			types = "-"
		}
		rows[i] = []string{p.Name, types, p.Dir}
	}

	return f.writeTable(w, []string{"Proposal", "File Types", "Directory"}, rows)
}

// writeTable writes a formatted table.
func (f *tableFormatter) writeTable(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	if err := f.writeRow(w, header, widths); err != nil {
		return err
	}

	if !f.config.Compact {
		separator := make([]string, len(header))
		for i, width := range widths {
			separator[i] = strings.Repeat("-", width)
		}
		if err := f.writeRow(w, separator, widths); err != nil {
			return err
		}
	}

	for _, row := range rows {
		if err := f.writeRow(w, row, widths); err != nil {
			return err
		}
	}

	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}
	return nil
}

// writeRow writes a single table row. The last column is not padded.
func (f *tableFormatter) writeRow(w io.Writer, cells []string, widths []int) error {
	sep := "  "
	if f.config.Compact {
		sep = " "
	}

	for i, cell := range cells {
		if i > 0 {
			if _, err := fmt.Fprint(w, sep); err != nil {
				return err
			}
		}
		if i == len(cells)-1 {
			if _, err := fmt.Fprint(w, cell); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%-*s", widths[i], cell); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w)
	return err
}
