package display

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/0xmhha/filewatch/pkg/detector"
	"github.com/0xmhha/filewatch/pkg/history"
	"github.com/0xmhha/filewatch/pkg/registry"
	"github.com/0xmhha/filewatch/pkg/resolver"
)

var (
	testTime = time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)
	fpOld    = detector.Sum([]byte("old"))
	fpNew    = detector.Sum([]byte("new"))
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config Config
		want   string // Type name
	}{
		{
			name:   "default format (table)",
			config: Config{},
			want:   "*display.tableFormatter",
		},
		{
			name:   "table format",
			config: Config{Format: FormatTable},
			want:   "*display.tableFormatter",
		},
		{
			name:   "json format",
			config: Config{Format: FormatJSON},
			want:   "*display.jsonFormatter",
		},
		{
			name:   "simple format",
			config: Config{Format: FormatSimple},
			want:   "*display.simpleFormatter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			formatter := New(tt.config)
			if formatter == nil {
				t.Fatal("New() returned nil")
			}

			got := fmt.Sprintf("%T", formatter)
			if got != tt.want {
				t.Errorf("New() type = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"json", FormatJSON, false},
		{"simple", FormatSimple, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("ParseFormat(%q) error = %v, want ErrUnknownFormat", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestTableFormatter_FormatSnapshot(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatTable})

	var buf bytes.Buffer
	err := formatter.FormatSnapshot(&buf, detector.Snapshot{
		Path:        "/srv/p1/context.py",
		Fingerprint: fpNew,
		ModTime:     testTime,
		Size:        12345,
	})
	if err != nil {
		t.Fatalf("FormatSnapshot() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"/srv/p1/context.py", fpNew.String(), "12,345 bytes", "2024-01-01 10:00:00"} {
		if !strings.Contains(output, want) {
			t.Errorf("Output missing %q:\n%s", want, output)
		}
	}
}

func TestTableFormatter_FormatHistory(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatTable})

	records := []history.Record{
		{Path: "/a", Fingerprint: fpNew, ModTime: testTime, RecordedAt: testTime.Add(time.Second)},
		{Path: "/a", Fingerprint: fpOld, ModTime: testTime, RecordedAt: testTime},
	}

	var buf bytes.Buffer
	if err := formatter.FormatHistory(&buf, "/a", records); err != nil {
		t.Fatalf("FormatHistory() error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "History: /a") {
		t.Error("Output missing header")
	}
	if !strings.Contains(output, fpNew.Short()) || !strings.Contains(output, fpOld.Short()) {
		t.Error("Output missing short checksums")
	}
	if strings.Contains(output, fpNew.String()) {
		t.Error("Output should use short checksums by default")
	}
	if strings.Index(output, "#1") > strings.Index(output, "#2") {
		t.Error("Records out of order")
	}
}

func TestTableFormatter_EmptyHistory(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatTable, Compact: true})

	var buf bytes.Buffer
	if err := formatter.FormatHistory(&buf, "/a", nil); err != nil {
		t.Fatalf("FormatHistory() error = %v", err)
	}

	if !strings.Contains(buf.String(), "No data") {
		t.Errorf("Expected 'No data', got %q", buf.String())
	}
}

func TestTableFormatter_FormatProposals(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatTable})

	proposals := []resolver.Proposal{
		{Name: "p1", Dir: "/srv/p1", FileTypes: []string{"context", "log"}},
		{Name: "p2", Dir: "/srv/p2"},
	}

	var buf bytes.Buffer
	if err := formatter.FormatProposals(&buf, proposals); err != nil {
		t.Fatalf("FormatProposals() error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "context, log") {
		t.Error("Output missing file types")
	}
	if !strings.Contains(output, "/srv/p2") {
		t.Error("Output missing directory")
	}
}

func TestFormatChange(t *testing.T) {
	t.Parallel()

	change := registry.Change{
		Path:        "/srv/p1/log.txt",
		Fingerprint: fpNew,
		Previous:    fpOld,
		ModTime:     testTime,
		DetectedAt:  testTime,
	}

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := New(Config{}).FormatChange(&buf, change); err != nil {
			t.Fatalf("FormatChange() error = %v", err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Errorf("Expected a single line, got %q", buf.String())
		}
		if !strings.Contains(buf.String(), fpOld.Short()+" ") {
			t.Errorf("Output missing previous checksum: %q", buf.String())
		}
	})

	t.Run("simple full", func(t *testing.T) {
		var buf bytes.Buffer
		formatter := New(Config{Format: FormatSimple, FullFingerprints: true})
		if err := formatter.FormatChange(&buf, change); err != nil {
			t.Fatalf("FormatChange() error = %v", err)
		}
		want := fmt.Sprintf("/srv/p1/log.txt changed %s -> %s\n", fpOld, fpNew)
		if buf.String() != want {
			t.Errorf("FormatChange() = %q, want %q", buf.String(), want)
		}
	})

	t.Run("json lines", func(t *testing.T) {
		var buf bytes.Buffer
		formatter := New(Config{Format: FormatJSON})
		if err := formatter.FormatChange(&buf, change); err != nil {
			t.Fatalf("FormatChange() error = %v", err)
		}
		if err := formatter.FormatChange(&buf, change); err != nil {
			t.Fatalf("FormatChange() error = %v", err)
		}

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 2 {
			t.Fatalf("Expected 2 lines, got %d", len(lines))
		}

		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if decoded["checksum"] != fpNew.String() || decoded["previous"] != fpOld.String() {
			t.Errorf("Unexpected JSON: %v", decoded)
		}
	})
}

func TestSimpleFormatter_FormatSnapshot(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := New(Config{Format: FormatSimple}).FormatSnapshot(&buf, detector.Snapshot{
		Path:        "notes.txt",
		Fingerprint: fpNew,
	})
	if err != nil {
		t.Fatalf("FormatSnapshot() error = %v", err)
	}

	want := fpNew.String() + "  notes.txt\n"
	if buf.String() != want {
		t.Errorf("FormatSnapshot() = %q, want %q", buf.String(), want)
	}
}

func TestJSONFormatter_FormatHistory(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := New(Config{Format: FormatJSON}).FormatHistory(&buf, "/a", nil); err != nil {
		t.Fatalf("FormatHistory() error = %v", err)
	}

	var decoded struct {
		Path    string           `json:"path"`
		Records []history.Record `json:"records"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if decoded.Path != "/a" || decoded.Records == nil || len(decoded.Records) != 0 {
		t.Errorf("Unexpected history JSON: %s", buf.String())
	}
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input int64
		want  string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		if got := formatNumber(tt.input); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatFingerprint(t *testing.T) {
	t.Parallel()

	if got := formatFingerprint("", false); got != "-" {
		t.Errorf("formatFingerprint(\"\") = %q, want -", got)
	}
	if got := formatFingerprint(fpNew, false); got != fpNew.Short() {
		t.Errorf("formatFingerprint(short) = %q", got)
	}
	if got := formatFingerprint(fpNew, true); got != fpNew.String() {
		t.Errorf("formatFingerprint(full) = %q", got)
	}
}
