package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xmhha/filewatch/pkg/detector"
	"github.com/0xmhha/filewatch/pkg/logger"
	"github.com/0xmhha/filewatch/pkg/registry"
)

func TestNew(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "history.db")

	j, err := New(Config{DBPath: dbPath}, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if closeErr := j.Close(); closeErr != nil {
		t.Errorf("Close() error = %v", closeErr)
	}

	if _, statErr := os.Stat(dbPath); statErr != nil {
		t.Errorf("Database file not created: %v", statErr)
	}
}

func TestRecordAndList(t *testing.T) {
	j := setupTestJournal(t, 0)

	for i := 1; i <= 3; i++ {
		rec := Record{
			Path:        "/srv/p1/context.py",
			Fingerprint: detector.Sum([]byte(fmt.Sprintf("v%d", i))),
			ModTime:     time.Unix(int64(i), 0),
		}
		if err := j.Record(rec); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	records, err := j.List("/srv/p1/context.py", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List() returned %d records, want 3", len(records))
	}

	// Newest first.
	if want := detector.Sum([]byte("v3")); records[0].Fingerprint != want {
		t.Errorf("records[0].Fingerprint = %s, want %s", records[0].Fingerprint, want)
	}
	if want := detector.Sum([]byte("v1")); records[2].Fingerprint != want {
		t.Errorf("records[2].Fingerprint = %s, want %s", records[2].Fingerprint, want)
	}
	if records[0].RecordedAt.IsZero() {
		t.Error("RecordedAt is zero")
	}

	limited, err := j.List("/srv/p1/context.py", 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("List(limit=2) returned %d records", len(limited))
	}
}

func TestListUnknownPath(t *testing.T) {
	j := setupTestJournal(t, 0)

	records, err := j.List("/srv/none", 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("List() returned %d records for unknown path", len(records))
	}

	if _, err := j.List("", 10); !errors.Is(err, ErrEmptyPath) {
		t.Errorf("List(\"\") error = %v, want ErrEmptyPath", err)
	}
}

func TestRecordValidation(t *testing.T) {
	j := setupTestJournal(t, 0)

	if err := j.Record(Record{Fingerprint: detector.Sum([]byte("x"))}); !errors.Is(err, ErrEmptyPath) {
		t.Errorf("Record() error = %v, want ErrEmptyPath", err)
	}
	if err := j.Record(Record{Path: "/f"}); !errors.Is(err, ErrNoFingerprint) {
		t.Errorf("Record() error = %v, want ErrNoFingerprint", err)
	}
}

func TestRetention(t *testing.T) {
	j := setupTestJournal(t, 3)

	for i := 1; i <= 5; i++ {
		if err := j.Record(Record{
			Path:        "/f",
			Fingerprint: detector.Sum([]byte(fmt.Sprintf("v%d", i))),
		}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	records, err := j.List("/f", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List() returned %d records, want 3", len(records))
	}
	if want := detector.Sum([]byte("v3")); records[2].Fingerprint != want {
		t.Errorf("oldest retained = %s, want %s", records[2].Fingerprint, want)
	}
}

func TestPaths(t *testing.T) {
	j := setupTestJournal(t, 0)

	for _, path := range []string{"/b", "/a", "/b"} {
		if err := j.Record(Record{Path: path, Fingerprint: detector.Sum([]byte(path))}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	paths, err := j.Paths()
	if err != nil {
		t.Fatalf("Paths() error = %v", err)
	}
	if len(paths) != 2 || paths[0] != "/a" || paths[1] != "/b" {
		t.Errorf("Paths() = %v, want [/a /b]", paths)
	}
}

func TestListenerRecordsChanges(t *testing.T) {
	j := setupTestJournal(t, 0)

	detected := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	j.OnChange(registry.Change{
		Path:        "/srv/p1/log.txt",
		Fingerprint: detector.Sum([]byte("v2")),
		Previous:    detector.Sum([]byte("v1")),
		DetectedAt:  detected,
	})
	j.OnEvict("/srv/p1/log.txt", registry.EvictIdle)

	records, err := j.List("/srv/p1/log.txt", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("List() returned %d records, want 1", len(records))
	}
	if !records[0].RecordedAt.Equal(detected) {
		t.Errorf("RecordedAt = %v, want %v", records[0].RecordedAt, detected)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	j, err := New(Config{DBPath: dbPath}, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := j.Record(Record{Path: "/f", Fingerprint: detector.Sum([]byte("v1"))}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	j, err = New(Config{DBPath: dbPath}, logger.Noop())
	if err != nil {
		t.Fatalf("New() reopen error = %v", err)
	}
	defer j.Close()

	records, err := j.List("/f", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("List() after reopen returned %d records, want 1", len(records))
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/.config/filewatch/history.db", filepath.Join(home, ".config/filewatch/history.db")},
		{"/abs/path.db", "/abs/path.db"},
		{"relative.db", "relative.db"},
	}

	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func setupTestJournal(t *testing.T, retention int) Journal {
	t.Helper()

	j, err := New(Config{
		DBPath:    filepath.Join(t.TempDir(), "test.db"),
		Retention: retention,
	}, logger.Noop())
	if err != nil {
		t.Fatalf("Failed to create test journal: %v", err)
	}

	t.Cleanup(func() {
		if closeErr := j.Close(); closeErr != nil {
			t.Errorf("Cleanup Close() error = %v", closeErr)
		}
	})

	return j
}
