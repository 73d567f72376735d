package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/filewatch/pkg/logger"
	"github.com/0xmhha/filewatch/pkg/registry"
)

// bucketHistory holds one nested bucket per path; keys inside are
// big-endian sequence numbers so cursor order is insertion order.
var bucketHistory = []byte("history")

// journal implements the Journal interface using BoltDB.
type journal struct {
	db     *bolt.DB
	logger logger.Logger
	config Config
}

// New opens (or creates) the journal database.
//
// Parameters:
//   - cfg: Journal configuration
//   - log: Logger instance
//
// Returns:
//   - Configured Journal
//   - Error if database cannot be opened
func New(cfg Config, log logger.Logger) (Journal, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 100
	}
	log = logger.Component(log, "history")

	dbPath := ExpandHome(cfg.DBPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, createErr := tx.CreateBucketIfNotExists(bucketHistory); createErr != nil {
			return fmt.Errorf("failed to create history bucket: %w", createErr)
		}
		return nil
	}); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after initialization error",
				"error", closeErr)
		}
		return nil, err
	}

	log.Info("history journal opened",
		"db_path", dbPath,
		"retention", cfg.Retention)

	return &journal{
		db:     db,
		logger: log,
		config: cfg,
	}, nil
}

// Record implements Journal.Record.
func (j *journal) Record(rec Record) error {
	if rec.Path == "" {
		return ErrEmptyPath
	}
	if !rec.Fingerprint.Established() {
		return ErrNoFingerprint
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketHistory).CreateBucketIfNotExists([]byte(rec.Path))
		if err != nil {
			return fmt.Errorf("failed to create path bucket: %w", err)
		}

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}

		if err := b.Put(sequenceKey(seq), data); err != nil {
			return fmt.Errorf("failed to store record: %w", err)
		}

		return j.trim(b)
	})
}

// trim deletes the oldest records beyond the retention limit.
func (j *journal) trim(b *bolt.Bucket) error {
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	excess := len(keys) - j.config.Retention
	for i := 0; i < excess; i++ {
		if err := b.Delete(keys[i]); err != nil {
			return fmt.Errorf("failed to trim record: %w", err)
		}
	}
	return nil
}

// List implements Journal.List.
func (j *journal) List(path string, limit int) ([]Record, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	records := make([]Record, 0, 10)

	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory).Bucket([]byte(path))
		if b == nil {
			return nil
		}

		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}

			var rec Record
			if unmarshalErr := json.Unmarshal(v, &rec); unmarshalErr != nil {
				j.logger.Warn("failed to unmarshal record",
					"path", path,
					"seq", binary.BigEndian.Uint64(k),
					"error", unmarshalErr)
				continue // Skip invalid entries.
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	return records, nil
}

// Paths implements Journal.Paths.
func (j *journal) Paths() ([]string, error) {
	var paths []string

	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHistory).ForEach(func(k, v []byte) error {
			// Nested buckets have a nil value.
			if v == nil {
				paths = append(paths, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list paths: %w", err)
	}

	sort.Strings(paths)
	return paths, nil
}

// OnChange implements registry.Listener.
func (j *journal) OnChange(change registry.Change) {
	if err := j.Record(Record{
		Path:        change.Path,
		Fingerprint: change.Fingerprint,
		ModTime:     change.ModTime,
		RecordedAt:  change.DetectedAt,
	}); err != nil {
		j.logger.Error("failed to journal change",
			"path", change.Path,
			"error", err)
	}
}

// OnEvict implements registry.Listener.
func (j *journal) OnEvict(string, registry.EvictReason) {}

// Close implements Journal.Close.
func (j *journal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	j.logger.Info("history journal closed")
	return nil
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// ExpandHome expands ~ in file paths to the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	return filepath.Join(homeDir, path[2:])
}
