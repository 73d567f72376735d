package detector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/0xmhha/filewatch/pkg/logger"
)

type detector struct {
	config Config
	logger logger.Logger
}

// New creates a Detector.
//
// Parameters:
//   - cfg: Detector configuration; zero fields take defaults
//   - log: Logger instance
func New(cfg Config, log logger.Logger) Detector {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 64 * 1024 * 1024
	}

	return &detector{
		config: cfg,
		logger: logger.Component(log, "detector"),
	}
}

// Detect implements Detector.Detect.
func (d *detector) Detect(ctx context.Context, path string) (Snapshot, error) {
	return d.detectWithRetry(ctx, path, false)
}

// DetectContent implements Detector.DetectContent.
func (d *detector) DetectContent(ctx context.Context, path string) (Snapshot, error) {
	return d.detectWithRetry(ctx, path, true)
}

// Sum fingerprints data that is already in memory.
func Sum(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

func (d *detector) detectWithRetry(ctx context.Context, path string, keepContent bool) (Snapshot, error) {
	var lastErr error

	for attempt := 0; attempt < d.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Snapshot{}, ctx.Err()
			case <-time.After(d.config.RetryDelay):
			}
		}

		snap, err := d.readFile(path, keepContent)
		if err == nil {
			return snap, nil
		}
		lastErr = err

		if !isRetryable(err) {
			d.logger.Debug("non-retryable read error",
				"path", path,
				"error", err)
			return Snapshot{}, err
		}

		d.logger.Debug("read attempt failed",
			"path", path,
			"attempt", attempt+1,
			"error", err)
	}

	if errors.Is(lastErr, ErrNotFound) {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return Snapshot{}, fmt.Errorf("%w after %d attempts: %w", ErrReadFailed, d.config.MaxAttempts, lastErr)
}

// readFile performs one read-and-hash attempt.
func (d *detector) readFile(path string, keepContent bool) (Snapshot, error) {
	f, err := os.Open(path) // nolint:gosec // path is resolved by the caller
	if err != nil {
		return Snapshot{}, classify(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Snapshot{}, classify(err)
	}
	if !info.Mode().IsRegular() {
		return Snapshot{}, ErrNotRegular
	}
	if info.Size() > d.config.MaxFileSize {
		return Snapshot{}, ErrFileTooLarge
	}

	// The file may grow between Stat and read; cap what is consumed.
	data, err := io.ReadAll(io.LimitReader(f, d.config.MaxFileSize+1))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > d.config.MaxFileSize {
		return Snapshot{}, ErrFileTooLarge
	}

	snap := Snapshot{
		Path:        path,
		Fingerprint: Sum(data),
		ModTime:     info.ModTime(),
		Size:        int64(len(data)),
	}
	if keepContent {
		snap.Content = data
	}
	return snap, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrReadFailed, err)
	default:
		return err
	}
}

func isRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound):
		return true // mid atomic rename
	case errors.Is(err, ErrNotRegular), errors.Is(err, ErrFileTooLarge):
		return false
	case errors.Is(err, ErrReadFailed):
		return false
	default:
		return true
	}
}
