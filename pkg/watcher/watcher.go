package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xmhha/filewatch/pkg/logger"
	"github.com/fsnotify/fsnotify"
)

type factory struct {
	config Config
	logger logger.Logger
}

// NewFactory creates a Factory backed by fsnotify.
//
// Parameters:
//   - cfg: Watcher configuration
//   - log: Logger instance
func NewFactory(cfg Config, log logger.Logger) Factory {
	if cfg.CircuitBreakerThreshold <= 0 {
		cfg.CircuitBreakerThreshold = 5
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}

	return &factory{
		config: cfg,
		logger: logger.Component(log, "watcher"),
	}
}

// fileWatch implements Watch for a single file.
type fileWatch struct {
	path   string
	dir    string
	fsw    *fsnotify.Watcher
	cb     Callback
	logger logger.Logger
	config Config

	ctx    context.Context
	cancel context.CancelFunc
	exited chan struct{}

	stopOnce sync.Once
	stopErr  error
	alive    atomic.Bool

	// Circuit breaker state, owned by the run goroutine.
	failureCount int
	lastFailure  time.Time
}

// Watch implements Factory.Watch.
func (f *factory) Watch(path string, cb Callback) (Watch, error) {
	if cb == nil {
		return nil, ErrNilCallback
	}
	if path == "" || !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	clean := filepath.Clean(path)
	dir := filepath.Dir(clean)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			f.logger.Warn("failed to close fsnotify watcher after add error",
				"dir", dir,
				"error", closeErr)
		}
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &fileWatch{
		path:   clean,
		dir:    dir,
		fsw:    fsw,
		cb:     cb,
		logger: f.logger.With("path", clean),
		config: f.config,
		ctx:    ctx,
		cancel: cancel,
		exited: make(chan struct{}),
	}
	w.alive.Store(true)

	go w.run()

	w.logger.Debug("native watch started", "dir", dir)
	return w, nil
}

// Path implements Watch.Path.
func (w *fileWatch) Path() string {
	return w.path
}

// Alive implements Watch.Alive.
func (w *fileWatch) Alive() bool {
	return w.alive.Load()
}

// Stop implements Watch.Stop.
func (w *fileWatch) Stop() error {
	w.stopOnce.Do(func() {
		w.alive.Store(false)
		w.cancel()
		if err := w.fsw.Close(); err != nil {
			w.stopErr = fmt.Errorf("failed to close fsnotify watcher: %w", err)
		}
		<-w.exited
		w.logger.Debug("native watch stopped")
	})
	return w.stopErr
}

// run is the only goroutine that reads fsnotify channels and calls cb.
func (w *fileWatch) run() {
	defer close(w.exited)

	var (
		pending *Event
		timer   *time.Timer
		fire    <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				w.alive.Store(false)
				return
			}
			ev, relevant := w.translate(event)
			if !relevant {
				continue
			}
			w.failureCount = 0

			if w.config.Debounce == 0 {
				w.cb(w.ctx, ev)
				continue
			}
			pending = &ev
			if timer == nil {
				timer = time.NewTimer(w.config.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.config.Debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if pending != nil {
				ev := *pending
				pending = nil
				w.cb(w.ctx, ev)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.alive.Store(false)
				return
			}
			if w.handleError(err) {
				w.alive.Store(false)
				return
			}
		}
	}
}

// translate filters events down to the watched file and maps the op.
func (w *fileWatch) translate(event fsnotify.Event) (Event, bool) {
	if filepath.Clean(event.Name) != w.path {
		return Event{}, false
	}

	var op Op
	switch {
	case event.Has(fsnotify.Write):
		op = OpWrite
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Rename):
		op = OpRename
	case event.Has(fsnotify.Remove):
		op = OpRemove
	case event.Has(fsnotify.Chmod):
		op = OpChmod
	default:
		w.logger.Debug("unknown fsnotify operation", "op", event.Op)
		return Event{}, false
	}

	return Event{
		Path:      w.path,
		Op:        op,
		Timestamp: time.Now(),
	}, true
}

// handleError counts consecutive failures and reports whether the breaker
// has opened.
func (w *fileWatch) handleError(err error) bool {
	w.failureCount++
	w.lastFailure = time.Now()

	w.logger.Error("fsnotify error",
		"error", err,
		"failure_count", w.failureCount)

	if w.failureCount >= w.config.CircuitBreakerThreshold {
		w.logger.Error("native watch giving up",
			"error", ErrCircuitBreakerOpen,
			"threshold", w.config.CircuitBreakerThreshold)
		return true
	}
	return false
}
