package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/0xmhha/filewatch/pkg/detector"
	"github.com/0xmhha/filewatch/pkg/logger"
	"github.com/0xmhha/filewatch/pkg/watcher"
	"golang.org/x/sync/errgroup"
)

// signal is a raw native event handed from a watch goroutine to the loop.
type signal struct {
	path       string
	generation uint64
	event      watcher.Event
}

// registry implements Registry as a single-goroutine actor.
type registry struct {
	config   Config
	detector detector.Detector
	factory  watcher.Factory
	logger   logger.Logger

	requests chan func()
	signals  chan signal

	// ctx is cancelled on Close and bounds reads done by the loop itself.
	ctx       context.Context
	cancel    context.CancelFunc
	exited    chan struct{}
	closeOnce sync.Once
	closeErr  error

	// Owned by the loop goroutine.
	entries map[string]*entry
	nextGen uint64
}

// New creates a registry and starts its loop.
//
// Parameters:
//   - cfg: Registry configuration
//   - det: Detector used for baselines and change verification
//   - factory: Native watch factory
//   - log: Logger instance
func New(cfg Config, det detector.Detector, factory watcher.Factory, log logger.Logger) (Registry, error) {
	if det == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("watch factory is required")
	}

	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.StopConcurrency <= 0 {
		cfg.StopConcurrency = 8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &registry{
		config:   cfg,
		detector: det,
		factory:  factory,
		logger:   logger.Component(log, "registry"),
		requests: make(chan func()),
		signals:  make(chan signal, cfg.EventBuffer),
		ctx:      ctx,
		cancel:   cancel,
		exited:   make(chan struct{}),
		entries:  make(map[string]*entry),
	}

	go r.loop()

	r.logger.Info("watch registry started",
		"event_buffer", cfg.EventBuffer,
		"listeners", len(cfg.Listeners))

	return r, nil
}

// Register implements Registry.Register.
func (r *registry) Register(ctx context.Context, path, clientID string) error {
	key, err := normalize(path)
	if err != nil {
		return err
	}

	var regErr error
	if err := r.do(ctx, func() {
		_, regErr = r.register(ctx, key, clientID)
	}); err != nil {
		return err
	}
	return regErr
}

// Compare implements Registry.Compare.
func (r *registry) Compare(ctx context.Context, path string, known detector.Fingerprint, clientID string) (Comparison, error) {
	key, err := normalize(path)
	if err != nil {
		return Unknown, err
	}

	result := Unknown
	var regErr error
	if err := r.do(ctx, func() {
		var e *entry
		e, regErr = r.register(ctx, key, clientID)
		if regErr != nil || !e.fingerprint.Established() {
			return
		}
		if e.fingerprint == known {
			result = Unchanged
		} else {
			result = Changed
		}
	}); err != nil {
		return Unknown, err
	}
	return result, regErr
}

// Status implements Registry.Status.
func (r *registry) Status(ctx context.Context, path string) bool {
	key, err := normalize(path)
	if err != nil {
		return false
	}

	var alive bool
	if err := r.do(ctx, func() {
		if e, ok := r.entries[key]; ok {
			alive = e.alive()
		}
	}); err != nil {
		return false
	}
	return alive
}

// Touch implements Registry.Touch.
func (r *registry) Touch(ctx context.Context, path, clientID string) bool {
	key, err := normalize(path)
	if err != nil {
		return false
	}

	var found bool
	if err := r.do(ctx, func() {
		if e, ok := r.entries[key]; ok {
			e.touch(clientID, r.config.Now())
			found = true
		}
	}); err != nil {
		return false
	}
	return found
}

// Unregister implements Registry.Unregister.
func (r *registry) Unregister(ctx context.Context, path string) (bool, error) {
	key, err := normalize(path)
	if err != nil {
		return false, err
	}

	var (
		removed bool
		stopErr error
	)
	if err := r.do(ctx, func() {
		e, ok := r.entries[key]
		if !ok {
			return
		}
		removed = true
		stopErr = r.retire(e, EvictExplicit)
	}); err != nil {
		return false, err
	}
	return removed, stopErr
}

// Reap implements Registry.Reap.
func (r *registry) Reap(ctx context.Context, timeout time.Duration) (int, error) {
	var (
		count   int
		reapErr error
	)
	if err := r.do(ctx, func() {
		cutoff := r.config.Now().Add(-timeout)
		idle := make([]*entry, 0)
		for _, e := range r.entries {
			if e.idleSince(cutoff) {
				idle = append(idle, e)
			}
		}
		count = len(idle)
		reapErr = r.retireAll(idle, EvictIdle)
	}); err != nil {
		return 0, err
	}
	return count, reapErr
}

// Entries implements Registry.Entries.
func (r *registry) Entries(ctx context.Context) []EntryInfo {
	var infos []EntryInfo
	if err := r.do(ctx, func() {
		infos = make([]EntryInfo, 0, len(r.entries))
		for _, e := range r.entries {
			infos = append(infos, e.info())
		}
	}); err != nil {
		return nil
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Path < infos[j].Path
	})
	return infos
}

// Close implements Registry.Close.
func (r *registry) Close() error {
	r.closeOnce.Do(func() {
		r.cancel()
		<-r.exited
		r.logger.Info("watch registry closed")
	})
	return r.closeErr
}

// do runs fn on the loop goroutine and waits for it to finish.
func (r *registry) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	run := func() {
		defer close(done)
		fn()
	}

	select {
	case r.requests <- run:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return ErrClosed
	}

	<-done
	return nil
}

func (r *registry) loop() {
	defer close(r.exited)

	for {
		select {
		case fn := <-r.requests:
			fn()
		case sig := <-r.signals:
			r.handleSignal(sig)
		case <-r.ctx.Done():
			r.shutdown()
			return
		}
	}
}

// register returns the entry for key, creating it on first use.
func (r *registry) register(ctx context.Context, key, clientID string) (*entry, error) {
	now := r.config.Now()

	if e, ok := r.entries[key]; ok {
		if e.alive() {
			e.touch(clientID, now)
			return e, nil
		}
		r.logger.Warn("native watch died, recreating", "path", key)
		if err := r.retire(e, EvictFailed); err != nil {
			r.logger.Warn("failed to stop dead native watch",
				"path", key,
				"error", err)
		}
	}

	r.nextGen++
	e := newEntry(key, r.nextGen, now)

	// The watch starts before the baseline read so that a write landing in
	// between still produces a signal.
	w, err := r.factory.Watch(key, r.callbackFor(key, e.generation))
	if err != nil {
		if _, detectErr := r.detector.Detect(ctx, key); detectErr != nil {
			return nil, detectErr
		}
		return nil, fmt.Errorf("failed to start native watch: %w", err)
	}
	e.watch = w

	snap, err := r.detector.Detect(ctx, key)
	if err != nil {
		if stopErr := w.Stop(); stopErr != nil {
			r.logger.Warn("failed to stop native watch after baseline error",
				"path", key,
				"error", stopErr)
		}
		return nil, err
	}
	e.fingerprint = snap.Fingerprint
	e.modTime = snap.ModTime
	e.touch(clientID, now)

	r.entries[key] = e

	r.logger.Info("watch created",
		"path", key,
		"client_id", clientID,
		"fingerprint", snap.Fingerprint.Short(),
		"watches", len(r.entries))

	return e, nil
}

// callbackFor hands native events over to the loop.
func (r *registry) callbackFor(key string, generation uint64) watcher.Callback {
	return func(ctx context.Context, ev watcher.Event) {
		select {
		case r.signals <- signal{path: key, generation: generation, event: ev}:
		case <-ctx.Done():
		case <-r.ctx.Done():
		}
	}
}

// handleSignal verifies a raw event and publishes a change if real.
func (r *registry) handleSignal(sig signal) {
	e, ok := r.entries[sig.path]
	if !ok || e.generation != sig.generation {
		r.logger.Debug("dropping event for retired watch",
			"path", sig.path,
			"op", sig.event.Op)
		return
	}

	snap, err := r.detector.Detect(r.ctx, e.path)
	if err != nil {
		r.logger.Warn("change verification failed, keeping previous fingerprint",
			"path", e.path,
			"op", sig.event.Op,
			"error", err)
		return
	}

	if snap.Fingerprint == e.fingerprint {
		r.logger.Debug("event without content change",
			"path", e.path,
			"op", sig.event.Op)
		return
	}

	change := Change{
		Path:        e.path,
		Fingerprint: snap.Fingerprint,
		Previous:    e.fingerprint,
		ModTime:     snap.ModTime,
		DetectedAt:  r.config.Now(),
	}
	e.fingerprint = snap.Fingerprint
	e.modTime = snap.ModTime

	r.logger.Info("change verified",
		"path", e.path,
		"fingerprint", change.Fingerprint.Short(),
		"previous", change.Previous.Short(),
		"subscribers", len(e.subscribers))

	for _, l := range r.config.Listeners {
		l.OnChange(change)
	}
}

// retire stops e's native watch, waits for it, then removes e.
func (r *registry) retire(e *entry, reason EvictReason) error {
	var stopErr error
	if e.watch != nil {
		if err := e.watch.Stop(); err != nil {
			stopErr = fmt.Errorf("failed to stop watch for %s: %w", e.path, err)
		}
	}
	r.remove(e, reason)
	return stopErr
}

// retireAll stops watches concurrently; one failing stop never blocks the
// others.
func (r *registry) retireAll(entries []*entry, reason EvictReason) error {
	if len(entries) == 0 {
		return nil
	}

	errs := make([]error, len(entries))
	var g errgroup.Group
	g.SetLimit(r.config.StopConcurrency)
	for i, e := range entries {
		if e.watch == nil {
			continue
		}
		g.Go(func() error {
			if err := e.watch.Stop(); err != nil {
				errs[i] = fmt.Errorf("failed to stop watch for %s: %w", e.path, err)
			}
			return nil
		})
	}
	_ = g.Wait() // nolint:errcheck // errors are collected per entry

	for i, e := range entries {
		if errs[i] != nil {
			r.logger.Error("native watch stop failed",
				"path", e.path,
				"reason", reason,
				"error", errs[i])
		}
		r.remove(e, reason)
	}

	return errors.Join(errs...)
}

// remove deletes an already stopped entry and notifies listeners.
func (r *registry) remove(e *entry, reason EvictReason) {
	if current, ok := r.entries[e.path]; !ok || current != e {
		return
	}
	delete(r.entries, e.path)

	r.logger.Info("watch removed",
		"path", e.path,
		"reason", reason,
		"idle_for", r.config.Now().Sub(e.lastActivity),
		"watches", len(r.entries))

	for _, l := range r.config.Listeners {
		l.OnEvict(e.path, reason)
	}
}

func (r *registry) shutdown() {
	all := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		all = append(all, e)
	}
	r.closeErr = r.retireAll(all, EvictShutdown)
}

func normalize(path string) (string, error) {
	if path == "" || !filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return filepath.Clean(path), nil
}
