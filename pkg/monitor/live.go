package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/0xmhha/filewatch/pkg/logger"
	"github.com/0xmhha/filewatch/pkg/registry"
)

// liveMonitor implements the LiveMonitor interface.
type liveMonitor struct {
	config Config
	logger logger.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	stopChan chan struct{}
	done     chan struct{}

	// Update channel for consumers
	updates chan Update

	stats    Stats
	followed map[string]struct{}

	// paths whose watch was lost and must be registered again
	pending map[string]struct{}
}

// New creates a new live monitor.
//
// Parameters:
//   - cfg: Monitor configuration
//   - log: Logger instance
//
// Returns:
//   - Configured LiveMonitor
//   - ErrNoPaths if cfg.Paths is empty
func New(cfg Config, log logger.Logger) (LiveMonitor, error) {
	if len(cfg.Paths) == 0 {
		return nil, ErrNoPaths
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "monitor"
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = 64
	}

	followed := make(map[string]struct{}, len(cfg.Paths))
	for _, p := range cfg.Paths {
		followed[p] = struct{}{}
	}

	m := &liveMonitor{
		config:   cfg,
		logger:   logger.Component(log, "monitor"),
		updates:  make(chan Update, cfg.UpdateBuffer),
		followed: followed,
		pending:  make(map[string]struct{}),
		stats: Stats{
			Paths:     len(followed),
			PerPath:   make(map[string]int, len(followed)),
			StartedAt: time.Now(),
		},
	}

	m.logger.Debug("live monitor created",
		"paths", len(followed),
		"retry_interval", cfg.RetryInterval)

	return m, nil
}

// Start implements LiveMonitor.Start.
func (m *liveMonitor) Start(ctx context.Context, reg registry.Registry) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMonitorClosed
	}
	if m.running {
		m.mu.Unlock()
		return ErrMonitorRunning
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	for _, path := range m.config.Paths {
		if err := reg.Register(ctx, path, m.config.ClientID); err != nil {
			m.mu.Lock()
			m.running = false
			close(m.done)
			m.mu.Unlock()
			return fmt.Errorf("failed to follow %s: %w", path, err)
		}
	}

	go m.retryLoop(ctx, reg, m.stopChan, m.done)

	m.logger.Info("live monitor started", "paths", len(m.config.Paths))
	return nil
}

// Stop implements LiveMonitor.Stop.
func (m *liveMonitor) Stop() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMonitorClosed
	}
	if !m.running {
		m.mu.Unlock()
		return ErrMonitorNotRunning
	}
	done := m.stopLocked()
	m.mu.Unlock()

	<-done
	m.logger.Info("live monitor stopped")
	return nil
}

func (m *liveMonitor) stopLocked() <-chan struct{} {
	close(m.stopChan)
	m.running = false
	return m.done
}

// Updates implements LiveMonitor.Updates.
func (m *liveMonitor) Updates() <-chan Update {
	return m.updates
}

// Stats implements LiveMonitor.Stats.
func (m *liveMonitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	stats.PerPath = make(map[string]int, len(m.stats.PerPath))
	for k, v := range m.stats.PerPath {
		stats.PerPath[k] = v
	}
	return stats
}

// OnChange implements registry.Listener.
func (m *liveMonitor) OnChange(change registry.Change) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.followed[change.Path]; !ok || m.closed {
		return
	}

	m.stats.Changes++
	m.stats.PerPath[change.Path]++

	m.sendLocked(Update{
		Timestamp: change.DetectedAt,
		Kind:      UpdateChange,
		Change:    change,
	})
}

// OnEvict implements registry.Listener. Losing a followed path for any
// reason other than shutdown queues it for re-registration.
func (m *liveMonitor) OnEvict(path string, reason registry.EvictReason) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.followed[path]; !ok || m.closed || reason == registry.EvictShutdown {
		return
	}

	m.stats.Lost++
	m.pending[path] = struct{}{}

	m.logger.Warn("lost watch", "path", path, "reason", reason)

	m.sendLocked(Update{
		Timestamp: time.Now(),
		Kind:      UpdateLost,
		Path:      path,
		Reason:    reason,
	})
}

// sendLocked sends an update without blocking the registry goroutine.
func (m *liveMonitor) sendLocked(update Update) {
	select {
	case m.updates <- update:
	default:
		m.stats.Dropped++
		m.logger.Warn("updates channel full, dropping update", "kind", update.Kind)
	}
}

// retryLoop re-registers lost paths and paths whose watch died without
// being noticed yet. It runs outside the listener callbacks, which must not
// call back into the registry.
func (m *liveMonitor) retryLoop(ctx context.Context, reg registry.Registry, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.refresh(ctx, reg)
		}
	}
}

func (m *liveMonitor) refresh(ctx context.Context, reg registry.Registry) {
	for _, path := range m.config.Paths {
		m.mu.Lock()
		_, lost := m.pending[path]
		m.mu.Unlock()

		if !lost && reg.Status(ctx, path) {
			continue
		}

		// Register retires a dead watch before creating a new one.
		if err := reg.Register(ctx, path, m.config.ClientID); err != nil {
			m.logger.Debug("re-registration failed", "path", path, "error", err)
			continue
		}

		m.mu.Lock()
		delete(m.pending, path)
		m.mu.Unlock()

		m.logger.Info("watch re-established", "path", path)
	}
}

// Close implements LiveMonitor.Close.
func (m *liveMonitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}

	var done <-chan struct{}
	if m.running {
		done = m.stopLocked()
	}
	m.closed = true
	close(m.updates)
	m.mu.Unlock()

	if done != nil {
		<-done
	}

	m.logger.Info("live monitor closed")
	return nil
}
