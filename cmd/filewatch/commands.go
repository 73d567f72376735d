package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/0xmhha/filewatch/pkg/config"
	"github.com/0xmhha/filewatch/pkg/detector"
	"github.com/0xmhha/filewatch/pkg/display"
	"github.com/0xmhha/filewatch/pkg/history"
	"github.com/0xmhha/filewatch/pkg/logger"
	"github.com/0xmhha/filewatch/pkg/monitor"
	"github.com/0xmhha/filewatch/pkg/notify"
	"github.com/0xmhha/filewatch/pkg/registry"
	"github.com/0xmhha/filewatch/pkg/resolver"
	"github.com/0xmhha/filewatch/pkg/server"
	"github.com/0xmhha/filewatch/pkg/watcher"
)

// touchTimeout bounds the activity refresh issued after a push delivery.
const touchTimeout = time.Second

// loadConfig loads configuration from configPath, or from the standard
// locations when it is empty.
func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.NewLoader(configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

func newDetector(cfg *config.Config, log logger.Logger) detector.Detector {
	return detector.New(detector.Config{
		MaxAttempts: cfg.Detector.MaxAttempts,
		RetryDelay:  cfg.Detector.RetryDelay,
		MaxFileSize: cfg.Detector.MaxFileSize,
	}, log)
}

func newFormatter(format string, full bool) (display.Formatter, error) {
	f, err := display.ParseFormat(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, format)
	}
	return display.New(display.Config{Format: f, FullFingerprints: full}), nil
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// serveCommand runs the HTTP and websocket server.
type serveCommand struct {
	configPath string
	addr       string
	root       string
	noHistory  bool
}

// Execute runs the serve command.
func (c *serveCommand) Execute() error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	c.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := resolver.New(resolver.Config{
		Root:      cfg.Resolver.Root,
		FileTypes: cfg.Resolver.FileTypes,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize resolver: %w", err)
	}

	var journal history.Journal
	if cfg.History.Enabled {
		journal, err = history.New(history.Config{
			DBPath:    cfg.History.DBPath,
			Retention: cfg.History.Retention,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize history: %w", err)
		}
		defer func() {
			if err := journal.Close(); err != nil {
				log.Error("failed to close history", "error", err)
			}
		}()
	}

	// Push deliveries count as activity; the registry is bound once built.
	var toucher deliveryToucher
	dispatcher := notify.NewDispatcher(notify.Config{OnDelivered: toucher.touch}, log)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			log.Error("failed to close dispatcher", "error", err)
		}
	}()

	listeners := []registry.Listener{dispatcher}
	if journal != nil {
		listeners = append(listeners, journal)
	}

	det := newDetector(cfg, log)
	reg, err := registry.New(registry.Config{
		Listeners:   listeners,
		EventBuffer: cfg.Registry.EventBuffer,
	}, det, watcher.NewFactory(watcher.Config{}, log), log)
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	// Runs before the dispatcher and journal are closed so their final
	// unwatched notifications are still accepted.
	defer func() {
		if err := reg.Close(); err != nil {
			log.Error("failed to close registry", "error", err)
		}
	}()
	toucher.bind(reg)

	reaper := registry.NewReaper(reg, registry.ReaperConfig{
		Interval:    cfg.Registry.ReapInterval,
		IdleTimeout: cfg.Registry.IdleTimeout,
	}, log)

	srv := server.New(server.Config{
		Addr:              cfg.Server.Addr,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	}, server.Deps{
		Registry:   reg,
		Detector:   det,
		Resolver:   res,
		Dispatcher: dispatcher,
		Journal:    journal,
	}, log)

	log.Info("filewatch starting",
		"version", version,
		"addr", cfg.Server.Addr,
		"root", cfg.Resolver.Root,
		"history", journal != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return reaper.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("filewatch stopped")
	return nil
}

func (c *serveCommand) applyOverrides(cfg *config.Config) {
	if c.addr != "" {
		cfg.Server.Addr = c.addr
	}
	if c.root != "" {
		cfg.Resolver.Root = c.root
	}
	if c.noHistory {
		cfg.History.Enabled = false
	}
}

// deliveryToucher refreshes a path's activity after a push delivery. The
// dispatcher must exist before the registry it listens to, so the registry
// is bound afterwards.
type deliveryToucher struct {
	reg atomic.Pointer[registry.Registry]
}

func (t *deliveryToucher) bind(reg registry.Registry) {
	t.reg.Store(&reg)
}

func (t *deliveryToucher) touch(path string) {
	reg := t.reg.Load()
	if reg == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()
	(*reg).Touch(ctx, path, "")
}

// hashCommand prints file checksums.
type hashCommand struct {
	files  []string
	format string
}

// Execute runs the hash command.
func (c *hashCommand) Execute() error {
	formatter, err := newFormatter(c.format, true)
	if err != nil {
		return err
	}

	det := detector.New(detector.Config{}, logger.Noop())
	ctx := context.Background()

	var failed []error
	for _, file := range c.files {
		snap, err := det.Detect(ctx, file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", file, err)
			failed = append(failed, err)
			continue
		}
		snap.Path = file
		if err := formatter.FormatSnapshot(os.Stdout, snap); err != nil {
			return err
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d files could not be hashed: %w", len(failed), len(c.files), errors.Join(failed...))
	}
	return nil
}

// tailCommand follows files and prints their verified changes.
type tailCommand struct {
	configPath string
	files      []string
	format     string
	full       bool
	retry      time.Duration
}

// Execute runs the tail command.
func (c *tailCommand) Execute() error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	formatter, err := newFormatter(c.format, c.full)
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(c.files))
	for _, file := range c.files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("invalid path %s: %w", file, err)
		}
		paths = append(paths, abs)
	}

	mon, err := monitor.New(monitor.Config{
		Paths:         paths,
		ClientID:      "tail",
		RetryInterval: c.retry,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	defer func() {
		if err := mon.Close(); err != nil {
			log.Error("failed to close monitor", "error", err)
		}
	}()

	reg, err := registry.New(registry.Config{
		Listeners:   []registry.Listener{mon},
		EventBuffer: cfg.Registry.EventBuffer,
	}, newDetector(cfg, log), watcher.NewFactory(watcher.Config{}, log), log)
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			log.Error("failed to close registry", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mon.Start(ctx, reg); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			stats := mon.Stats()
			log.Info("tail stopped",
				"changes", stats.Changes,
				"lost", stats.Lost,
				"dropped", stats.Dropped)
			return nil

		case update, ok := <-mon.Updates():
			if !ok {
				return nil
			}
			if update.Kind != monitor.UpdateChange {
				continue
			}
			if err := formatter.FormatChange(os.Stdout, update.Change); err != nil {
				return err
			}
		}
	}
}

// historyCommand prints journaled changes.
type historyCommand struct {
	configPath string
	files      []string
	limit      int
	format     string
	full       bool
}

// Execute runs the history command. Without files it lists the journaled
// paths.
func (c *historyCommand) Execute() error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}

	formatter, err := newFormatter(c.format, c.full)
	if err != nil {
		return err
	}

	journal, err := history.New(history.Config{
		DBPath:    cfg.History.DBPath,
		Retention: cfg.History.Retention,
	}, newLogger(cfg))
	if err != nil {
		return fmt.Errorf("failed to open history (is filewatch serve running?): %w", err)
	}
	defer journal.Close()

	if len(c.files) == 0 {
		paths, err := journal.Paths()
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}
		if len(paths) == 0 {
			fmt.Println("No history recorded")
			return nil
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	}

	for _, file := range c.files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("invalid path %s: %w", file, err)
		}

		records, err := journal.List(abs, c.limit)
		if err != nil {
			return fmt.Errorf("failed to read history for %s: %w", abs, err)
		}
		if err := formatter.FormatHistory(os.Stdout, abs, records); err != nil {
			return err
		}
	}
	return nil
}

// proposalsCommand lists proposal directories under the configured root.
type proposalsCommand struct {
	configPath string
	format     string
}

// Execute runs the proposals command.
func (c *proposalsCommand) Execute() error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}

	formatter, err := newFormatter(c.format, false)
	if err != nil {
		return err
	}

	res, err := resolver.New(resolver.Config{
		Root:      cfg.Resolver.Root,
		FileTypes: cfg.Resolver.FileTypes,
	}, newLogger(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize resolver: %w", err)
	}

	proposals, err := res.Proposals()
	if err != nil {
		return err
	}
	return formatter.FormatProposals(os.Stdout, proposals)
}
