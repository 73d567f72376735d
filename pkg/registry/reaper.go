package registry

import (
	"context"
	"time"

	"github.com/0xmhha/filewatch/pkg/logger"
)

// ReaperConfig contains idle reaper configuration.
type ReaperConfig struct {
	// Interval between sweeps. Default: 10s.
	Interval time.Duration

	// IdleTimeout is how long an entry may go without client activity.
	// Default: 10s.
	IdleTimeout time.Duration
}

// Reaper periodically retires entries whose clients have gone quiet.
//
// Poll clients are expected to treat a missing watch as normal and simply
// register again on their next call.
type Reaper struct {
	registry Registry
	config   ReaperConfig
	logger   logger.Logger
}

// NewReaper creates a Reaper for reg.
func NewReaper(reg Registry, cfg ReaperConfig, log logger.Logger) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Second
	}

	return &Reaper{
		registry: reg,
		config:   cfg,
		logger:   logger.Component(log, "reaper"),
	}
}

// Run sweeps every Interval until ctx is cancelled.
func (rp *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(rp.config.Interval)
	defer ticker.Stop()

	rp.logger.Info("idle reaper started",
		"interval", rp.config.Interval,
		"idle_timeout", rp.config.IdleTimeout)

	for {
		select {
		case <-ctx.Done():
			rp.logger.Info("idle reaper stopped")
			return nil
		case <-ticker.C:
			rp.Sweep(ctx)
		}
	}
}

// Sweep performs one reclamation pass and returns the number of entries
// retired.
func (rp *Reaper) Sweep(ctx context.Context) int {
	count, err := rp.registry.Reap(ctx, rp.config.IdleTimeout)
	if err != nil {
		rp.logger.Error("sweep finished with stop failures",
			"retired", count,
			"error", err)
		return count
	}

	if count > 0 {
		rp.logger.Info("idle watches retired", "retired", count)
	}
	return count
}
