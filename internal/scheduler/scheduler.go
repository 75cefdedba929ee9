package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Config holds scheduler configuration.
type Config struct {
	Interval        time.Duration // base tick cadence (default 1s)
	ReclaimInterval time.Duration // sweep expired leases
	PurgeInterval   time.Duration // delete terminal jobs past retention
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:        1 * time.Second,
		ReclaimInterval: 5 * time.Second,
		PurgeInterval:   1 * time.Hour,
	}
}

// Maintainer is the store surface the scheduler drives.
type Maintainer interface {
	ReclaimExpired(ctx context.Context) (int, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// Scheduler runs periodic maintenance tasks: reclaiming lapsed leases and
// purging terminal jobs past their retention horizon. Running one per process
// is fine; the sweeps use locked row selection, so overlapping runs partition
// the work rather than conflict.
type Scheduler struct {
	store       Maintainer
	config      Config
	lastReclaim time.Time
	lastPurge   time.Time
}

// New creates a new Scheduler.
func New(s Maintainer, config Config) *Scheduler {
	def := DefaultConfig()
	if config.Interval == 0 {
		config.Interval = def.Interval
	}
	if config.ReclaimInterval == 0 {
		config.ReclaimInterval = def.ReclaimInterval
	}
	if config.PurgeInterval == 0 {
		config.PurgeInterval = def.PurgeInterval
	}
	return &Scheduler{store: s, config: config}
}

// Run starts the scheduler loop. It blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler started", "interval", s.config.Interval)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx, false)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, force bool) {
	now := time.Now()

	if force || now.Sub(s.lastReclaim) >= s.config.ReclaimInterval {
		if n, err := s.store.ReclaimExpired(ctx); err != nil {
			slog.Error("reclaim expired leases", "error", err)
		} else if n > 0 {
			slog.Info("reclaimed expired leases", "count", n)
		}
		s.lastReclaim = now
	}
	if force || now.Sub(s.lastPurge) >= s.config.PurgeInterval {
		if n, err := s.store.PurgeExpired(ctx); err != nil {
			slog.Error("purge expired jobs", "error", err)
		} else if n > 0 {
			slog.Info("purged expired jobs", "count", n)
		}
		s.lastPurge = now
	}
}

// RunOnce executes a single scheduler tick. Useful for testing.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.tick(ctx, true)
}
