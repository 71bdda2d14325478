// Package jobs runs the periodic maintenance work: reconciling finished days
// into rollups and sweeping expired links.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"shortlink/internal/config"
	"shortlink/internal/domain"
)

// Reconciler rebuilds one finished day of rollups
type Reconciler interface {
	Reconcile(ctx context.Context, day string) (int, error)
}

// Sweeper deletes expired links
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// VisitorPruner drops old entries of the unique visitor set
type VisitorPruner interface {
	PruneVisitors(ctx context.Context, beforeDay string) (int64, error)
}

// Scheduler drives the reconcile and sweep loops
type Scheduler struct {
	reconciler Reconciler
	sweeper    Sweeper
	pruner     VisitorPruner
	cfg        config.JobsConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewScheduler creates a scheduler; zero intervals fall back to an hour for
// reconcile and six hours for sweep
func NewScheduler(reconciler Reconciler, sweeper Sweeper, pruner VisitorPruner, cfg config.JobsConfig, logger *slog.Logger) *Scheduler {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 6 * time.Hour
	}
	if cfg.VisitorRetentionDay < 1 {
		cfg.VisitorRetentionDay = 2
	}
	return &Scheduler{
		reconciler: reconciler,
		sweeper:    sweeper,
		pruner:     pruner,
		cfg:        cfg,
		logger:     logger.With("component", "jobs"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start runs both loops in the background. The returned function stops them
// and waits for the current run to finish.
func (s *Scheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Backfill(ctx)
		s.loop(ctx, s.cfg.ReconcileInterval, func(ctx context.Context) { s.ReconcileYesterday(ctx) })
	}()
	go func() {
		defer wg.Done()
		s.Sweep(ctx)
		s.loop(ctx, s.cfg.SweepInterval, s.Sweep)
	}()

	s.logger.Info("scheduler started",
		"reconcile_interval", s.cfg.ReconcileInterval.String(),
		"sweep_interval", s.cfg.SweepInterval.String())

	return func() {
		cancel()
		wg.Wait()
		s.logger.Info("scheduler stopped")
	}
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, run func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

// Backfill reconciles the last ReconcileBackfill finished days, oldest first
func (s *Scheduler) Backfill(ctx context.Context) {
	today := s.now().Truncate(24 * time.Hour)
	for i := max(1, s.cfg.ReconcileBackfill); i >= 1; i-- {
		if ctx.Err() != nil {
			return
		}
		s.reconcile(ctx, domain.DayOf(today.AddDate(0, 0, -i)))
	}
}

// ReconcileYesterday rebuilds the rollups of the last finished day
func (s *Scheduler) ReconcileYesterday(ctx context.Context) {
	s.reconcile(ctx, domain.DayOf(s.now().AddDate(0, 0, -1)))
}

func (s *Scheduler) reconcile(ctx context.Context, day string) {
	n, err := s.reconciler.Reconcile(ctx, day)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("reconcile failed", "day", day, "error", err)
		return
	}
	s.logger.Debug("reconcile done", "day", day, "rollups", n)
}

// Sweep deletes expired links and prunes the visitor set
func (s *Scheduler) Sweep(ctx context.Context) {
	now := s.now()

	n, err := s.sweeper.SweepExpired(ctx, now)
	if err != nil {
		s.logger.Error("expired link sweep failed", "error", err)
	} else if n > 0 {
		s.logger.Info("expired links swept", "count", n)
	}

	cutoff := domain.DayOf(now.AddDate(0, 0, -s.cfg.VisitorRetentionDay))
	pruned, err := s.pruner.PruneVisitors(ctx, cutoff)
	if err != nil {
		s.logger.Error("visitor prune failed", "error", err)
		return
	}
	s.logger.Debug("visitors pruned", "before", cutoff, "rows", pruned)
}
