package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shortlink/internal/domain"
	"shortlink/internal/metrics"
	"shortlink/internal/repository"
)

// Aggregator maintains the per-day rollups.
//
// ApplyClick keeps them current one click at a time; Reconcile rebuilds a
// finished day from the click log and is the source of truth when the two
// disagree.
type Aggregator struct {
	tx      repository.Transactor
	clicks  repository.ClickRepository
	rollups repository.RollupRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewAggregator creates a new aggregator
func NewAggregator(tx repository.Transactor, clicks repository.ClickRepository, rollups repository.RollupRepository, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		tx:      tx,
		clicks:  clicks,
		rollups: rollups,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ApplyClick folds event into its day's rollup. Call it with the ctx of the
// transaction that inserted event so both commit or neither does.
func (a *Aggregator) ApplyClick(ctx context.Context, event *domain.ClickEvent) error {
	isNew, err := a.rollups.MarkVisitor(ctx, event.LinkID, event.Day, event.IPAddress)
	if err != nil {
		return err
	}

	var unique int64
	if isNew {
		unique = 1
	}
	return a.rollups.Increment(ctx, domain.RollupIncrement{
		LinkID:         event.LinkID,
		Day:            event.Day,
		DeviceClass:    event.DeviceClass,
		UniqueVisitors: unique,
	}, event.ClickedAt)
}

// Reconcile recomputes every rollup of day from the click log and overwrites
// the stored counters. Running it twice gives the same result. day must be
// over in UTC.
func (a *Aggregator) Reconcile(ctx context.Context, day string) (written int, err error) {
	defer func() { metrics.RecordReconcile(err, written) }()

	start, err := time.Parse(domain.DayLayout, day)
	if err != nil {
		return 0, fmt.Errorf("%w: bad day %q", domain.ErrInvalidDateRange, day)
	}
	if a.now().Before(start.Add(24 * time.Hour)) {
		return 0, fmt.Errorf("%w: %s", domain.ErrDayNotElapsed, day)
	}

	err = a.tx.WithinSnapshotTx(ctx, func(ctx context.Context) error {
		rollups, err := a.clicks.DailyAggregates(ctx, day)
		if err != nil {
			return err
		}
		now := a.now()
		for _, r := range rollups {
			r.UpdatedAt = now
		}
		if err := a.rollups.Overwrite(ctx, rollups); err != nil {
			return err
		}
		written = len(rollups)
		return nil
	})
	if err != nil {
		written = 0
		return 0, fmt.Errorf("failed to reconcile %s: %w", day, err)
	}

	a.logger.InfoContext(ctx, "day reconciled", "day", day, "rollups", written)
	return written, nil
}
