package repository

import (
	"context"
	"time"

	"shortlink/internal/domain"
)

// Transactor runs fn inside one database transaction. Repositories called with
// the ctx handed to fn join that transaction; nested calls reuse it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	// WithinSnapshotTx is WithinTx with a repeatable-read snapshot where the
	// store supports one.
	WithinSnapshotTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LinkRepository stores links.
//
// Uniqueness of short codes is the storage layer's job: Create reports a taken
// code as domain.ErrCodeConflict, there is no separate existence check.
type LinkRepository interface {
	Create(ctx context.Context, link *domain.Link) error

	// GetByShortCode returns domain.ErrLinkNotFound for unknown codes. It does
	// not look at the active flag or expiry.
	GetByShortCode(ctx context.Context, code string) (*domain.Link, error)

	// Update persists the owner-editable fields of link.
	Update(ctx context.Context, link *domain.Link) error

	SetActive(ctx context.Context, id string, active bool, at time.Time) error

	// RecordVisit bumps click_count and last_clicked_at in one statement.
	// It fails with domain.ErrLinkInactive when the link is gone or inactive.
	RecordVisit(ctx context.Context, id string, at time.Time) error

	// Delete removes the link together with its events, rollups and visitors.
	Delete(ctx context.Context, id string) error

	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Link, int64, error)
	Summary(ctx context.Context, ownerID string, now time.Time) (*domain.OwnerSummary, error)
	RecentPublic(ctx context.Context, now time.Time, limit int) ([]*domain.Link, error)

	// DeleteByOwner cascades every link of ownerID and returns their codes.
	DeleteByOwner(ctx context.Context, ownerID string) ([]string, error)

	// DeleteExpired cascades up to limit links whose expiry is before now and
	// returns their codes.
	DeleteExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// ClickRepository stores the append-only click log.
type ClickRepository interface {
	Create(ctx context.Context, click *domain.ClickEvent) error

	Recent(ctx context.Context, linkID string, limit int) ([]*domain.ClickEvent, error)

	// Breakdown aggregates raw events for linkID with fromDay <= day <= toDay.
	Breakdown(ctx context.Context, linkID, fromDay, toDay string) (*domain.Breakdown, error)

	// DailyAggregates recomputes one rollup per link with events on day.
	DailyAggregates(ctx context.Context, day string) ([]*domain.DailyRollup, error)
}

// RollupRepository stores daily rollups and the visitor set behind them.
type RollupRepository interface {
	// MarkVisitor adds ip to the (link, day) seen set and reports whether it
	// was new.
	MarkVisitor(ctx context.Context, linkID, day, ip string) (bool, error)

	// Increment applies one click with an insert-or-increment upsert.
	Increment(ctx context.Context, inc domain.RollupIncrement, at time.Time) error

	// Overwrite upserts rollups replacing every counter.
	Overwrite(ctx context.Context, rollups []*domain.DailyRollup) error

	ListRange(ctx context.Context, linkID, fromDay, toDay string) ([]*domain.DailyRollup, error)

	// PruneVisitors drops seen-set rows for days before beforeDay.
	PruneVisitors(ctx context.Context, beforeDay string) (int64, error)
}
