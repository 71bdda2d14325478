package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shortlink/internal/domain"
	"shortlink/internal/repository"

	"gorm.io/gorm"
)

// linkRepository is the gorm implementation of repository.LinkRepository
type linkRepository struct {
	db *DB
}

// NewLinkRepository creates a new link repository
func NewLinkRepository(db *DB) repository.LinkRepository {
	return &linkRepository{db: db}
}

// Create inserts link. The unique index on short_code is the only collision
// check; a duplicate comes back as domain.ErrCodeConflict.
func (r *linkRepository) Create(ctx context.Context, link *domain.Link) (err error) {
	defer func(start time.Time) { observe("link_create", start, err) }(time.Now())

	if err = r.db.conn(ctx).Create(link).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrCodeConflict, link.ShortCode)
		}
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

// GetByShortCode retrieves a link by its short code
func (r *linkRepository) GetByShortCode(ctx context.Context, code string) (*domain.Link, error) {
	start := time.Now()

	var link domain.Link
	err := r.db.conn(ctx).Where("short_code = ?", code).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = fmt.Errorf("%w: %s", domain.ErrLinkNotFound, code)
		} else {
			err = fmt.Errorf("failed to get link: %w", err)
		}
		observe("link_get", start, err)
		return nil, err
	}

	observe("link_get", start, nil)
	return &link, nil
}

// Update writes the owner-editable columns, zero values included
func (r *linkRepository) Update(ctx context.Context, link *domain.Link) error {
	result := r.db.conn(ctx).Model(link).
		Select("original_url", "title", "description", "tags", "is_private", "password_hash", "expires_at", "updated_at").
		Updates(link)
	if result.Error != nil {
		return fmt.Errorf("failed to update link: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrLinkNotFound, link.ShortCode)
	}
	return nil
}

// SetActive flips the active flag
func (r *linkRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	result := r.db.conn(ctx).Model(&domain.Link{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": active, "updated_at": at})
	if result.Error != nil {
		return fmt.Errorf("failed to set active flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrLinkNotFound, id)
	}
	return nil
}

// RecordVisit increments the counter in the database, never in memory, so
// concurrent visits cannot lose updates
func (r *linkRepository) RecordVisit(ctx context.Context, id string, at time.Time) (err error) {
	defer func(start time.Time) { observe("link_record_visit", start, err) }(time.Now())

	result := r.db.conn(ctx).Model(&domain.Link{}).
		Where("id = ? AND is_active = ?", id, true).
		UpdateColumns(map[string]interface{}{
			"click_count":     gorm.Expr("click_count + ?", 1),
			"last_clicked_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record visit: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrLinkInactive, id)
	}
	return nil
}

// Delete removes the link and everything it owns
func (r *linkRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		n, err := r.deleteCascade(ctx, []string{id})
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", domain.ErrLinkNotFound, id)
		}
		return nil
	})
}

// ListByOwner returns one page of the owner's links, newest first, and the
// owner's total link count
func (r *linkRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Link, int64, error) {
	db := r.db.conn(ctx)

	var total int64
	if err := db.Model(&domain.Link{}).Where("owner_id = ?", ownerID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count links: %w", err)
	}

	var links []*domain.Link
	err := db.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&links).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list links: %w", err)
	}
	return links, total, nil
}

// Summary computes the owner dashboard numbers
func (r *linkRepository) Summary(ctx context.Context, ownerID string, now time.Time) (*domain.OwnerSummary, error) {
	db := r.db.conn(ctx)

	var summary domain.OwnerSummary
	err := db.Model(&domain.Link{}).
		Select(`COUNT(*) AS total_links,
			COALESCE(SUM(click_count), 0) AS total_clicks,
			COALESCE(SUM(CASE WHEN is_active = ? AND (expires_at IS NULL OR expires_at >= ?) THEN 1 ELSE 0 END), 0) AS active_links,
			COALESCE(SUM(CASE WHEN expires_at < ? THEN 1 ELSE 0 END), 0) AS expired_links`, true, now, now).
		Where("owner_id = ?", ownerID).
		Scan(&summary).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize links: %w", err)
	}

	err = db.Table("daily_rollups").
		Select("COALESCE(SUM(daily_rollups.clicks), 0)").
		Joins("JOIN links ON links.id = daily_rollups.link_id").
		Where("links.owner_id = ? AND daily_rollups.day = ?", ownerID, domain.DayOf(now)).
		Scan(&summary.TodayClicks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum today's clicks: %w", err)
	}

	return &summary, nil
}

// RecentPublic lists the newest public links that can still be visited
func (r *linkRepository) RecentPublic(ctx context.Context, now time.Time, limit int) ([]*domain.Link, error) {
	var links []*domain.Link
	err := r.db.conn(ctx).
		Where("is_private = ? AND is_active = ?", false, true).
		Where("expires_at IS NULL OR expires_at >= ?", now).
		Order("created_at DESC").
		Limit(limit).
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent links: %w", err)
	}
	return links, nil
}

// DeleteByOwner cascades every link owned by ownerID
func (r *linkRepository) DeleteByOwner(ctx context.Context, ownerID string) ([]string, error) {
	var codes []string
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		var links []domain.Link
		if err := r.db.conn(ctx).Select("id", "short_code").Where("owner_id = ?", ownerID).Find(&links).Error; err != nil {
			return fmt.Errorf("failed to find owner links: %w", err)
		}
		ids := make([]string, 0, len(links))
		for _, l := range links {
			ids = append(ids, l.ID)
			codes = append(codes, l.ShortCode)
		}
		_, err := r.deleteCascade(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// DeleteExpired cascades one batch of expired links
func (r *linkRepository) DeleteExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var codes []string
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		var links []domain.Link
		err := r.db.conn(ctx).Select("id", "short_code").
			Where("expires_at IS NOT NULL AND expires_at < ?", now).
			Order("expires_at ASC").
			Limit(limit).
			Find(&links).Error
		if err != nil {
			return fmt.Errorf("failed to find expired links: %w", err)
		}
		ids := make([]string, 0, len(links))
		for _, l := range links {
			ids = append(ids, l.ID)
			codes = append(codes, l.ShortCode)
		}
		_, err = r.deleteCascade(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// deleteCascade removes ids and their dependent rows. Must run inside a
// transaction so a failure leaves nothing half deleted.
func (r *linkRepository) deleteCascade(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	db := r.db.conn(ctx)

	for _, model := range []interface{}{&domain.DailyVisitor{}, &domain.DailyRollup{}, &domain.ClickEvent{}} {
		if err := db.Where("link_id IN ?", ids).Delete(model).Error; err != nil {
			return 0, fmt.Errorf("failed to delete link dependents: %w", err)
		}
	}

	result := db.Where("id IN ?", ids).Delete(&domain.Link{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete links: %w", result.Error)
	}
	return result.RowsAffected, nil
}
