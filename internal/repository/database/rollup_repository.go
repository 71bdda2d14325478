package database

import (
	"context"
	"fmt"
	"time"

	"shortlink/internal/domain"
	"shortlink/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// rollupRepository is the gorm implementation of repository.RollupRepository
type rollupRepository struct {
	db *DB
}

// NewRollupRepository creates a new rollup repository
func NewRollupRepository(db *DB) repository.RollupRepository {
	return &rollupRepository{db: db}
}

var rollupKey = []clause.Column{{Name: "link_id"}, {Name: "day"}}

// deviceColumns maps a device class to its rollup counter column.
var deviceColumns = map[domain.DeviceClass]string{
	domain.DeviceDesktop: "desktop_clicks",
	domain.DeviceMobile:  "mobile_clicks",
	domain.DeviceTablet:  "tablet_clicks",
	domain.DeviceBot:     "bot_clicks",
	domain.DeviceOther:   "other_clicks",
}

// MarkVisitor inserts into the seen set; a conflicting row means the IP was
// already counted for that day
func (r *rollupRepository) MarkVisitor(ctx context.Context, linkID, day, ip string) (bool, error) {
	result := r.db.conn(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.DailyVisitor{LinkID: linkID, Day: day, IPAddress: ip})
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark visitor: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Increment is a single INSERT ... ON CONFLICT (link_id, day) DO UPDATE, so
// racing clicks on the same day serialize on the row instead of overwriting
// each other
func (r *rollupRepository) Increment(ctx context.Context, inc domain.RollupIncrement, at time.Time) (err error) {
	defer func(start time.Time) { observe("rollup_increment", start, err) }(time.Now())

	column, ok := deviceColumns[inc.DeviceClass]
	if !ok {
		column = deviceColumns[domain.DeviceOther]
	}

	row := &domain.DailyRollup{
		LinkID:         inc.LinkID,
		Day:            inc.Day,
		Clicks:         1,
		UniqueVisitors: inc.UniqueVisitors,
		UpdatedAt:      at,
	}
	switch column {
	case "desktop_clicks":
		row.DesktopClicks = 1
	case "mobile_clicks":
		row.MobileClicks = 1
	case "tablet_clicks":
		row.TabletClicks = 1
	case "bot_clicks":
		row.BotClicks = 1
	default:
		row.OtherClicks = 1
	}

	err = r.db.conn(ctx).
		Clauses(clause.OnConflict{
			Columns: rollupKey,
			DoUpdates: clause.Assignments(map[string]interface{}{
				"clicks":          gorm.Expr("daily_rollups.clicks + ?", 1),
				"unique_visitors": gorm.Expr("daily_rollups.unique_visitors + ?", inc.UniqueVisitors),
				column:            gorm.Expr("daily_rollups."+column+" + ?", 1),
				"updated_at":      at,
			}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to increment rollup: %w", err)
	}
	return nil
}

// Overwrite replaces every counter of the given rollups
func (r *rollupRepository) Overwrite(ctx context.Context, rollups []*domain.DailyRollup) error {
	if len(rollups) == 0 {
		return nil
	}

	err := r.db.conn(ctx).
		Clauses(clause.OnConflict{
			Columns: rollupKey,
			DoUpdates: clause.AssignmentColumns([]string{
				"clicks", "unique_visitors",
				"desktop_clicks", "mobile_clicks", "tablet_clicks", "bot_clicks", "other_clicks",
				"top_countries", "updated_at",
			}),
		}).
		CreateInBatches(rollups, 200).Error
	if err != nil {
		return fmt.Errorf("failed to overwrite rollups: %w", err)
	}
	return nil
}

// ListRange returns rollups with fromDay <= day <= toDay in day order
func (r *rollupRepository) ListRange(ctx context.Context, linkID, fromDay, toDay string) ([]*domain.DailyRollup, error) {
	var rollups []*domain.DailyRollup
	err := r.db.conn(ctx).
		Where("link_id = ? AND day >= ? AND day <= ?", linkID, fromDay, toDay).
		Order("day ASC").
		Find(&rollups).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rollups: %w", err)
	}
	return rollups, nil
}

// PruneVisitors drops seen-set rows older than beforeDay
func (r *rollupRepository) PruneVisitors(ctx context.Context, beforeDay string) (int64, error) {
	result := r.db.conn(ctx).Where("day < ?", beforeDay).Delete(&domain.DailyVisitor{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune visitors: %w", result.Error)
	}
	return result.RowsAffected, nil
}
