package database

import (
	"context"
	"fmt"
	"time"

	"shortlink/internal/domain"
	"shortlink/internal/repository"

	"gorm.io/gorm"
)

// clickRepository is the gorm implementation for the click log
type clickRepository struct {
	db *DB
}

// NewClickRepository creates a new click repository
func NewClickRepository(db *DB) repository.ClickRepository {
	return &clickRepository{db: db}
}

// Create appends a click event
func (r *clickRepository) Create(ctx context.Context, click *domain.ClickEvent) (err error) {
	defer func(start time.Time) { observe("click_create", start, err) }(time.Now())

	if err = r.db.conn(ctx).Create(click).Error; err != nil {
		return fmt.Errorf("failed to create click event: %w", err)
	}
	return nil
}

// Recent returns the newest events of a link
func (r *clickRepository) Recent(ctx context.Context, linkID string, limit int) ([]*domain.ClickEvent, error) {
	var clicks []*domain.ClickEvent
	err := r.db.conn(ctx).
		Where("link_id = ?", linkID).
		Order("clicked_at DESC, id DESC").
		Limit(limit).
		Find(&clicks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get recent clicks: %w", err)
	}
	return clicks, nil
}

type clickTotals struct {
	Total          int64
	UniqueVisitors int64
}

type labelCount struct {
	Label string
	Count int64
}

type dayCount struct {
	Day   string
	Count int64
}

type hourCount struct {
	Hour  int
	Count int64
}

// Breakdown aggregates raw events over [fromDay, toDay]
func (r *clickRepository) Breakdown(ctx context.Context, linkID, fromDay, toDay string) (*domain.Breakdown, error) {
	start := time.Now()
	db := r.db.conn(ctx)
	scope := db.Model(&domain.ClickEvent{}).
		Where("link_id = ? AND day >= ? AND day <= ?", linkID, fromDay, toDay).
		Session(&gorm.Session{})

	var totals clickTotals
	if err := scope.
		Select("COUNT(*) AS total, COUNT(DISTINCT ip_address) AS unique_visitors").
		Scan(&totals).Error; err != nil {
		observe("click_breakdown", start, err)
		return nil, fmt.Errorf("failed to count clicks: %w", err)
	}

	b := &domain.Breakdown{Total: totals.Total, UniqueVisitors: totals.UniqueVisitors}

	var err error
	if b.Devices, err = r.countBy(scope, "device_class", false); err != nil {
		return nil, err
	}
	if b.Browsers, err = r.countBy(scope, "browser", false); err != nil {
		return nil, err
	}
	if b.OperatingSystems, err = r.countBy(scope, "operating_system", true); err != nil {
		return nil, err
	}
	if b.Countries, err = r.countBy(scope, "country_code", true); err != nil {
		return nil, err
	}

	var hours []hourCount
	if err := scope.
		Select("hour, COUNT(*) AS count").
		Group("hour").
		Scan(&hours).Error; err != nil {
		return nil, fmt.Errorf("failed to group clicks by hour: %w", err)
	}
	for _, h := range hours {
		if h.Hour >= 0 && h.Hour < 24 {
			b.Hourly[h.Hour] = h.Count
		}
	}

	// day is the UTC calendar day, so grouping by it gives the weekday on
	// every dialect
	var days []dayCount
	if err := scope.
		Select("day, COUNT(*) AS count").
		Group("day").
		Scan(&days).Error; err != nil {
		return nil, fmt.Errorf("failed to group clicks by day: %w", err)
	}
	for _, d := range days {
		t, err := time.Parse(domain.DayLayout, d.Day)
		if err != nil {
			continue
		}
		b.Weekday[t.Weekday()] += d.Count
	}

	observe("click_breakdown", start, nil)
	return b, nil
}

// countBy groups the scoped events by column. skipBlank leaves out events
// where the column is empty.
func (r *clickRepository) countBy(scope *gorm.DB, column string, skipBlank bool) (map[string]int64, error) {
	q := scope.Select(column + " AS label, COUNT(*) AS count")
	if skipBlank {
		q = q.Where(column + " <> ''")
	}

	var rows []labelCount
	if err := q.Group(column).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to group clicks by %s: %w", column, err)
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Label] = row.Count
	}
	return out, nil
}

type dailyAggregate struct {
	LinkID         string
	Clicks         int64
	UniqueVisitors int64
	DesktopClicks  int64
	MobileClicks   int64
	TabletClicks   int64
	BotClicks      int64
	OtherClicks    int64
}

type countryAggregate struct {
	LinkID      string
	CountryCode string
	Count       int64
}

// DailyAggregates recomputes every rollup of day straight from the event log
func (r *clickRepository) DailyAggregates(ctx context.Context, day string) ([]*domain.DailyRollup, error) {
	start := time.Now()
	db := r.db.conn(ctx)

	var rows []dailyAggregate
	err := db.Model(&domain.ClickEvent{}).
		Select(`link_id,
			COUNT(*) AS clicks,
			COUNT(DISTINCT ip_address) AS unique_visitors,
			SUM(CASE WHEN device_class = ? THEN 1 ELSE 0 END) AS desktop_clicks,
			SUM(CASE WHEN device_class = ? THEN 1 ELSE 0 END) AS mobile_clicks,
			SUM(CASE WHEN device_class = ? THEN 1 ELSE 0 END) AS tablet_clicks,
			SUM(CASE WHEN device_class = ? THEN 1 ELSE 0 END) AS bot_clicks,
			SUM(CASE WHEN device_class = ? THEN 1 ELSE 0 END) AS other_clicks`,
			domain.DeviceDesktop, domain.DeviceMobile, domain.DeviceTablet, domain.DeviceBot, domain.DeviceOther).
		Where("day = ?", day).
		Group("link_id").
		Scan(&rows).Error
	if err != nil {
		observe("click_daily_aggregates", start, err)
		return nil, fmt.Errorf("failed to aggregate clicks for %s: %w", day, err)
	}

	var countries []countryAggregate
	err = db.Model(&domain.ClickEvent{}).
		Select("link_id, country_code, COUNT(*) AS count").
		Where("day = ? AND country_code <> ''", day).
		Group("link_id, country_code").
		Scan(&countries).Error
	if err != nil {
		observe("click_daily_aggregates", start, err)
		return nil, fmt.Errorf("failed to aggregate countries for %s: %w", day, err)
	}

	perLink := make(map[string]map[string]int64)
	for _, c := range countries {
		if perLink[c.LinkID] == nil {
			perLink[c.LinkID] = make(map[string]int64)
		}
		perLink[c.LinkID][c.CountryCode] = c.Count
	}

	rollups := make([]*domain.DailyRollup, 0, len(rows))
	for _, row := range rows {
		rollups = append(rollups, &domain.DailyRollup{
			LinkID:         row.LinkID,
			Day:            day,
			Clicks:         row.Clicks,
			UniqueVisitors: row.UniqueVisitors,
			DesktopClicks:  row.DesktopClicks,
			MobileClicks:   row.MobileClicks,
			TabletClicks:   row.TabletClicks,
			BotClicks:      row.BotClicks,
			OtherClicks:    row.OtherClicks,
			TopCountries:   domain.TopCountries(perLink[row.LinkID], domain.TopCountriesLimit),
		})
	}

	observe("click_daily_aggregates", start, nil)
	return rollups, nil
}
