package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"shortlink/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ==================== HELPERS ====================

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	gdb, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	db := New(gdb)
	require.NoError(t, db.Migrate())
	t.Cleanup(db.Close)
	return db
}

var baseTime = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

func createLink(t *testing.T, repo interface {
	Create(context.Context, *domain.Link) error
}, code string, owner *string) *domain.Link {
	t.Helper()
	link := domain.NewLink(code, "https://example.com/"+code, owner, baseTime, domain.DefaultExpiryDays)
	require.NoError(t, repo.Create(context.Background(), link))
	return link
}

func strPtr(s string) *string { return &s }

func click(linkID, ip string, device domain.DeviceClass, country string, at time.Time) *domain.ClickEvent {
	return &domain.ClickEvent{
		LinkID:      linkID,
		Day:         domain.DayOf(at),
		Hour:        at.UTC().Hour(),
		ClickedAt:   at,
		IPAddress:   ip,
		DeviceClass: device,
		Browser:     domain.BrowserChrome,
		CountryCode: country,
	}
}

// ==================== LINKS ====================

func TestLinkRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLinkRepository(db)
	ctx := context.Background()

	link := createLink(t, repo, "abc123", strPtr("owner-1"))

	got, err := repo.GetByShortCode(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, link.ID, got.ID)
	assert.Equal(t, "https://example.com/abc123", got.OriginalURL)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, "owner-1", *got.OwnerID)
	assert.True(t, got.IsActive)
}

func TestLinkRepository_DuplicateCodeIsConflict(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLinkRepository(db)

	createLink(t, repo, "taken", nil)
	dup := domain.NewLink("taken", "https://other.example", nil, baseTime, 30)

	err := repo.Create(context.Background(), dup)

	assert.True(t, errors.Is(err, domain.ErrCodeConflict), "got %v", err)
}

func TestLinkRepository_GetUnknownIsNotFound(t *testing.T) {
	repo := NewLinkRepository(setupTestDB(t))

	_, err := repo.GetByShortCode(context.Background(), "nope")

	assert.True(t, errors.Is(err, domain.ErrLinkNotFound))
}

func TestLinkRepository_RecordVisit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLinkRepository(db)
	ctx := context.Background()
	link := createLink(t, repo, "visit1", nil)

	require.NoError(t, repo.RecordVisit(ctx, link.ID, baseTime.Add(time.Minute)))
	require.NoError(t, repo.RecordVisit(ctx, link.ID, baseTime.Add(2*time.Minute)))

	got, err := repo.GetByShortCode(ctx, "visit1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ClickCount)
	require.NotNil(t, got.LastClickedAt)
	assert.True(t, got.LastClickedAt.Equal(baseTime.Add(2*time.Minute)))
}

func TestLinkRepository_RecordVisitOnInactiveLink(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLinkRepository(db)
	ctx := context.Background()
	link := createLink(t, repo, "off", nil)
	require.NoError(t, repo.SetActive(ctx, link.ID, false, baseTime))

	err := repo.RecordVisit(ctx, link.ID, baseTime)

	assert.True(t, errors.Is(err, domain.ErrLinkInactive))
	got, _ := repo.GetByShortCode(ctx, "off")
	assert.Zero(t, got.ClickCount)
}

func TestLinkRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLinkRepository(db)
	ctx := context.Background()
	link := createLink(t, repo, "edit1", strPtr("owner-1"))

	link.OriginalURL = "https://changed.example"
	link.Title = "New title"
	link.IsPrivate = true
	link.PasswordHash = "hash"
	require.NoError(t, repo.Update(ctx, link))

	link.IsPrivate = false
	link.PasswordHash = ""
	require.NoError(t, repo.Update(ctx, link))

	got, err := repo.GetByShortCode(ctx, "edit1")
	require.NoError(t, err)
	assert.Equal(t, "https://changed.example", got.OriginalURL)
	assert.Equal(t, "New title", got.Title)
	assert.False(t, got.IsPrivate)
	assert.Empty(t, got.PasswordHash)
}

func TestLinkRepository_DeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	links := NewLinkRepository(db)
	clicks := NewClickRepository(db)
	rollups := NewRollupRepository(db)
	ctx := context.Background()

	keep := createLink(t, links, "keep", nil)
	gone := createLink(t, links, "gone", nil)
	for _, l := range []*domain.Link{keep, gone} {
		require.NoError(t, clicks.Create(ctx, click(l.ID, "1.1.1.1", domain.DeviceDesktop, "", baseTime)))
		_, err := rollups.MarkVisitor(ctx, l.ID, domain.DayOf(baseTime), "1.1.1.1")
		require.NoError(t, err)
		require.NoError(t, rollups.Increment(ctx, domain.RollupIncrement{LinkID: l.ID, Day: domain.DayOf(baseTime), DeviceClass: domain.DeviceDesktop, UniqueVisitors: 1}, baseTime))
	}

	require.NoError(t, links.Delete(ctx, gone.ID))

	var events, rows, visitors int64
	db.gorm.Model(&domain.ClickEvent{}).Where("link_id = ?", gone.ID).Count(&events)
	db.gorm.Model(&domain.DailyRollup{}).Where("link_id = ?", gone.ID).Count(&rows)
	db.gorm.Model(&domain.DailyVisitor{}).Where("link_id = ?", gone.ID).Count(&visitors)
	assert.Zero(t, events)
	assert.Zero(t, rows)
	assert.Zero(t, visitors)

	db.gorm.Model(&domain.ClickEvent{}).Where("link_id = ?", keep.ID).Count(&events)
	assert.Equal(t, int64(1), events)

	err := links.Delete(ctx, gone.ID)
	assert.True(t, errors.Is(err, domain.ErrLinkNotFound))
}

func TestLinkRepository_ListSummaryAndRecent(t *testing.T) {
	db := setupTestDB(t)
	links := NewLinkRepository(db)
	rollups := NewRollupRepository(db)
	ctx := context.Background()
	owner := strPtr("owner-1")

	a := createLink(t, links, "aaa", owner)
	createLink(t, links, "bbb", owner)
	expired := domain.NewLink("ccc", "https://example.com/c", owner, baseTime.Add(-40*24*time.Hour), 30)
	require.NoError(t, links.Create(ctx, expired))
	private := domain.NewLink("ddd", "https://example.com/d", nil, baseTime, 30)
	private.IsPrivate = true
	require.NoError(t, links.Create(ctx, private))

	require.NoError(t, links.RecordVisit(ctx, a.ID, baseTime))
	require.NoError(t, rollups.Increment(ctx, domain.RollupIncrement{LinkID: a.ID, Day: domain.DayOf(baseTime), DeviceClass: domain.DeviceMobile, UniqueVisitors: 1}, baseTime))

	page, total, err := links.ListByOwner(ctx, "owner-1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 2)

	summary, err := links.Summary(ctx, "owner-1", baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalLinks)
	assert.Equal(t, int64(1), summary.TotalClicks)
	assert.Equal(t, int64(2), summary.ActiveLinks)
	assert.Equal(t, int64(1), summary.ExpiredLinks)
	assert.Equal(t, int64(1), summary.TodayClicks)

	recent, err := links.RecentPublic(ctx, baseTime, 10)
	require.NoError(t, err)
	codes := make([]string, 0, len(recent))
	for _, l := range recent {
		codes = append(codes, l.ShortCode)
	}
	assert.ElementsMatch(t, []string{"aaa", "bbb"}, codes)
}

func TestLinkRepository_DeleteExpiredAndByOwner(t *testing.T) {
	db := setupTestDB(t)
	links := NewLinkRepository(db)
	ctx := context.Background()

	old := domain.NewLink("old", "https://example.com/old", nil, baseTime.Add(-31*24*time.Hour), 30)
	require.NoError(t, links.Create(ctx, old))
	createLink(t, links, "fresh", strPtr("owner-2"))
	createLink(t, links, "fresh2", strPtr("owner-2"))

	codes, err := links.DeleteExpired(ctx, baseTime, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, codes)

	codes, err = links.DeleteByOwner(ctx, "owner-2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fresh", "fresh2"}, codes)

	_, err = links.GetByShortCode(ctx, "fresh")
	assert.True(t, errors.Is(err, domain.ErrLinkNotFound))
}

// ==================== ROLLUPS ====================

func TestRollupRepository_MarkVisitor(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRollupRepository(db)
	ctx := context.Background()

	first, err := repo.MarkVisitor(ctx, "link-1", "2026-06-15", "1.2.3.4")
	require.NoError(t, err)
	again, err := repo.MarkVisitor(ctx, "link-1", "2026-06-15", "1.2.3.4")
	require.NoError(t, err)
	nextDay, err := repo.MarkVisitor(ctx, "link-1", "2026-06-16", "1.2.3.4")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, again)
	assert.True(t, nextDay)
}

func TestRollupRepository_IncrementUpserts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRollupRepository(db)
	ctx := context.Background()
	day := "2026-06-15"

	require.NoError(t, repo.Increment(ctx, domain.RollupIncrement{LinkID: "l1", Day: day, DeviceClass: domain.DeviceDesktop, UniqueVisitors: 1}, baseTime))
	require.NoError(t, repo.Increment(ctx, domain.RollupIncrement{LinkID: "l1", Day: day, DeviceClass: domain.DeviceMobile, UniqueVisitors: 0}, baseTime))
	require.NoError(t, repo.Increment(ctx, domain.RollupIncrement{LinkID: "l1", Day: day, DeviceClass: domain.DeviceClass("toaster"), UniqueVisitors: 1}, baseTime))

	rows, err := repo.ListRange(ctx, "l1", day, day)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].Clicks)
	assert.Equal(t, int64(2), rows[0].UniqueVisitors)
	assert.Equal(t, int64(1), rows[0].DesktopClicks)
	assert.Equal(t, int64(1), rows[0].MobileClicks)
	assert.Equal(t, int64(1), rows[0].OtherClicks)
}

func TestRollupRepository_PruneVisitors(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRollupRepository(db)
	ctx := context.Background()

	for _, day := range []string{"2026-06-10", "2026-06-14", "2026-06-15"} {
		_, err := repo.MarkVisitor(ctx, "l1", day, "9.9.9.9")
		require.NoError(t, err)
	}

	n, err := repo.PruneVisitors(ctx, "2026-06-14")

	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// ==================== CLICKS ====================

func TestClickRepository_DailyAggregatesAndOverwrite(t *testing.T) {
	db := setupTestDB(t)
	clicks := NewClickRepository(db)
	rollups := NewRollupRepository(db)
	ctx := context.Background()
	day := domain.DayOf(baseTime)

	events := []*domain.ClickEvent{
		click("l1", "1.1.1.1", domain.DeviceDesktop, "US", baseTime),
		click("l1", "1.1.1.1", domain.DeviceMobile, "US", baseTime.Add(time.Hour)),
		click("l1", "2.2.2.2", domain.DeviceTablet, "DE", baseTime.Add(2*time.Hour)),
		click("l2", "3.3.3.3", domain.DeviceBot, "", baseTime),
		click("l1", "4.4.4.4", domain.DeviceDesktop, "US", baseTime.Add(24*time.Hour)),
	}
	for _, e := range events {
		require.NoError(t, clicks.Create(ctx, e))
	}

	// Drifted incremental state that reconciliation must overwrite.
	require.NoError(t, rollups.Increment(ctx, domain.RollupIncrement{LinkID: "l1", Day: day, DeviceClass: domain.DeviceDesktop, UniqueVisitors: 1}, baseTime))

	agg, err := clicks.DailyAggregates(ctx, day)
	require.NoError(t, err)
	require.Len(t, agg, 2)
	require.NoError(t, rollups.Overwrite(ctx, agg))

	rows, err := rollups.ListRange(ctx, "l1", day, day)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].Clicks)
	assert.Equal(t, int64(2), rows[0].UniqueVisitors)
	assert.Equal(t, int64(1), rows[0].DesktopClicks)
	assert.Equal(t, int64(1), rows[0].MobileClicks)
	assert.Equal(t, int64(1), rows[0].TabletClicks)
	assert.Equal(t, map[string]int64{"US": 2, "DE": 1}, rows[0].TopCountries)

	rows, err = rollups.ListRange(ctx, "l2", day, day)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].BotClicks)
}

func TestClickRepository_BreakdownAndRecent(t *testing.T) {
	db := setupTestDB(t)
	clicks := NewClickRepository(db)
	ctx := context.Background()

	events := []*domain.ClickEvent{
		click("l1", "1.1.1.1", domain.DeviceDesktop, "US", baseTime),
		click("l1", "1.1.1.1", domain.DeviceMobile, "US", baseTime.Add(time.Minute)),
		click("l1", "2.2.2.2", domain.DeviceMobile, "", baseTime.Add(3*time.Hour)),
		click("l1", "5.5.5.5", domain.DeviceMobile, "FR", baseTime.Add(-10*24*time.Hour)),
	}
	events[0].OperatingSystem = "Windows"
	for _, e := range events {
		require.NoError(t, clicks.Create(ctx, e))
	}

	b, err := clicks.Breakdown(ctx, "l1", domain.DayOf(baseTime), domain.DayOf(baseTime))
	require.NoError(t, err)
	assert.Equal(t, int64(3), b.Total)
	assert.Equal(t, int64(2), b.UniqueVisitors)
	assert.Equal(t, map[string]int64{"desktop": 1, "mobile": 2}, b.Devices)
	assert.Equal(t, map[string]int64{"chrome": 3}, b.Browsers)
	assert.Equal(t, map[string]int64{"Windows": 1}, b.OperatingSystems)
	assert.Equal(t, map[string]int64{"US": 2}, b.Countries)
	assert.Equal(t, int64(2), b.Hourly[10])
	assert.Equal(t, int64(1), b.Hourly[13])
	assert.Equal(t, [7]int64{time.Monday: 3}, b.Weekday)

	wide, err := clicks.Breakdown(ctx, "l1", domain.DayOf(baseTime.Add(-10*24*time.Hour)), domain.DayOf(baseTime))
	require.NoError(t, err)
	assert.Equal(t, int64(4), wide.Total)
	assert.Equal(t, [7]int64{time.Monday: 3, time.Friday: 1}, wide.Weekday)

	recent, err := clicks.Recent(ctx, "l1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].ClickedAt.Equal(baseTime.Add(3*time.Hour)))
}

// ==================== TRANSACTIONS ====================

func TestWithinTx_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	links := NewLinkRepository(db)
	clicks := NewClickRepository(db)
	ctx := context.Background()
	link := createLink(t, links, "txlink", nil)
	boom := errors.New("boom")

	err := db.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, links.RecordVisit(ctx, link.ID, baseTime))
		require.NoError(t, clicks.Create(ctx, click(link.ID, "1.1.1.1", domain.DeviceDesktop, "", baseTime)))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	got, err := links.GetByShortCode(ctx, "txlink")
	require.NoError(t, err)
	assert.Zero(t, got.ClickCount)
	recent, err := clicks.Recent(ctx, link.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestWithinTx_NestedJoinsOuter(t *testing.T) {
	db := setupTestDB(t)
	links := NewLinkRepository(db)
	ctx := context.Background()
	link := createLink(t, links, "nested", nil)

	err := db.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, db.WithinTx(ctx, func(ctx context.Context) error {
			return links.RecordVisit(ctx, link.ID, baseTime)
		}))
		return errors.New("outer fails")
	})

	require.Error(t, err)
	got, _ := links.GetByShortCode(ctx, "nested")
	assert.Zero(t, got.ClickCount)
}

func TestDialectAndPing(t *testing.T) {
	db := setupTestDB(t)

	assert.Equal(t, "sqlite", db.Dialect())
	assert.NoError(t, db.Ping(context.Background()))
	assert.Nil(t, db.PoolStats())
}
