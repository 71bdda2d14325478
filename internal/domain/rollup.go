package domain

import (
	"sort"
	"time"
)

// TopCountriesLimit caps the country summary stored on a rollup.
const TopCountriesLimit = 5

// DailyRollup aggregates a link's clicks for one UTC day.
// (LinkID, Day) is unique.
type DailyRollup struct {
	ID             int64            `gorm:"primaryKey;autoIncrement" json:"-"`
	LinkID         string           `gorm:"uniqueIndex:idx_rollup_link_day,priority:1;size:36;not null" json:"link_id"`
	Day            string           `gorm:"uniqueIndex:idx_rollup_link_day,priority:2;size:10;not null" json:"day"`
	Clicks         int64            `gorm:"not null;default:0" json:"clicks"`
	UniqueVisitors int64            `gorm:"not null;default:0" json:"unique_visitors"`
	DesktopClicks  int64            `gorm:"not null;default:0" json:"desktop_clicks"`
	MobileClicks   int64            `gorm:"not null;default:0" json:"mobile_clicks"`
	TabletClicks   int64            `gorm:"not null;default:0" json:"tablet_clicks"`
	BotClicks      int64            `gorm:"not null;default:0" json:"bot_clicks"`
	OtherClicks    int64            `gorm:"not null;default:0" json:"other_clicks"`
	TopCountries   map[string]int64 `gorm:"serializer:json;type:text" json:"top_countries,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// TableName pins the table name.
func (DailyRollup) TableName() string { return "daily_rollups" }

// DailyVisitor is one entry of the day-scoped IP-seen set that backs the
// incremental unique visitor count.
type DailyVisitor struct {
	LinkID    string `gorm:"primaryKey;size:36"`
	Day       string `gorm:"primaryKey;size:10;index"`
	IPAddress string `gorm:"primaryKey;size:45"`
}

// TableName pins the table name.
func (DailyVisitor) TableName() string { return "daily_visitors" }

// RollupIncrement is the delta one click applies to its day's rollup.
type RollupIncrement struct {
	LinkID         string
	Day            string
	DeviceClass    DeviceClass
	UniqueVisitors int64
}

// TopCountries keeps the n largest entries of counts. Ties break by country
// code so the result is stable across runs.
func TopCountries(counts map[string]int64, n int) map[string]int64 {
	if len(counts) <= n {
		out := make(map[string]int64, len(counts))
		for k, v := range counts {
			out[k] = v
		}
		return out
	}

	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		if counts[codes[i]] != counts[codes[j]] {
			return counts[codes[i]] > counts[codes[j]]
		}
		return codes[i] < codes[j]
	})

	out := make(map[string]int64, n)
	for _, code := range codes[:n] {
		out[code] = counts[code]
	}
	return out
}
