package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"shortlink/internal/domain"
	"shortlink/internal/repository"
)

const (
	defaultStatsDays = 30
	maxStatsDays     = 366
	topCountries     = 10
	recentClicks     = 20
)

// StatsReport is the owner's analytics view of one link over a day range
type StatsReport struct {
	Link             *domain.Link          `json:"-"`
	From             string                `json:"from"`
	To               string                `json:"to"`
	TotalClicks      int64                 `json:"total_clicks"`
	RangeClicks      int64                 `json:"range_clicks"`
	UniqueVisitors   int64                 `json:"unique_visitors"`
	Daily            []*domain.DailyRollup `json:"daily"`
	Devices          []domain.Share        `json:"devices"`
	Browsers         []domain.Share        `json:"browsers"`
	OperatingSystems []domain.Share        `json:"operating_systems"`
	Countries        []domain.Share        `json:"countries"`
	Hourly           [24]int64             `json:"hourly"`
	Weekday          [7]int64              `json:"weekday"`
	Recent           []*domain.ClickEvent  `json:"recent"`
}

// StatsService builds link analytics for owners
type StatsService struct {
	links   repository.LinkRepository
	clicks  repository.ClickRepository
	rollups repository.RollupRepository
	now     func() time.Time
}

// NewStatsService creates a new stats service
func NewStatsService(links repository.LinkRepository, clicks repository.ClickRepository, rollups repository.RollupRepository) *StatsService {
	return &StatsService{
		links:   links,
		clicks:  clicks,
		rollups: rollups,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// LinkStats reports on code for requester. from and to are YYYY-MM-DD and
// inclusive; empty values default to the last 30 days ending today.
func (s *StatsService) LinkStats(ctx context.Context, code, requester, from, to string) (*StatsReport, error) {
	fromDay, toDay, err := s.dateRange(from, to)
	if err != nil {
		return nil, err
	}

	link, err := s.links.GetByShortCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !link.OwnedBy(requester) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotOwner, code)
	}

	daily, err := s.rollups.ListRange(ctx, link.ID, fromDay, toDay)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.clicks.Breakdown(ctx, link.ID, fromDay, toDay)
	if err != nil {
		return nil, err
	}
	recent, err := s.clicks.Recent(ctx, link.ID, recentClicks)
	if err != nil {
		return nil, err
	}

	total := breakdown.Total
	return &StatsReport{
		Link:             link,
		From:             fromDay,
		To:               toDay,
		TotalClicks:      link.ClickCount,
		RangeClicks:      total,
		UniqueVisitors:   breakdown.UniqueVisitors,
		Daily:            daily,
		Devices:          shares(breakdown.Devices, total, 0),
		Browsers:         shares(breakdown.Browsers, total, 0),
		OperatingSystems: shares(breakdown.OperatingSystems, total, 0),
		Countries:        shares(breakdown.Countries, total, topCountries),
		Hourly:           breakdown.Hourly,
		Weekday:          breakdown.Weekday,
		Recent:           recent,
	}, nil
}

func (s *StatsService) dateRange(from, to string) (string, string, error) {
	end := s.now().UTC().Truncate(24 * time.Hour)
	if to != "" {
		t, err := time.Parse(domain.DayLayout, to)
		if err != nil {
			return "", "", fmt.Errorf("%w: bad to date %q", domain.ErrInvalidDateRange, to)
		}
		end = t
	}

	start := end.AddDate(0, 0, -(defaultStatsDays - 1))
	if from != "" {
		t, err := time.Parse(domain.DayLayout, from)
		if err != nil {
			return "", "", fmt.Errorf("%w: bad from date %q", domain.ErrInvalidDateRange, from)
		}
		start = t
	}

	if start.After(end) {
		return "", "", fmt.Errorf("%w: from is after to", domain.ErrInvalidDateRange)
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > maxStatsDays {
		return "", "", fmt.Errorf("%w: range spans %d days, max %d", domain.ErrInvalidDateRange, days, maxStatsDays)
	}
	return start.Format(domain.DayLayout), end.Format(domain.DayLayout), nil
}

// shares sorts counts by count descending, label ascending, and attaches each
// one's percentage of total rounded to one decimal. limit 0 keeps all.
func shares(counts map[string]int64, total int64, limit int) []domain.Share {
	out := make([]domain.Share, 0, len(counts))
	for label, count := range counts {
		var pct float64
		if total > 0 {
			pct = math.Round(float64(count)*1000/float64(total)) / 10
		}
		out = append(out, domain.Share{Label: label, Count: count, Percent: pct})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
