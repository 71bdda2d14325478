package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"shortlink/internal/analytics"
	"shortlink/internal/domain"
	"shortlink/internal/repository"
)

// Geolocator resolves an IP to a location. countryHint is the edge proxy's
// country header, used when the IP alone says nothing.
type Geolocator interface {
	Locate(ip, countryHint string) (domain.Location, error)
}

// Visit is the request metadata a click is built from
type Visit struct {
	IP          string
	UserAgent   string
	Referer     string
	SessionID   string
	CountryHint string
}

// column widths of click_events
const (
	maxIPLength        = 45
	maxTextLength      = 2048
	maxOSLength        = 50
	maxCityLength      = 100
	maxSessionIDLength = 64
)

// ClickRecorder turns visits into click events and appends them to the log
type ClickRecorder struct {
	clicks     repository.ClickRepository
	classifier *analytics.Classifier
	geo        Geolocator
	logger     *slog.Logger
}

// NewClickRecorder creates a recorder. geo may be nil.
func NewClickRecorder(clicks repository.ClickRepository, classifier *analytics.Classifier, geo Geolocator, logger *slog.Logger) *ClickRecorder {
	return &ClickRecorder{clicks: clicks, classifier: classifier, geo: geo, logger: logger}
}

// NewEvent classifies and geolocates v. It never fails: unknown attributes are
// left blank.
func (r *ClickRecorder) NewEvent(ctx context.Context, link *domain.Link, v Visit, now time.Time) *domain.ClickEvent {
	now = now.UTC()
	client := r.classifier.Classify(v.UserAgent)

	event := &domain.ClickEvent{
		LinkID:          link.ID,
		Day:             domain.DayOf(now),
		Hour:            now.Hour(),
		ClickedAt:       now,
		IPAddress:       clean(v.IP, maxIPLength),
		UserAgent:       clean(v.UserAgent, maxTextLength),
		Referer:         clean(v.Referer, maxTextLength),
		DeviceClass:     client.DeviceClass,
		Browser:         client.Browser,
		OperatingSystem: clean(client.OS, maxOSLength),
		IsBot:           client.IsBot,
		SessionID:       clean(v.SessionID, maxSessionIDLength),
	}

	if r.geo != nil {
		loc, err := r.geo.Locate(v.IP, v.CountryHint)
		if err != nil {
			r.logger.DebugContext(ctx, "geolocation failed", "ip", v.IP, "error", err)
		}
		event.CountryCode = clean(loc.CountryCode, 2)
		event.City = clean(loc.City, maxCityLength)
		event.Latitude = loc.Latitude
		event.Longitude = loc.Longitude
	}

	return event
}

// Record builds the event for v and appends it
func (r *ClickRecorder) Record(ctx context.Context, link *domain.Link, v Visit, now time.Time) (*domain.ClickEvent, error) {
	event := r.NewEvent(ctx, link, v, now)
	if err := r.clicks.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// clean drops invalid UTF-8 and cuts s to at most n bytes without splitting
// a rune. text columns reject invalid UTF-8 on postgres.
func clean(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
