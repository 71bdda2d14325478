// Package analytics turns raw request metadata into the client attributes
// stored on each click.
package analytics

import (
	"strings"

	"shortlink/internal/domain"

	"github.com/mileusna/useragent"
)

// Signals are the device hints a user agent parser extracts
type Signals struct {
	Mobile  bool
	Tablet  bool
	Desktop bool
	Bot     bool
	OS      string
}

// SignalSource extracts device signals from a user agent string
type SignalSource interface {
	Signals(userAgent string) Signals
}

// UASignals reads signals with github.com/mileusna/useragent
type UASignals struct{}

// Signals parses userAgent
func (UASignals) Signals(userAgent string) Signals {
	ua := useragent.Parse(userAgent)
	return Signals{
		Mobile:  ua.Mobile,
		Tablet:  ua.Tablet,
		Desktop: ua.Desktop,
		Bot:     ua.Bot,
		OS:      ua.OS,
	}
}

// browserRules are checked in order against the lowercased user agent.
// Chromium based browsers advertise "chrome" and so classify as chrome.
var browserRules = []struct {
	token   string
	browser domain.Browser
}{
	{"chrome", domain.BrowserChrome},
	{"firefox", domain.BrowserFirefox},
	{"safari", domain.BrowserSafari},
	{"edge", domain.BrowserEdge},
	{"opera", domain.BrowserOpera},
}

// Classifier maps user agents to domain.Client. It is safe for concurrent use.
type Classifier struct {
	source SignalSource
}

// NewClassifier returns a classifier using source, or UASignals when nil
func NewClassifier(source SignalSource) *Classifier {
	if source == nil {
		source = UASignals{}
	}
	return &Classifier{source: source}
}

// Classify derives device class, browser and OS from userAgent
func (c *Classifier) Classify(userAgent string) domain.Client {
	s := c.source.Signals(userAgent)
	return domain.Client{
		DeviceClass: deviceClass(s),
		Browser:     Browser(userAgent),
		OS:          s.OS,
		IsBot:       s.Bot,
	}
}

// deviceClass resolves overlapping signals; a crawler claiming a phone is a bot
func deviceClass(s Signals) domain.DeviceClass {
	switch {
	case s.Bot:
		return domain.DeviceBot
	case s.Mobile:
		return domain.DeviceMobile
	case s.Tablet:
		return domain.DeviceTablet
	case s.Desktop:
		return domain.DeviceDesktop
	default:
		return domain.DeviceOther
	}
}

// Browser returns the browser family of userAgent
func Browser(userAgent string) domain.Browser {
	ua := strings.ToLower(userAgent)
	hasChrome := strings.Contains(ua, "chrome")
	for _, rule := range browserRules {
		if rule.browser == domain.BrowserSafari && hasChrome {
			continue
		}
		if strings.Contains(ua, rule.token) {
			return rule.browser
		}
	}
	return domain.BrowserOther
}
