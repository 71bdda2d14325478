package domain

import "time"

// DayLayout is the calendar-date format used for rollup and event day keys.
const DayLayout = "2006-01-02"

// DeviceClass is the coarse client category derived from the user agent.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
	DeviceBot     DeviceClass = "bot"
	DeviceOther   DeviceClass = "other"
)

// Browser is the browser family derived from the user agent.
type Browser string

const (
	BrowserChrome  Browser = "chrome"
	BrowserFirefox Browser = "firefox"
	BrowserSafari  Browser = "safari"
	BrowserEdge    Browser = "edge"
	BrowserOpera   Browser = "opera"
	BrowserOther   Browser = "other"
)

// ClickEvent is one accepted visit. Rows are append-only and go away only
// when their link is deleted.
type ClickEvent struct {
	ID              int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	LinkID          string      `gorm:"index:idx_click_link_day,priority:1;size:36;not null" json:"link_id"`
	Day             string      `gorm:"index:idx_click_link_day,priority:2;index:idx_click_day;size:10;not null" json:"day"`
	Hour            int         `gorm:"not null;default:0" json:"hour"`
	ClickedAt       time.Time   `gorm:"not null" json:"clicked_at"`
	IPAddress       string      `gorm:"size:45" json:"ip_address"`
	UserAgent       string      `gorm:"type:text" json:"user_agent"`
	Referer         string      `gorm:"type:text" json:"referer"`
	DeviceClass     DeviceClass `gorm:"size:10;not null" json:"device_class"`
	Browser         Browser     `gorm:"size:10;not null" json:"browser"`
	OperatingSystem string      `gorm:"size:50" json:"operating_system"`
	IsBot           bool        `gorm:"not null;default:false" json:"is_bot"`
	CountryCode     string      `gorm:"size:2" json:"country_code,omitempty"`
	City            string      `gorm:"size:100" json:"city,omitempty"`
	Latitude        *float64    `json:"latitude,omitempty"`
	Longitude       *float64    `json:"longitude,omitempty"`
	SessionID       string      `gorm:"size:64" json:"session_id"`
}

// TableName pins the table name.
func (ClickEvent) TableName() string { return "click_events" }

// DayOf returns the UTC calendar day key for t.
func DayOf(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// Location is what the geolocation resolver knows about an IP.
// Zero values mean unknown.
type Location struct {
	CountryCode string
	City        string
	Latitude    *float64
	Longitude   *float64
}

// Client is the classification of a user agent string.
type Client struct {
	DeviceClass DeviceClass
	Browser     Browser
	OS          string
	IsBot       bool
}
