package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultExpiryDays applies when a link is created without an explicit expiry.
	DefaultExpiryDays = 30
	// MaxExpiryDays is the longest expiry a caller may request.
	MaxExpiryDays = 365
	// MaxShortCodeLength bounds both custom and generated codes.
	MaxShortCodeLength = 20
)

// Link maps a short code to its destination and carries the owner-facing
// metadata. The struct doubles as the gorm model for the `links` table.
type Link struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ShortCode     string     `gorm:"uniqueIndex;size:20;not null" json:"short_code"`
	OriginalURL   string     `gorm:"type:text;not null" json:"original_url"`
	Title         string     `gorm:"size:200" json:"title,omitempty"`
	Description   string     `gorm:"type:text" json:"description,omitempty"`
	Tags          string     `gorm:"size:500" json:"tags,omitempty"`
	OwnerID       *string    `gorm:"index;size:64" json:"owner_id,omitempty"` // nil = anonymous
	IsActive      bool       `gorm:"not null;default:true" json:"is_active"`
	IsPrivate     bool       `gorm:"not null;default:false" json:"is_private"`
	PasswordHash  string     `gorm:"size:100" json:"password_hash,omitempty"`
	ClickCount    int64      `gorm:"not null;default:0" json:"click_count"`
	LastClickedAt *time.Time `json:"last_clicked_at,omitempty"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ExpiresAt     *time.Time `gorm:"index" json:"expires_at,omitempty"`
}

// TableName pins the table name regardless of gorm's naming strategy.
func (Link) TableName() string { return "links" }

// NewLink builds an active link that expires after expiryDays.
func NewLink(shortCode, originalURL string, ownerID *string, now time.Time, expiryDays int) *Link {
	expiresAt := now.Add(time.Duration(expiryDays) * 24 * time.Hour)
	return &Link{
		ID:          uuid.NewString(),
		ShortCode:   shortCode,
		OriginalURL: originalURL,
		OwnerID:     ownerID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   &expiresAt,
	}
}

// IsExpired reports whether now is strictly after the expiry.
// A link whose expiry equals now is still usable.
func (l *Link) IsExpired(now time.Time) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return now.After(*l.ExpiresAt)
}

// RequiresPassword reports whether visits must pass the password gate.
// A password on a public link is stored but never enforced.
func (l *Link) RequiresPassword() bool {
	return l.IsPrivate && l.PasswordHash != ""
}

// OwnedBy reports whether ownerID owns the link. Anonymous links have no owner.
func (l *Link) OwnedBy(ownerID string) bool {
	return l.OwnerID != nil && ownerID != "" && *l.OwnerID == ownerID
}

// DaysLeft returns whole days until expiry, 0 once expired and -1 when the
// link never expires.
func (l *Link) DaysLeft(now time.Time) int {
	if l.ExpiresAt == nil {
		return -1
	}
	if l.IsExpired(now) {
		return 0
	}
	return int(math.Floor(l.ExpiresAt.Sub(now).Hours() / 24))
}

// TagList splits the comma separated tags, dropping blanks.
func (l *Link) TagList() []string {
	if l.Tags == "" {
		return nil
	}
	parts := strings.Split(l.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// OwnerSummary is the per-owner dashboard aggregate.
type OwnerSummary struct {
	TotalLinks   int64 `json:"total_links"`
	TotalClicks  int64 `json:"total_clicks"`
	ActiveLinks  int64 `json:"active_links"`
	ExpiredLinks int64 `json:"expired_links"`
	TodayClicks  int64 `json:"today_clicks"`
}
