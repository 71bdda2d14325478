package service

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"shortlink/internal/analytics"
	"shortlink/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestNewEvent_CleansHeaderText(t *testing.T) {
	r := NewClickRecorder(nil, analytics.NewClassifier(nil), nil, testLogger)
	link := &domain.Link{ID: "l1"}

	tests := []struct {
		name        string
		visit       Visit
		wantUA      string
		wantReferer string
	}{
		{
			name:        "invalid bytes are dropped",
			visit:       Visit{UserAgent: "Mozilla/5.0 \xff\xfe (Windows NT 10.0)", Referer: "https://x/\xc3"},
			wantUA:      "Mozilla/5.0  (Windows NT 10.0)",
			wantReferer: "https://x/",
		},
		{
			name:   "overlong with a bad byte up front keeps the tail",
			visit:  Visit{UserAgent: "Mozilla\xff" + strings.Repeat("a", 3000)},
			wantUA: ("Mozilla" + strings.Repeat("a", 3000))[:maxTextLength],
		},
		{
			name:   "cut never splits a rune",
			visit:  Visit{UserAgent: "a" + strings.Repeat("é", 1500)},
			wantUA: "a" + strings.Repeat("é", (maxTextLength-1)/2),
		},
		{
			name:        "clean input is kept",
			visit:       Visit{UserAgent: desktopUA, Referer: "https://news.example"},
			wantUA:      desktopUA,
			wantReferer: "https://news.example",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.visit.SessionID = "sess\xff"
			event := r.NewEvent(context.Background(), link, tt.visit, fixedNow)

			assert.Equal(t, tt.wantUA, event.UserAgent)
			assert.Equal(t, tt.wantReferer, event.Referer)
			assert.Equal(t, "sess", event.SessionID)
			assert.LessOrEqual(t, len(event.UserAgent), maxTextLength)
			for _, s := range []string{event.UserAgent, event.Referer, event.SessionID, event.OperatingSystem} {
				assert.True(t, utf8.ValidString(s))
			}
		})
	}
}
