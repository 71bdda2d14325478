package geo

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate_HintOnly(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	defer l.Close()

	tests := []struct {
		hint string
		want string
	}{
		{"US", "US"},
		{"de", "DE"},
		{" fr ", "FR"},
		{"XX", ""},
		{"T1", ""},
		{"USA", ""},
		{"1A", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			loc, err := l.Locate("203.0.113.9", tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, loc.CountryCode)
			assert.Empty(t, loc.City)
			assert.Nil(t, loc.Latitude)
		})
	}
}

func TestOpen_MissingDatabase(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mmdb"))
	assert.Error(t, err)
}
