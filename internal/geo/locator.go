// Package geo resolves visitor IP addresses to a coarse location.
package geo

import (
	"fmt"
	"net"
	"strings"

	"shortlink/internal/domain"

	"github.com/oschwald/geoip2-golang"
)

// Locator looks IPs up in an optional MaxMind City database and falls back to
// the country header set by the edge proxy.
type Locator struct {
	reader *geoip2.Reader
}

// Open loads the MaxMind database at path. An empty path gives a locator that
// only uses the header hint.
func Open(path string) (*Locator, error) {
	if path == "" {
		return &Locator{}, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	return &Locator{reader: reader}, nil
}

// Locate resolves ip. countryHint is the proxy's country header and only
// fills the country when the database has none. Lookup errors are returned
// together with whatever the hint provided.
func (l *Locator) Locate(ip, countryHint string) (domain.Location, error) {
	var loc domain.Location
	var lookupErr error

	if l.reader != nil {
		if parsed := net.ParseIP(ip); parsed != nil && !parsed.IsPrivate() && !parsed.IsLoopback() {
			city, err := l.reader.City(parsed)
			if err != nil {
				lookupErr = fmt.Errorf("geoip lookup failed for %s: %w", ip, err)
			} else {
				loc.CountryCode = city.Country.IsoCode
				loc.City = city.City.Names["en"]
				if city.Location.Latitude != 0 || city.Location.Longitude != 0 {
					lat, lon := city.Location.Latitude, city.Location.Longitude
					loc.Latitude, loc.Longitude = &lat, &lon
				}
			}
		}
	}

	if loc.CountryCode == "" {
		loc.CountryCode = normalizeHint(countryHint)
	}
	return loc, lookupErr
}

// normalizeHint accepts ISO 3166 alpha-2 codes. Cloudflare's XX (unknown)
// and T1 (Tor) are dropped.
func normalizeHint(hint string) string {
	hint = strings.ToUpper(strings.TrimSpace(hint))
	if len(hint) != 2 || hint == "XX" || hint == "T1" {
		return ""
	}
	for _, r := range hint {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return hint
}

// Close releases the database
func (l *Locator) Close() error {
	if l.reader == nil {
		return nil
	}
	return l.reader.Close()
}
