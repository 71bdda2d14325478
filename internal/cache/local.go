package cache

import (
	"fmt"
	"time"

	"shortlink/internal/domain"
	"shortlink/internal/metrics"

	"github.com/dgraph-io/ristretto"
)

// Local is a bounded in-process link cache. Every entry costs 1, so maxItems
// is the entry bound.
type Local struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewLocal creates a local cache holding up to maxItems links for ttl each
func NewLocal(maxItems int64, ttl time.Duration) (*Local, error) {
	maxItems = max(1, maxItems)
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create local cache: %w", err)
	}
	return &Local{cache: c, ttl: ttl}, nil
}

// Get returns a copy of the cached link so callers may mutate it freely
func (l *Local) Get(code string) (*domain.Link, bool) {
	val, found := l.cache.Get(code)
	if !found {
		metrics.RecordCacheMiss("local")
		return nil, false
	}
	metrics.RecordCacheHit("local")
	link := *val.(*domain.Link)
	return &link, true
}

// Set stores a copy of link. Ristretto admits asynchronously, so a Get right
// after Set may still miss; call Wait when that matters.
func (l *Local) Set(link *domain.Link) {
	cp := *link
	l.cache.SetWithTTL(link.ShortCode, &cp, 1, l.ttl)
}

// Delete drops codes
func (l *Local) Delete(codes ...string) {
	for _, code := range codes {
		l.cache.Del(code)
	}
}

// Wait blocks until pending writes are applied
func (l *Local) Wait() {
	l.cache.Wait()
}

// Close stops the cache's background goroutines
func (l *Local) Close() {
	l.cache.Close()
}
