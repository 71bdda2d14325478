// Package cache implements the read-through link cache used by the resolve
// path: an in-process tier backed by an optional shared Redis tier.
package cache

import (
	"context"
	"log/slog"

	"shortlink/internal/domain"
)

// Remote is the shared tier. *redis.Cache satisfies it.
type Remote interface {
	GetLink(ctx context.Context, code string) (*domain.Link, error)
	SetLink(ctx context.Context, link *domain.Link) error
	DeleteLink(ctx context.Context, codes ...string) error
}

// Broadcaster fans invalidations out to the local tiers of other instances.
// *redis.Cache satisfies it.
type Broadcaster interface {
	PublishInvalidation(ctx context.Context, codes ...string) error
	SubscribeInvalidations(ctx context.Context, fn func(codes []string)) error
}

// Tiered checks the local tier, then the remote one. Remote failures are
// logged and treated as misses; the database stays the source of truth.
type Tiered struct {
	local  *Local
	remote Remote
	logger *slog.Logger
}

// NewTiered builds a tiered cache. remote may be nil.
func NewTiered(local *Local, remote Remote, logger *slog.Logger) *Tiered {
	return &Tiered{local: local, remote: remote, logger: logger}
}

// Get returns the cached link for code
func (t *Tiered) Get(ctx context.Context, code string) (*domain.Link, bool) {
	if link, ok := t.local.Get(code); ok {
		return link, true
	}
	if t.remote == nil {
		return nil, false
	}

	link, err := t.remote.GetLink(ctx, code)
	if err != nil {
		t.logger.Warn("remote cache get failed", "short_code", code, "error", err)
		return nil, false
	}
	if link == nil {
		return nil, false
	}
	t.local.Set(link)
	return link, true
}

// Set writes link to both tiers
func (t *Tiered) Set(ctx context.Context, link *domain.Link) {
	t.local.Set(link)
	if t.remote == nil {
		return
	}
	if err := t.remote.SetLink(ctx, link); err != nil {
		t.logger.Warn("remote cache set failed", "short_code", link.ShortCode, "error", err)
	}
}

// Invalidate drops codes from both tiers
func (t *Tiered) Invalidate(ctx context.Context, codes ...string) {
	if len(codes) == 0 {
		return
	}
	t.local.Delete(codes...)
	if t.remote == nil {
		return
	}
	if err := t.remote.DeleteLink(ctx, codes...); err != nil {
		t.logger.Warn("remote cache delete failed", "codes", codes, "error", err)
	}

	// published after the remote delete so peers refill from the database
	if b, ok := t.remote.(Broadcaster); ok {
		if err := b.PublishInvalidation(ctx, codes...); err != nil {
			t.logger.Warn("cache invalidation publish failed", "codes", codes, "error", err)
		}
	}
}

// Listen drops codes invalidated by other instances from the local tier
// until ctx is done. Without a broadcasting remote it does nothing. A peer
// that misses a message still expires the entry after the local TTL.
func (t *Tiered) Listen(ctx context.Context) error {
	b, ok := t.remote.(Broadcaster)
	if !ok {
		return nil
	}
	return b.SubscribeInvalidations(ctx, func(codes []string) {
		t.local.Delete(codes...)
	})
}

// Close releases the local tier
func (t *Tiered) Close() {
	t.local.Close()
}
