package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter is an in-process token bucket per key. It refills
// maxRequests tokens per window and bursts up to maxRequests.
type LocalLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

// NewLocalLimiter creates a per-process limiter
func NewLocalLimiter(maxRequests int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		buckets:     make(map[string]*bucket),
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// Allow takes one token from key's bucket
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, int, time.Time, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		every := l.window / time.Duration(max(1, l.maxRequests))
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), l.maxRequests)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	remaining := max(0, int(tokens))

	// time until the bucket is full again
	missing := float64(l.maxRequests) - tokens
	reset := now
	if missing > 0 {
		reset = now.Add(time.Duration(missing / float64(b.limiter.Limit()) * float64(time.Second)))
	}
	return allowed, remaining, reset, nil
}

// Reset drops key's bucket so it starts full
func (l *LocalLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
	return nil
}

// MaxRequests returns the bucket size
func (l *LocalLimiter) MaxRequests() int {
	return l.maxRequests
}

// Cleanup drops buckets idle for longer than idle
func (l *LocalLimiter) Cleanup(idle time.Duration) int {
	cutoff := l.now().Add(-idle)

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Fallback uses primary and switches to secondary for any call where primary
// errors, so a Redis outage degrades to per-instance limits instead of
// letting everything through.
type Fallback struct {
	primary   Limiter
	secondary Limiter
	logger    *slog.Logger
}

// NewFallback chains two limiters
func NewFallback(primary, secondary Limiter, logger *slog.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

// Allow asks primary, then secondary on error
func (f *Fallback) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	allowed, remaining, reset, err := f.primary.Allow(ctx, key)
	if err == nil {
		return allowed, remaining, reset, nil
	}
	f.logger.Warn("primary rate limiter failed, using local limiter", "error", err)
	return f.secondary.Allow(ctx, key)
}

// Reset clears key on both limiters; a request may have been counted by either
func (f *Fallback) Reset(ctx context.Context, key string) error {
	err := f.primary.Reset(ctx, key)
	if err != nil {
		f.logger.Warn("primary rate limiter reset failed", "error", err)
	}
	if serr := f.secondary.Reset(ctx, key); serr != nil {
		return serr
	}
	return err
}

// MaxRequests reports the primary limit
func (f *Fallback) MaxRequests() int {
	return f.primary.MaxRequests()
}
