package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Limiter is a fixed-window per-key request limiter. Each key gets at most
// Max hits per Window; the window for a key starts on its first hit after
// the previous window lapsed. Expired buckets are reset lazily on access and
// reclaimed by Sweep.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	max    int
	window time.Duration

	// now is swappable in tests.
	now func() time.Time

	logger *slog.Logger
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Result describes a single Allow decision. Remaining and ResetAt are valid
// whether or not the hit was allowed, so callers can surface limit headers.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func NewLimiter(max int, window time.Duration, logger *slog.Logger) *Limiter {
	if max <= 0 {
		max = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		max:     max,
		window:  window,
		now:     time.Now,
		logger:  logger,
	}
}

// Allow records a hit for key and reports whether it fits in the current
// window. The check and the increment happen under one lock so concurrent
// callers can never admit more than Max hits per window.
func (l *Limiter) Allow(key string) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(l.window)}
		l.buckets[key] = b
	}

	if b.count >= l.max {
		return Result{
			Allowed:   false,
			Limit:     l.max,
			Remaining: 0,
			ResetAt:   b.resetAt,
		}
	}

	b.count++
	return Result{
		Allowed:   true,
		Limit:     l.max,
		Remaining: l.max - b.count,
		ResetAt:   b.resetAt,
	}
}

// Refund returns one previously admitted hit to key's current window. Used
// by callers configured to not count failed (or successful) requests. A
// refund after the window lapsed is a no-op.
func (l *Limiter) Refund(key string) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		return
	}
	if b.count > 0 {
		b.count--
	}
}

// Sweep drops buckets whose window has lapsed and returns how many were
// removed. Correctness never depends on it; it only bounds memory.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Start runs periodic sweeps until ctx is cancelled.
func (l *Limiter) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			removed := l.Sweep(tick)
			if removed > 0 && l.logger != nil {
				l.logger.Debug("rate limit buckets swept",
					"event", "ratelimit_sweep",
					"module", "internal/platform/ratelimit",
					"layer", "platform",
					"removed", removed,
				)
			}
		}
	}
}
