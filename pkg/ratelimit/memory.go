package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is the single-process fallback window. It offers the same
// admission semantics as the Redis limiter but no cross-instance view, so
// under an outage each instance enforces the budget independently.
type MemoryLimiter struct {
	cfg Config

	mu        sync.Mutex
	windows   map[string][]time.Time
	lastSweep time.Time
}

// NewMemoryLimiter creates an in-memory limiter.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg,
		windows: make(map[string][]time.Time),
	}
}

// Check implements Limiter.
func (l *MemoryLimiter) Check(_ context.Context, tenantID, userID string) (*Result, error) {
	window := l.cfg.window()
	limit := l.cfg.limit()
	now := time.Now()
	cutoff := now.Add(-window)
	key := Key(tenantID, userID)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= window {
		l.sweep(cutoff)
		l.lastSweep = now
	}

	stamps := l.windows[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	allowed := len(kept) < limit
	if allowed {
		kept = append(kept, now)
	}
	if len(kept) == 0 {
		delete(l.windows, key)
	} else {
		l.windows[key] = kept
	}

	r := &Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: limit - len(kept),
		Reset:     now.Add(window),
	}
	if r.Remaining < 0 {
		r.Remaining = 0
	}
	if !allowed {
		r.RetryAfter = window
	}
	return r, nil
}

// sweep drops users whose recorded requests have all aged out, so a
// long-lived fallback limiter does not keep an entry for every user ever
// seen. Stamps are appended in order, so the last one is the newest.
func (l *MemoryLimiter) sweep(cutoff time.Time) {
	for key, stamps := range l.windows {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.windows, key)
		}
	}
}
