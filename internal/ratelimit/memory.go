package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter keeps one bucket per key in process memory. The map lock
// covers lookups only; each bucket has its own lock, so different keys never
// wait on each other.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	now     func() time.Time
}

type bucket struct {
	mu         sync.Mutex
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewMemoryLimiter returns a limiter allowing perMinute sends per key per
// minute. perMinute <= 0 disables limiting.
func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (m *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	m.now = now
	return m
}

func (m *MemoryLimiter) bucketFor(key string) *bucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, exists := m.buckets[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(m.rate, m.burst)}
		m.buckets[key] = b
	}
	return b
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	if m.burst <= 0 {
		return Decision{Allowed: true}, nil
	}

	b := m.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := m.now()
	b.lastAccess = now
	if b.limiter.AllowN(now, 1) {
		return Decision{Allowed: true}, nil
	}
	deniedTotal.Inc()
	missing := 1 - b.limiter.TokensAt(now)
	return Decision{RetryAfter: secondsToDuration(missing / float64(m.rate))}, nil
}

// Tokens reports the tokens currently available for key; an unseen key
// reports a full bucket.
func (m *MemoryLimiter) Tokens(key string) float64 {
	m.mu.Lock()
	b, exists := m.buckets[key]
	m.mu.Unlock()
	if !exists {
		return float64(m.burst)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limiter.TokensAt(m.now())
}

// Evict drops buckets not used within maxAge. A dropped bucket would have
// refilled to capacity anyway once maxAge exceeds a minute.
func (m *MemoryLimiter) Evict(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-maxAge)
	evicted := 0
	for key, b := range m.buckets {
		b.mu.Lock()
		idle := b.lastAccess.Before(cutoff)
		b.mu.Unlock()
		if idle {
			delete(m.buckets, key)
			evicted++
		}
	}
	return evicted
}

// Len reports how many buckets are tracked.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
