package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements the token bucket algorithm
type TokenBucket struct {
	capacity   int
	tokens     float64
	refillRate float64 // tokens per second
	lastSeen   time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket holding capacity tokens
func NewTokenBucket(capacity int, refillRate float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastSeen:   now,
	}
}

// AllowAt refills the bucket up to now and takes one token if available
func (tb *TokenBucket) AllowAt(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if elapsed := now.Sub(tb.lastSeen).Seconds(); elapsed > 0 {
		tb.tokens = min(float64(tb.capacity), tb.tokens+elapsed*tb.refillRate)
		tb.lastSeen = now
	}

	if tb.tokens >= 1.0 {
		tb.tokens--
		return true
	}
	return false
}

// Tokens returns the number of tokens left after the last refill
func (tb *TokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.tokens
}

func (tb *TokenBucket) idleSince(now time.Time) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return now.Sub(tb.lastSeen)
}

// Limiter keeps one token bucket per key
type Limiter struct {
	capacity   int
	refillRate float64
	ttl        time.Duration
	now        func() time.Time

	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithBucketTTL sets how long an idle bucket is kept before Sweep drops it
func WithBucketTTL(ttl time.Duration) Option {
	return func(l *Limiter) {
		l.ttl = ttl
	}
}

// NewLimiter creates a limiter allowing bursts of capacity requests per key,
// refilled at refillRate requests per second
func NewLimiter(capacity int, refillRate float64, opts ...Option) *Limiter {
	l := &Limiter{
		capacity:   capacity,
		refillRate: refillRate,
		ttl:        time.Hour,
		now:        time.Now,
		buckets:    make(map[string]*TokenBucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether a request for key may proceed
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = NewTokenBucket(l.capacity, l.refillRate, now)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	return bucket.AllowAt(now)
}

// Reset forgets the bucket for key
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len returns the number of tracked keys
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep drops buckets idle for longer than the TTL and returns how many were removed
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, bucket := range l.buckets {
		if bucket.idleSince(now) > l.ttl {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every TTL until ctx is done
func (l *Limiter) RunSweeper(ctx context.Context) {
	if l.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(l.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
