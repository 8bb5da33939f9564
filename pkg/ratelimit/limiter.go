package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter defines the interface for pacing requests
type Limiter interface {
	// Allow checks if a request is allowed right now without blocking
	Allow() bool
	// Wait blocks until the limiter allows another request or ctx ends
	Wait(ctx context.Context) error
	// Reset resets the limiter state
	Reset()
}

// ForConfig picks a limiter for the download settings: a token bucket when
// bursts are allowed, otherwise a constant pacer enforcing a fixed gap.
func ForConfig(delay time.Duration, burst int) Limiter {
	if burst > 1 {
		return NewTokenBucket(burst, delay)
	}
	return NewConstantPacer(delay)
}

// ConstantPacer enforces a minimum gap between consecutive requests. The
// first request passes immediately.
type ConstantPacer struct {
	delay time.Duration
	last  time.Time
	mu    sync.Mutex
}

// NewConstantPacer creates a pacer with the given gap. A zero or negative
// delay never blocks.
func NewConstantPacer(delay time.Duration) *ConstantPacer {
	return &ConstantPacer{delay: delay}
}

// Allow checks if the gap since the previous request has elapsed
func (p *ConstantPacer) Allow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.last.IsZero() || now.Sub(p.last) >= p.delay {
		p.last = now
		return true
	}
	return false
}

// Wait blocks until the gap has elapsed
func (p *ConstantPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	var gap time.Duration
	if !p.last.IsZero() {
		gap = p.delay - time.Since(p.last)
	}
	if gap <= 0 {
		p.last = time.Now()
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	timer := time.NewTimer(gap)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	p.mu.Lock()
	p.last = time.Now()
	p.mu.Unlock()
	return nil
}

// Reset forgets the previous request so the next one passes immediately
func (p *ConstantPacer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last = time.Time{}
}

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	capacity     int           // Maximum number of tokens
	tokens       int           // Current number of tokens
	refillPeriod time.Duration // Period after which bucket is refilled
	lastRefill   time.Time     // Last time the bucket was refilled
	mu           sync.Mutex
}

// NewTokenBucket creates a new token bucket rate limiter
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

// Wait blocks until a token is available or ctx ends
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for !tb.Allow() {
		tb.mu.Lock()
		timeUntilRefill := tb.refillPeriod - time.Since(tb.lastRefill)
		tb.mu.Unlock()

		if timeUntilRefill <= 0 {
			// Small sleep to prevent busy waiting
			timeUntilRefill = 100 * time.Millisecond
		}

		timer := time.NewTimer(timeUntilRefill)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Reset resets the token bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

// refill adds tokens based on elapsed time
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)

	if elapsed >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
}
