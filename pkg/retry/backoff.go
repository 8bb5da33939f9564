package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy computes the wait before a given attempt. Attempt numbers
// start at 1; attempt 1 never waits.
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier each attempt, capped at
// MaxDelay, with optional jitter to spread simultaneous retries.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultExponentialBackoff matches the pacing used for per-image retries:
// 1s, 2s, 4s... capped at 30s with 10% jitter.
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt-2))
	if max := float64(b.MaxDelay); b.MaxDelay > 0 && delay > max {
		delay = max
	}
	delay = applyJitter(delay, b.JitterFactor)
	return time.Duration(delay)
}

// LinearBackoff adds Increment to the delay each attempt, capped at MaxDelay.
type LinearBackoff struct {
	InitialDelay time.Duration
	Increment    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
}

func (b *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := float64(b.InitialDelay + b.Increment*time.Duration(attempt-2))
	if max := float64(b.MaxDelay); b.MaxDelay > 0 && delay > max {
		delay = max
	}
	delay = applyJitter(delay, b.JitterFactor)
	return time.Duration(delay)
}

// ConstantBackoff waits the same Delay before every retry.
type ConstantBackoff struct {
	Delay time.Duration
}

func (b *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return b.Delay
}

func applyJitter(delay, factor float64) float64 {
	if factor <= 0 || delay <= 0 {
		return math.Max(delay, 0)
	}
	jitter := delay * factor
	delay += (rand.Float64() * 2 * jitter) - jitter
	if delay < 0 {
		delay = 0
	}
	return delay
}
