package retry

import (
	"context"
	"fmt"
	"time"

	"tierup/pkg/errors"
	"tierup/pkg/logger"
)

// Config controls one retryable operation.
type Config struct {
	// MaxAttempts is the total number of tries, first attempt included.
	MaxAttempts int
	// Backoff computes the wait before each retry.
	Backoff BackoffStrategy
	// RetryIf decides whether an error is worth another attempt.
	// Defaults to errors.IsRetryable.
	RetryIf func(error) bool
	// OnRetry is called before each retry with the upcoming attempt number
	// and the error that caused it.
	OnRetry func(attempt int, err error)
	// Context aborts waiting between attempts when cancelled.
	Context context.Context
	// Logger, when set, records each retry at debug level.
	Logger logger.Logger
}

// DefaultConfig retries three times with exponential backoff.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     errors.IsRetryable,
		Context:     context.Background(),
	}
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultExponentialBackoff()
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = errors.IsRetryable
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	return cfg
}

// Do runs op until it succeeds, the attempts are exhausted, the error is not
// retryable, or the context is cancelled while waiting.
func Do(cfg Config, op func() error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, lastErr)
			}
			if cfg.Logger != nil {
				cfg.Logger.DebugWithFields("retrying operation", map[string]interface{}{
					"attempt":      attempt,
					"max_attempts": cfg.MaxAttempts,
					"error":        lastErr.Error(),
				})
			}
			if err := Wait(cfg.Context, cfg.Backoff.NextDelay(attempt)); err != nil {
				return err
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !cfg.RetryIf(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// DoWithResult is Do for operations that return a value.
func DoWithResult[T any](cfg Config, op func() (T, error)) (T, error) {
	var result T
	err := Do(cfg, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	return result, err
}

// Wait sleeps for delay or returns early with the context's error.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
