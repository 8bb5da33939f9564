// Package retry provides bounded-attempt execution with pluggable backoff
// for transient failures, particularly per-image downloads and uploads.
//
// Features:
//   - Multiple backoff strategies (exponential, linear, constant)
//   - Jitter to avoid synchronized retries
//   - Context support for cancellation between attempts
//   - Configurable retry predicates, defaulting to errors.IsRetryable
//
// Basic usage:
//
//	// Simple retry with defaults
//	err := retry.Do(retry.DefaultConfig(), func() error {
//		return fetcher.Fetch(ctx, url)
//	})
//
//	// Custom configuration
//	cfg := retry.Config{
//		MaxAttempts: 5,
//		Backoff: &retry.ExponentialBackoff{
//			InitialDelay: 2 * time.Second,
//			MaxDelay:     30 * time.Second,
//			Multiplier:   2.0,
//			JitterFactor: 0.1,
//		},
//		Context: ctx,
//		Logger:  logger.GetLogger(),
//	}
//	data, err := retry.DoWithResult(cfg, func() ([]byte, error) {
//		return fetcher.Fetch(ctx, url)
//	})
//
// Environment failures are never routed through this package; only errors
// the taxonomy marks retryable get further attempts.
package retry
