// Package ratelimit paces image downloads so the CDN never sees a burst
// it could mistake for abuse.
//
// Available Implementations:
//
// Constant Pacer:
//   - Enforces a fixed gap between consecutive requests
//   - The first request always passes immediately
//   - Default implementation used by the collector
//
// Token Bucket:
//   - Fixed capacity bucket that refills after a specified period
//   - Suitable when short bursts are acceptable
//   - Selected when the download burst setting is above one
//
// Interface:
//
// All limiters implement the Limiter interface:
//   - Allow() bool - Check if a request is allowed right now
//   - Wait(ctx) error - Block until a request is allowed or ctx ends
//   - Reset() - Reset the limiter state
//
// Usage:
//
//	// One download every 500ms
//	limiter := ratelimit.NewConstantPacer(500 * time.Millisecond)
//
//	for _, item := range items {
//	    if err := limiter.Wait(ctx); err != nil {
//	        return err // cancelled while pacing
//	    }
//	    download(item)
//	}
//
//	// Or let the download settings pick:
//	limiter := ratelimit.ForConfig(cfg.Delay, cfg.Burst)
package ratelimit
