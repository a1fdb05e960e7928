// Package ratelimit throttles requests to a caption service.
//
// Two limiters implement the Limiter interface:
//
// Token Bucket:
//   - Fixed capacity bucket refilled every interval
//   - Allows a burst, then the configured steady rate
//   - Used by New for requests-per-minute settings
//
// Sliding Window:
//   - Tracks requests within a moving time window
//   - Smoother over time for steady request patterns
//
// Usage:
//
//	limiter := ratelimit.New(60, 10)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err // cancelled
//	}
//	// send the request
//
// New returns Unlimited when requests per minute is zero, which is what the
// local backend uses.
package ratelimit
