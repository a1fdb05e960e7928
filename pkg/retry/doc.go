// Package retry provides backoff and retry logic for transient caption
// service failures.
//
// Only errors marked temporary by pkg/errors are retried: network failures,
// 408, 429 and 5xx responses. A RetryAfter hint on the error replaces the
// computed backoff for that attempt.
//
// Basic usage:
//
//	cfg := retry.FromSettings(cfg.Retry, logger.GetLogger())
//	caption, err := retry.DoWithResult(ctx, func(ctx context.Context) (string, error) {
//		return client.Caption(ctx, img)
//	}, cfg)
//
// When attempts run out the last error is returned wrapped, so errors.As
// still finds its *errors.Error and its status classification.
package retry
