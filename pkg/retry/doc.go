// Package retry retries startup operations (connecting to the chat platform or a
// database) with exponential backoff and jitter.
//
//	cfg := retry.DefaultConfig()
//	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
//	    log.Warn("connect failed, retrying", "attempt", attempt, "delay", delay, "err", err)
//	}
//	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
//	    return session.Open()
//	})
//
// Errors wrapped with Permanent stop the loop immediately. Reminder deliveries are
// never retried through this package: a subscriber gets one attempt per cycle.
package retry
