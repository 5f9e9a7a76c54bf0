// Package retry requeues failed retryable recipients with exponential
// backoff.
package retry

import "time"

// Backoff returns the delay before the next attempt: base doubled per
// completed retry, capped at max.
func Backoff(base, max time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		base = 30 * time.Second
	}
	if max <= 0 {
		max = time.Hour
	}

	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
