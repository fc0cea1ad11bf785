package provider

import (
	"strings"
	"time"
)

// IsRetryable reports whether an error from a model call is transient enough
// to retry: rate limits, overloaded backends and temporary unavailability.
// Classification is by message content since both SDKs surface wire errors
// as flattened strings at this level.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "model_unavailable") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "529") ||
		strings.Contains(msg, "503")
}

// BackoffDelay returns the exponential backoff delay for a retry attempt
// (0-based), doubling from base and capped at max.
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
