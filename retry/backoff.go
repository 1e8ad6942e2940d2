// Package retry implements the wait-schedule math shared by the Connection
// Pool's transport-level retries (§4.1) and the Adaptive Router's
// backend-level retries (§4.7): exponential backoff with jitter, plus the
// linear schedule for the circuit breaker's linear_backoff strategy.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Jitter applies +/-15% uniform jitter to d, the jitter fraction the
// Adaptive Router's wait schedule uses (§4.7).
func Jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	delta := float64(d) * 0.15
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}

// Exponential computes base * 2^(attempt-1), capped at max, for attempt >= 1.
func Exponential(base time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d > float64(max) {
		d = float64(max)
	}
	return time.Duration(d)
}

// Linear computes base * attempt, the Adaptive Router's linear_backoff schedule.
func Linear(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}
