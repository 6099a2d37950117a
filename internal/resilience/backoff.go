package resilience

import (
	"math/rand"
	"time"
)

// Backoff returns an exponential delay for attempt (1-based), capped at ceiling when
// ceiling is positive. Jitter is a fraction of the delay (0.2 == ±20%).
func Backoff(base, ceiling time.Duration, attempt int, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if attempt > 30 {
		attempt = 30
	}
	d := base << uint(attempt-1)
	if ceiling > 0 && d > ceiling {
		d = ceiling
	}
	if jitter <= 0 {
		return d
	}
	if jitter > 1 {
		jitter = 1
	}
	delta := (rand.Float64()*2 - 1) * jitter * float64(d)
	return d + time.Duration(delta)
}
