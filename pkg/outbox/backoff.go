package outbox

import (
	"math/rand"
	"time"
)

// backoff doubles from one second per failed attempt, capped at maxBackoff.
func backoff(attempts int, maxBackoff time.Duration) time.Duration {
	if attempts <= 0 {
		return 0
	}
	if attempts > 62 {
		return maxBackoff
	}
	d := time.Second << (attempts - 1)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

// jitter returns a duration in [0, maxJitter].
func jitter(r *rand.Rand, maxJitter time.Duration) time.Duration {
	if r == nil || maxJitter <= 0 {
		return 0
	}
	return time.Duration(r.Int63n(int64(maxJitter) + 1)) //nolint:gosec
}

func nextAttemptAt(now time.Time, attempts int, o RelayOptions) time.Time {
	return now.Add(backoff(attempts, o.MaxBackoff) + jitter(o.Rand, o.JitterMax))
}
