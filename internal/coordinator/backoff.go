// internal/coordinator/backoff.go
package coordinator

import (
	"math"
	"math/rand"
	"time"
)

// BackoffDelay computes the delay before redelivering a failed task.
// Exponential growth on the attempt number, capped, with full jitter so a
// burst of simultaneous failures does not reconverge on the upstream service
// in lockstep.
func BackoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	ceiling := float64(base) * math.Pow(2, float64(attempt-1))
	if ceiling > float64(cap) {
		ceiling = float64(cap)
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}
