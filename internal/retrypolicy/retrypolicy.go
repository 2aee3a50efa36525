// Package retrypolicy configures the retry/backoff behavior handed to the
// step orchestrator. The core never retries anything itself (spec §5): this
// package only builds the policy objects that the Temporal workflow wiring
// attaches to activity options, plus a jittered backoff helper for the
// non-Temporal standalone cron runner.
package retrypolicy

import (
	"math"
	"math/rand"
	"time"

	"go.temporal.io/sdk/temporal"
)

// ActivityDefaults returns the retry policy attached to every ingest-workflow
// activity. Attempts are capped; the step orchestrator owns the backoff
// curve, not the activity implementation.
func ActivityDefaults(maxAttempts int32) *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    maxAttempts,
	}
}

// BackoffDelay returns an exponential-with-jitter delay for the standalone
// (non-Temporal) cron runner's own internal error backoff between ticks.
func BackoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	backoff := float64(base) * math.Pow(2.0, float64(attempt-1))
	if math.IsNaN(backoff) || math.IsInf(backoff, 0) || (maxDelay > 0 && backoff > float64(maxDelay)) {
		backoff = float64(maxDelay)
	}
	jitter := 1.0 + rand.Float64()*0.1
	return time.Duration(backoff * jitter)
}
