package apns

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy describes the backoff schedule applied between attempts
// of Client.Send for retryable failures. The policy owns the schedule
// only; the attempt ceiling belongs to the caller via MaxAttempts, and
// cancellation via the request context.
type RetryPolicy struct {
	// InitialInterval is the first wait between attempts.
	InitialInterval time.Duration
	// MaxInterval caps the exponential growth of the wait.
	MaxInterval time.Duration
	// Multiplier grows the wait after each attempt.
	Multiplier float64
	// RandomizationFactor spreads each wait by ±factor jitter so
	// concurrent senders do not retry in lockstep.
	RandomizationFactor float64
	// MaxAttempts bounds the total number of attempts, the first one
	// included. Zero or one means a single attempt without retries.
	MaxAttempts int
}

// DefaultRetryPolicy is used when Config.Retry is left zero.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval:     time.Second,
	MaxInterval:         time.Minute,
	Multiplier:          2,
	RandomizationFactor: 0.2,
	MaxAttempts:         4,
}

// newBackOff builds the exponential schedule for one send loop. Each
// loop gets its own schedule so concurrent sends do not share state.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.RandomizationFactor
	b.MaxElapsedTime = 0 // the caller bounds attempts, not elapsed time
	b.Reset()
	return b
}

// attempts returns the effective attempt ceiling.
func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// nextWait combines the scheduled backoff wait with a server-supplied
// Retry-After hint; the larger of the two wins and the schedule still
// advances.
func nextWait(b backoff.BackOff, hint time.Duration) time.Duration {
	wait := b.NextBackOff()
	if wait == backoff.Stop {
		wait = 0
	}
	if hint > wait {
		return hint
	}
	return wait
}
