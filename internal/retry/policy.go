// Package retry implements the pure backoff-delay computation consulted by
// the scheduler; it never sleeps itself (spec.md §4.4).
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy is a pure value describing retry behavior. It generalizes the
// reference worker's flat `2^attempts * 1s` backoff (internal/runner's
// handleFailure) into spec.md §4.4's base/multiplier/jitter/ceiling shape.
type Policy struct {
	MaxAttempts    int // total attempts, i.e. retries+1
	BaseDelay      time.Duration
	Multiplier     float64
	JitterFraction float64 // in [0,1]
	Ceiling        time.Duration
}

// Default matches spec.md §4.4's suggested ceiling and a conservative
// multiplier; a workflow's own Retries count always overrides MaxAttempts.
func Default() Policy {
	return Policy{
		MaxAttempts:    1,
		BaseDelay:      time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Ceiling:        60 * time.Second,
	}
}

// WithRetries returns a copy of p with MaxAttempts set to retries+1, per
// spec.md §3's "total attempts = retries + 1".
func (p Policy) WithRetries(retries int) Policy {
	p.MaxAttempts = retries + 1
	return p
}

// Delay returns the backoff before attempt n (1-indexed, n>=2). Attempt 1
// has no delay. rng supplies the jitter factor so a scheduler-owned
// *rand.Rand (rather than the global source) can make retry timing
// reproducible per-run when seeded in tests.
func (p Policy) Delay(n int, rng *rand.Rand) time.Duration {
	if n < 2 {
		return 0
	}
	base := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n-2))

	jitter := 1.0
	if p.JitterFraction > 0 {
		lo := 1 - p.JitterFraction
		span := 2 * p.JitterFraction
		jitter = lo + rng.Float64()*span
	}

	d := time.Duration(base * jitter)
	if p.Ceiling > 0 && d > p.Ceiling {
		d = p.Ceiling
	}
	if d < 0 {
		d = 0
	}
	return d
}

// HasAttemptsRemaining reports whether attemptsUsed (including the one that
// just failed) leaves at least one more attempt under p.
func (p Policy) HasAttemptsRemaining(attemptsUsed int) bool {
	return attemptsUsed < p.MaxAttempts
}
