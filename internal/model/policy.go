package model

import "time"

// Default retry policy values. These are tuned for Tor latency: circuits
// are slow to build and rate limits need wall-clock time to clear, so the
// defaults are generous compared to clearnet retry policies.
const (
	// DefaultMaxRetries is the number of primary attempts before the
	// engine falls back to the secondary fetcher.
	DefaultMaxRetries = 5

	// DefaultBaseTimeout is the per-attempt timeout for the first attempt.
	// Later attempts grow geometrically from this value.
	DefaultBaseTimeout = 60 * time.Second

	// DefaultMaxTimeout caps the geometric per-attempt timeout growth.
	DefaultMaxTimeout = 120 * time.Second

	// DefaultMaxRotationAttempts bounds how many times the controller
	// signals NEWNYM while trying to land on an identity outside the
	// avoid set before accepting the least-bad option.
	DefaultMaxRotationAttempts = 5

	// DefaultCooldown is the minimum elapsed time before a previously
	// used identity is considered eligible again.
	DefaultCooldown = time.Hour
)

// RetryPolicy is the configuration for a single fetch operation.
// It is plain configuration, not mutable state: the engine never writes
// to it, and the same policy value can drive many concurrent fetches.
type RetryPolicy struct {
	// MaxRetries is the number of primary attempts before fallback.
	MaxRetries int

	// BaseTimeout is the timeout for attempt 0. The timeout for attempt
	// n is min(BaseTimeout * 1.5^n, MaxTimeout): later attempts face
	// statistically more contention, so they get more time.
	BaseTimeout time.Duration

	// MaxTimeout caps the per-attempt timeout.
	MaxTimeout time.Duration

	// MaxRotationAttempts bounds the avoid-set loop inside one rotation.
	MaxRotationAttempts int

	// Cooldown is the minimum age before an identity may be reused.
	Cooldown time.Duration
}

// DefaultRetryPolicy returns the policy used when the caller does not
// supply one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:          DefaultMaxRetries,
		BaseTimeout:         DefaultBaseTimeout,
		MaxTimeout:          DefaultMaxTimeout,
		MaxRotationAttempts: DefaultMaxRotationAttempts,
		Cooldown:            DefaultCooldown,
	}
}

// AttemptTimeout returns the timeout for the given 0-based attempt,
// growing geometrically and capped at MaxTimeout.
func (p RetryPolicy) AttemptTimeout(attempt int) time.Duration {
	timeout := float64(p.BaseTimeout)
	for i := 0; i < attempt; i++ {
		timeout *= 1.5
		if timeout >= float64(p.MaxTimeout) {
			return p.MaxTimeout
		}
	}
	if timeout > float64(p.MaxTimeout) {
		return p.MaxTimeout
	}
	return time.Duration(timeout)
}
