package fetcher

import "errors"

// Sentinel errors returned by the engine and recognized from providers.
var (
	// ErrUnavailable means the resource has no fetchable content.
	// Structural: retrying cannot help, the engine fails fast and the
	// secondary fetcher is not consulted.
	ErrUnavailable = errors.New("resource unavailable")

	// ErrRateLimited means the upstream blocked or throttled the request.
	// Providers wrap this sentinel so the engine can tell a block from an
	// ordinary network failure.
	ErrRateLimited = errors.New("rate limited by upstream")

	// ErrExhausted means the primary attempts and, for FetchWithFallback,
	// the secondary path all failed. This is the caller-visible absence
	// signal; it never carries a partial result.
	ErrExhausted = errors.New("all fetch attempts exhausted")
)

// Error classes recorded on attempts. The class decides the retry
// treatment: transient failures get plain backoff, rate limits get
// rotation plus extra delay, structural failures are not retried.
const (
	ClassTransient  = "transient"
	ClassRateLimit  = "rate_limit"
	ClassStructural = "structural"
)

// Classify maps a fetch error to its error class.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnavailable):
		return ClassStructural
	case errors.Is(err, ErrRateLimited):
		return ClassRateLimit
	default:
		// Timeouts, refused connections and everything else unrecognized
		// are treated as transient and retried with backoff.
		return ClassTransient
	}
}
