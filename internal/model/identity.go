package model

import "time"

// UnknownIdentity is recorded when the exit identity of an attempt could
// not be determined. This happens when the identity probe itself fails;
// the attempt is still recorded so that retry accounting stays accurate.
const UnknownIdentity = "unknown"

// ExitIdentity is the usage record for one externally visible network
// identity (typically the IP address of a Tor exit node). Records are
// append-only: they are created on first observed use and mutated on
// every recorded attempt, but never deleted within a tracking period.
type ExitIdentity struct {
	// Identity is the identity string, usually an IP address.
	Identity string `json:"identity"`

	// LastUsed is the time of the most recent recorded attempt.
	// An identity is "in cooldown" while now - LastUsed < cooldown period.
	LastUsed time.Time `json:"last_used"`

	// UseCount is the total number of recorded attempts.
	// Invariant: UseCount == SuccessCount + FailCount.
	UseCount int `json:"use_count"`

	// SuccessCount is the number of successful attempts.
	SuccessCount int `json:"success_count"`

	// FailCount is the number of failed attempts.
	FailCount int `json:"fail_count"`
}

// InCooldown reports whether the identity was used more recently than
// the cooldown period allows.
func (e *ExitIdentity) InCooldown(now time.Time, cooldown time.Duration) bool {
	return now.Sub(e.LastUsed) < cooldown
}

// Outcome is the result classification of a single fetch attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// FetchAttempt describes one attempt to fetch a resource through a
// specific exit identity. Attempts are ephemeral: they feed the tracker's
// aggregate counters and the attempt history database, but the engine
// never reads them back during a fetch.
type FetchAttempt struct {
	// VideoID is the opaque resource identifier being fetched.
	VideoID string `json:"video_id"`

	// Number is the 1-based attempt number within a single fetch.
	Number int `json:"attempt"`

	// Identity is the exit identity the attempt rode through, or
	// UnknownIdentity if the probe failed.
	Identity string `json:"identity"`

	// Outcome is success or failure.
	Outcome Outcome `json:"outcome"`

	// ErrorClass is the classification of the failure, empty on success.
	ErrorClass string `json:"error_class,omitempty"`
}
