package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"torfetch/internal/model"
	"torfetch/internal/tor"
	"torfetch/internal/tracker"
)

// identityProbeTimeout bounds the per-attempt identity resolution. The
// probe is bookkeeping, not the fetch itself; it must not eat into the
// retry budget.
const identityProbeTimeout = 10 * time.Second

// Provider is the primary fetch path. Both operations go through the
// same transport so the resolved identity matches the one the fetch rode.
type Provider interface {
	// Fetch retrieves the transcript for videoID in the first matching
	// language. Errors wrapping ErrUnavailable or ErrRateLimited steer
	// the retry treatment; anything else is treated as transient.
	Fetch(ctx context.Context, videoID string, languages []string) (*model.FetchResult, error)

	// ResolveIdentity reports the exit identity of the current circuit.
	ResolveIdentity(ctx context.Context) (string, error)
}

// SecondaryFetcher is the independent fallback path, tried once after
// the primary attempts are exhausted. It must not depend on the proxy.
type SecondaryFetcher interface {
	Fetch(ctx context.Context, videoID string, languages []string) (*model.FetchResult, error)
}

// AvailabilityChecker answers the cheap pre-flight query. A definitive
// "unavailable" fails the fetch before any network attempt is spent.
type AvailabilityChecker interface {
	// CheckAvailability reports whether videoID has fetchable content and,
	// when it does not, a human-readable reason. An error means the check
	// itself could not run; the engine then proceeds as if available.
	CheckAvailability(ctx context.Context, videoID string, languages []string) (bool, string, error)
}

// Rotator requests a new circuit. *tor.Controller satisfies this.
type Rotator interface {
	Rotate(ctx context.Context, avoid map[string]struct{}, maxAttempts int) (string, error)
}

// AttemptRecorder receives every attempt for durable history.
// *database.AttemptDB satisfies this. Recording is best-effort: an error
// is logged, never escalated.
type AttemptRecorder interface {
	Record(ctx context.Context, attempt model.FetchAttempt) error
}

// Engine is the per-operation retry state machine. One Engine serves one
// worker; construct several for parallel fetching and share the tracker
// between them. The zero value is not usable, use NewEngine.
type Engine struct {
	provider  Provider
	secondary SecondaryFetcher
	checker   AvailabilityChecker
	rotator   Rotator
	tracker   *tracker.IdentityTracker
	history   AttemptRecorder
	policy    model.RetryPolicy

	// rotationLock serializes rotations when several workers share one
	// daemon instance. A rotation changes the circuit for every
	// connection on that instance, not just the initiating worker's.
	// Nil when the worker owns its instance exclusively.
	rotationLock sync.Locker

	logger *slog.Logger

	// sleep and jitter are indirected for tests.
	sleep  func(time.Duration)
	jitter func() float64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSecondary sets the fallback fetch path.
func WithSecondary(s SecondaryFetcher) EngineOption {
	return func(e *Engine) {
		e.secondary = s
	}
}

// WithAvailabilityChecker sets the pre-flight availability check.
func WithAvailabilityChecker(c AvailabilityChecker) EngineOption {
	return func(e *Engine) {
		e.checker = c
	}
}

// WithRotator enables circuit rotation between failed attempts.
func WithRotator(r Rotator) EngineOption {
	return func(e *Engine) {
		e.rotator = r
	}
}

// WithRotationLock sets the per-instance coordination lock held around
// rotations. Required in single-instance mode with multiple workers.
func WithRotationLock(l sync.Locker) EngineOption {
	return func(e *Engine) {
		e.rotationLock = l
	}
}

// WithPolicy overrides the default retry policy.
func WithPolicy(p model.RetryPolicy) EngineOption {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithHistory enables durable per-attempt history recording.
func WithHistory(h AttemptRecorder) EngineOption {
	return func(e *Engine) {
		e.history = h
	}
}

// WithEngineLogger sets the logger. Defaults to slog.Default().
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// withSleep overrides the backoff sleep. Test-only.
func withSleep(fn func(time.Duration)) EngineOption {
	return func(e *Engine) {
		e.sleep = fn
	}
}

// withJitter overrides the jitter source. Test-only.
func withJitter(fn func() float64) EngineOption {
	return func(e *Engine) {
		e.jitter = fn
	}
}

// NewEngine creates an Engine around the primary provider and the shared
// identity tracker.
func NewEngine(provider Provider, t *tracker.IdentityTracker, opts ...EngineOption) *Engine {
	e := &Engine{
		provider: provider,
		tracker:  t,
		policy:   model.DefaultRetryPolicy(),
		sleep:    time.Sleep,
		jitter:   rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Fetch runs the primary retry loop for videoID. It returns the fetched
// transcript, or ErrUnavailable when the pre-flight check reports no
// fetchable content (zero attempts spent), or ErrExhausted when every
// primary attempt failed.
//
// Between attempts the engine rotates the circuit, avoiding identities
// in cooldown or already failed today, then backs off exponentially with
// jitter. When rotation could not escape the avoid set, a linear penalty
// delay is added first: rate limits clear with wall-clock time, not with
// identity diversity the network cannot provide.
func (e *Engine) Fetch(ctx context.Context, videoID string, languages []string) (*model.FetchResult, error) {
	if e.checker != nil {
		available, reason, err := e.checker.CheckAvailability(ctx, videoID, languages)
		switch {
		case err != nil:
			e.logger.Warn("availability check failed, proceeding anyway",
				"video_id", videoID,
				"error", err,
			)
		case !available:
			e.logger.Info("transcript unavailable, failing fast",
				"video_id", videoID,
				"reason", reason,
			)
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, reason)
		}
	}

	for attempt := 0; attempt < e.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := e.prepareRetry(ctx, attempt); err != nil {
				return nil, err
			}
		}

		result, err := e.attempt(ctx, videoID, languages, attempt)
		if err == nil {
			e.saveTracker()
			return result, nil
		}

		if Classify(err) == ClassStructural {
			e.logger.Info("structural failure, not retrying",
				"video_id", videoID,
				"error", err,
			)
			e.saveTracker()
			return nil, err
		}

		e.logger.Warn("fetch attempt failed",
			"video_id", videoID,
			"attempt", attempt+1,
			"max_retries", e.policy.MaxRetries,
			"error_class", Classify(err),
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	e.saveTracker()
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrExhausted, videoID, e.policy.MaxRetries)
}

// FetchWithFallback runs Fetch and, on primary exhaustion, tries the
// secondary fetcher once. Structural unavailability skips the fallback:
// a resource with no content has no content on any transport.
func (e *Engine) FetchWithFallback(ctx context.Context, videoID string, languages []string) (*model.FetchResult, error) {
	result, err := e.Fetch(ctx, videoID, languages)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, ErrUnavailable) || ctx.Err() != nil {
		return nil, err
	}
	if e.secondary == nil {
		return nil, err
	}

	e.logger.Info("primary path exhausted, trying secondary fetcher",
		"video_id", videoID,
	)
	result, serr := e.secondary.Fetch(ctx, videoID, languages)
	if serr != nil {
		e.logger.Warn("secondary fetcher failed",
			"video_id", videoID,
			"error", serr,
		)
		return nil, fmt.Errorf("%w: secondary fetch: %v", ErrExhausted, serr)
	}

	if result.Method == "" {
		result.Method = model.MethodDirect
	}
	return result, nil
}

// attempt runs one fetch with the per-attempt timeout, resolves the exit
// identity and records the attempt in the tracker and history.
func (e *Engine) attempt(ctx context.Context, videoID string, languages []string, attempt int) (*model.FetchResult, error) {
	timeout := e.policy.AttemptTimeout(attempt)
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	result, err := e.provider.Fetch(attemptCtx, videoID, languages)
	cancel()

	identity := e.resolveIdentity(ctx)
	e.tracker.RecordAttempt(identity, videoID, attempt+1, err == nil)
	e.recordHistory(ctx, model.FetchAttempt{
		VideoID:    videoID,
		Number:     attempt + 1,
		Identity:   identityOrUnknown(identity),
		Outcome:    outcomeOf(err),
		ErrorClass: Classify(err),
	})

	if err != nil {
		return nil, err
	}
	if result.Method == "" {
		result.Method = model.MethodTor
	}
	return result, nil
}

// prepareRetry rotates the circuit and sleeps the backoff before the
// given retry attempt.
func (e *Engine) prepareRetry(ctx context.Context, attempt int) error {
	var penalty time.Duration
	if e.rotator != nil {
		penalty = e.rotate(ctx, attempt)
	}

	backoff := time.Duration((math.Pow(2, float64(attempt)) + e.jitter()) * float64(time.Second))
	delay := penalty + backoff

	e.logger.Debug("backing off before retry",
		"attempt", attempt+1,
		"delay", delay,
	)
	e.sleep(delay)
	return ctx.Err()
}

// rotate requests a new circuit, avoiding identities in cooldown or
// already failed today. It returns the extra penalty delay owed when the
// rotation could not escape the avoid set or failed outright.
func (e *Engine) rotate(ctx context.Context, attempt int) time.Duration {
	avoid := e.tracker.CooldownIdentities(e.policy.Cooldown)
	for identity := range e.tracker.FailedIdentitiesToday() {
		avoid[identity] = struct{}{}
	}

	if e.rotationLock != nil {
		e.rotationLock.Lock()
		defer e.rotationLock.Unlock()
	}

	identity, err := e.rotator.Rotate(ctx, avoid, e.policy.MaxRotationAttempts)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, tor.ErrRotationDisabled):
		// Degraded controller: keep fetching on the fixed identity.
		return 0
	case errors.Is(err, tor.ErrAvoidedIdentity):
		e.logger.Warn("rotation could not avoid a recently failed identity",
			"identity", identity,
			"attempt", attempt,
		)
	default:
		e.logger.Warn("circuit rotation failed",
			"attempt", attempt,
			"error", err,
		)
	}

	// Linear penalty: the network could not offer a fresh identity, so
	// give the rate limit wall-clock time to clear instead.
	return time.Duration(10*attempt) * time.Second
}

// resolveIdentity probes the current exit identity, returning "" when
// the probe fails so the attempt is recorded against UnknownIdentity.
func (e *Engine) resolveIdentity(ctx context.Context) string {
	probeCtx, cancel := context.WithTimeout(ctx, identityProbeTimeout)
	defer cancel()

	identity, err := e.provider.ResolveIdentity(probeCtx)
	if err != nil {
		e.logger.Debug("identity probe failed, recording attempt as unknown",
			"error", err,
		)
		return ""
	}
	return identity
}

// saveTracker persists tracker state at fetch resolution. Best-effort:
// in-memory decisions never depend on persistence succeeding.
func (e *Engine) saveTracker() {
	if err := e.tracker.Save(); err != nil {
		e.logger.Warn("cannot persist identity tracker", "error", err)
	}
}

// recordHistory appends the attempt to the durable history, when enabled.
func (e *Engine) recordHistory(ctx context.Context, attempt model.FetchAttempt) {
	if e.history == nil {
		return
	}
	if err := e.history.Record(ctx, attempt); err != nil {
		e.logger.Warn("cannot record attempt history",
			"video_id", attempt.VideoID,
			"error", err,
		)
	}
}

// identityOrUnknown normalizes an empty identity for attempt records.
func identityOrUnknown(identity string) string {
	if identity == "" {
		return model.UnknownIdentity
	}
	return identity
}

// outcomeOf maps a fetch error to the recorded outcome.
func outcomeOf(err error) model.Outcome {
	if err == nil {
		return model.OutcomeSuccess
	}
	return model.OutcomeFailure
}
