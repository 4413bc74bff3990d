package tracker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"torfetch/internal/model"
)

// Stats summarizes tracked usage within the current tracking day.
type Stats struct {
	// Date is the tracking day in YYYY-MM-DD form.
	Date string `json:"date"`

	// TotalAttempts is the sum of use counts recorded today.
	TotalAttempts int `json:"total_attempts"`

	// UniqueIdentities is the number of distinct identities used today.
	UniqueIdentities int `json:"unique_identities"`

	// Successful is the number of successful attempts today.
	Successful int `json:"successful"`

	// Failed is the number of failed attempts today.
	Failed int `json:"failed"`
}

// IdentityTracker keeps per-identity usage records and persists them to a
// JSON file. Construct one per process and inject it into every engine
// instance; the type is safe for concurrent use by parallel workers.
//
// Records are append-only within a tracking period: an identity record is
// created on first observed use and mutated on every later attempt, but
// never deleted. Day-scoped queries (failed-today, stats) consider only
// records whose last use falls on the current day, while cooldown checks
// consider the full record set.
type IdentityTracker struct {
	mu sync.Mutex

	// path is the JSON document location.
	path string

	// identities maps identity string to its usage record.
	identities map[string]*model.ExitIdentity

	logger *slog.Logger

	// now is the clock, overridable in tests.
	now func() time.Time
}

// Option configures an IdentityTracker.
type Option func(*IdentityTracker)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *IdentityTracker) {
		t.logger = logger
	}
}

// WithClock overrides the tracker's clock. Tests use this to place
// records inside or outside the current day and cooldown window.
func WithClock(now func() time.Time) Option {
	return func(t *IdentityTracker) {
		t.now = now
	}
}

// New creates an IdentityTracker backed by the JSON document at path,
// loading any existing state. A missing file is an empty tracker, not an
// error. A corrupt file is logged and treated as empty.
func New(path string, opts ...Option) *IdentityTracker {
	t := &IdentityTracker{
		path:       path,
		identities: make(map[string]*model.ExitIdentity),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}

	t.load()
	return t
}

// load reads the persisted document into memory. Decode errors are not
// fatal; unknown keys inside records are ignored, which keeps the file
// format forward-compatible.
func (t *IdentityTracker) load() {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.logger.Warn("cannot read tracker file, starting fresh",
				"path", t.path,
				"error", err,
			)
		}
		return
	}

	var records map[string]*model.ExitIdentity
	if err := json.Unmarshal(data, &records); err != nil {
		t.logger.Warn("corrupt tracker file, starting fresh",
			"path", t.path,
			"error", err,
		)
		return
	}

	for identity, rec := range records {
		if rec == nil {
			continue
		}
		// The map key is authoritative; older files may omit the
		// embedded identity field.
		rec.Identity = identity
		t.identities[identity] = rec
	}

	t.logger.Debug("tracker state loaded",
		"path", t.path,
		"identities", len(t.identities),
	)
}

// RecordAttempt records one fetch attempt through the given identity.
// Use model.UnknownIdentity when the identity could not be resolved.
// The in-memory record is updated immediately; call Save to persist.
func (t *IdentityTracker) RecordAttempt(identity, videoID string, attempt int, success bool) {
	if identity == "" {
		identity = model.UnknownIdentity
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.identities[identity]
	if !ok {
		rec = &model.ExitIdentity{Identity: identity}
		t.identities[identity] = rec
	}

	rec.LastUsed = t.now()
	rec.UseCount++
	if success {
		rec.SuccessCount++
	} else {
		rec.FailCount++
	}

	t.logger.Debug("attempt recorded",
		"identity", identity,
		"video_id", videoID,
		"attempt", attempt,
		"success", success,
	)
}

// FailedIdentitiesToday returns the set of identities with at least one
// failure whose last use falls on the current day. The set is advisory:
// rotation uses it to bias identity selection, never to hard-block when
// no alternative exists.
func (t *IdentityTracker) FailedIdentitiesToday() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.now().Format("2006-01-02")
	failed := make(map[string]struct{})
	for identity, rec := range t.identities {
		if identity == model.UnknownIdentity {
			continue
		}
		if rec.FailCount > 0 && rec.LastUsed.Format("2006-01-02") == today {
			failed[identity] = struct{}{}
		}
	}
	return failed
}

// CooldownIdentities returns the set of identities still inside the given
// cooldown period.
func (t *IdentityTracker) CooldownIdentities(cooldown time.Duration) map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	in := make(map[string]struct{})
	for identity, rec := range t.identities {
		if identity == model.UnknownIdentity {
			continue
		}
		if rec.InCooldown(now, cooldown) {
			in[identity] = struct{}{}
		}
	}
	return in
}

// Save persists the in-memory state to the JSON document. It is
// idempotent and safe to call repeatedly. A write failure is returned
// for logging but must not be escalated: in-memory decisions never
// depend on persistence succeeding.
func (t *IdentityTracker) Save() error {
	t.mu.Lock()
	data, err := json.MarshalIndent(t.identities, "", "  ")
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode tracker state: %w", err)
	}

	if dir := filepath.Dir(t.path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create tracker directory: %w", err)
		}
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write tracker file: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("failed to replace tracker file: %w", err)
	}
	return nil
}

// Stats returns aggregate counters for the current tracking day.
func (t *IdentityTracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.now().Format("2006-01-02")
	s := Stats{Date: today}
	for _, rec := range t.identities {
		if rec.LastUsed.Format("2006-01-02") != today {
			continue
		}
		s.TotalAttempts += rec.UseCount
		s.UniqueIdentities++
		s.Successful += rec.SuccessCount
		s.Failed += rec.FailCount
	}
	return s
}

// Identity returns a copy of the record for the given identity and
// whether it exists. Used by tests and the status command.
func (t *IdentityTracker) Identity(identity string) (model.ExitIdentity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.identities[identity]
	if !ok {
		return model.ExitIdentity{}, false
	}
	return *rec, true
}
