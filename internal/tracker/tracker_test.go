package tracker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"torfetch/internal/model"
)

func testClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// TestRecordAttemptInvariant verifies use_count == success_count + fail_count
// after arbitrary sequences of recorded attempts.
func TestRecordAttemptInvariant(t *testing.T) {
	t.Parallel()

	tr := New(filepath.Join(t.TempDir(), "tracking.json"))

	outcomes := []bool{true, false, false, true, false, true, true, false, false}
	for i, success := range outcomes {
		tr.RecordAttempt("185.220.101.5", "vid1", i+1, success)
	}
	tr.RecordAttempt("185.220.101.6", "vid2", 1, false)

	for _, identity := range []string{"185.220.101.5", "185.220.101.6"} {
		rec, ok := tr.Identity(identity)
		if !ok {
			t.Fatalf("identity %s not tracked", identity)
		}
		if rec.UseCount != rec.SuccessCount+rec.FailCount {
			t.Errorf("%s: use_count %d != success %d + fail %d",
				identity, rec.UseCount, rec.SuccessCount, rec.FailCount)
		}
	}

	rec, _ := tr.Identity("185.220.101.5")
	if rec.UseCount != len(outcomes) {
		t.Errorf("use_count = %d, expected %d", rec.UseCount, len(outcomes))
	}
	if rec.SuccessCount != 4 {
		t.Errorf("success_count = %d, expected 4", rec.SuccessCount)
	}
}

// TestEmptyIdentityRecordedAsUnknown verifies the probe-failure path.
func TestEmptyIdentityRecordedAsUnknown(t *testing.T) {
	t.Parallel()

	tr := New(filepath.Join(t.TempDir(), "tracking.json"))
	tr.RecordAttempt("", "vid1", 1, false)

	if _, ok := tr.Identity(model.UnknownIdentity); !ok {
		t.Error("empty identity should be recorded under the unknown marker")
	}
}

// TestFailedIdentitiesToday verifies day scoping and the unknown-identity
// exclusion.
func TestFailedIdentitiesToday(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	clock := now
	tr := New(filepath.Join(t.TempDir(), "tracking.json"),
		WithClock(func() time.Time { return clock }))

	// Yesterday's failure must not count.
	clock = now.Add(-24 * time.Hour)
	tr.RecordAttempt("10.0.0.1", "vid1", 1, false)

	// Today: one failure, one success, one unknown failure.
	clock = now
	tr.RecordAttempt("10.0.0.2", "vid2", 1, false)
	tr.RecordAttempt("10.0.0.3", "vid3", 1, true)
	tr.RecordAttempt(model.UnknownIdentity, "vid4", 1, false)

	failed := tr.FailedIdentitiesToday()
	if _, ok := failed["10.0.0.2"]; !ok {
		t.Error("today's failed identity missing from set")
	}
	if _, ok := failed["10.0.0.1"]; ok {
		t.Error("yesterday's failure should not be in today's set")
	}
	if _, ok := failed["10.0.0.3"]; ok {
		t.Error("successful identity should not be in failed set")
	}
	if _, ok := failed[model.UnknownIdentity]; ok {
		t.Error("unknown identity must never be in the failed set")
	}
}

// TestCooldownIdentities verifies the cooldown window query.
func TestCooldownIdentities(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	clock := now
	tr := New(filepath.Join(t.TempDir(), "tracking.json"),
		WithClock(func() time.Time { return clock }))

	clock = now.Add(-2 * time.Hour)
	tr.RecordAttempt("10.0.0.1", "vid1", 1, true)
	clock = now.Add(-10 * time.Minute)
	tr.RecordAttempt("10.0.0.2", "vid2", 1, true)
	clock = now

	in := tr.CooldownIdentities(time.Hour)
	if _, ok := in["10.0.0.2"]; !ok {
		t.Error("identity used 10m ago should be in cooldown")
	}
	if _, ok := in["10.0.0.1"]; ok {
		t.Error("identity used 2h ago should not be in cooldown")
	}
}

// TestSaveAndReload verifies the persistence round-trip reconstructs
// identical counters and timestamps.
func TestSaveAndReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tracking.json")
	now := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)

	tr := New(path, WithClock(testClock(now)))
	tr.RecordAttempt("10.0.0.1", "vid1", 1, true)
	tr.RecordAttempt("10.0.0.1", "vid1", 2, false)
	tr.RecordAttempt("10.0.0.2", "vid2", 1, false)
	if err := tr.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	// Save is idempotent.
	if err := tr.Save(); err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}

	reloaded := New(path, WithClock(testClock(now)))
	for _, identity := range []string{"10.0.0.1", "10.0.0.2"} {
		want, _ := tr.Identity(identity)
		got, ok := reloaded.Identity(identity)
		if !ok {
			t.Fatalf("identity %s lost in round-trip", identity)
		}
		if got.UseCount != want.UseCount || got.SuccessCount != want.SuccessCount || got.FailCount != want.FailCount {
			t.Errorf("%s: counters changed in round-trip: got %+v, want %+v", identity, got, want)
		}
		if !got.LastUsed.Equal(want.LastUsed) {
			t.Errorf("%s: last_used changed in round-trip: got %v, want %v", identity, got.LastUsed, want.LastUsed)
		}
	}
}

// TestMissingFileIsEmptyTracker verifies construction from nothing.
func TestMissingFileIsEmptyTracker(t *testing.T) {
	t.Parallel()

	tr := New(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if s := tr.Stats(); s.TotalAttempts != 0 || s.UniqueIdentities != 0 {
		t.Errorf("expected empty stats, got %+v", s)
	}
}

// TestCorruptFileStartsFresh verifies the availability-over-history policy.
func TestCorruptFileStartsFresh(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tracking.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	tr := New(path)
	if s := tr.Stats(); s.TotalAttempts != 0 {
		t.Errorf("corrupt file should yield empty state, got %+v", s)
	}
}

// TestForwardCompatibleDecode verifies unknown keys are tolerated.
func TestForwardCompatibleDecode(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tracking.json")
	doc := `{
		"10.0.0.1": {
			"last_used": "2026-08-24T12:00:00Z",
			"use_count": 3,
			"success_count": 2,
			"fail_count": 1,
			"future_field": {"nested": true}
		}
	}`
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}

	tr := New(path)
	rec, ok := tr.Identity("10.0.0.1")
	if !ok {
		t.Fatal("identity not loaded from document with unknown keys")
	}
	if rec.UseCount != 3 || rec.SuccessCount != 2 || rec.FailCount != 1 {
		t.Errorf("counters wrong after forward-compatible decode: %+v", rec)
	}
}

// TestStats verifies day-scoped aggregate counters.
func TestStats(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	clock := now
	tr := New(filepath.Join(t.TempDir(), "tracking.json"),
		WithClock(func() time.Time { return clock }))

	clock = now.Add(-25 * time.Hour)
	tr.RecordAttempt("10.0.0.9", "old", 1, true)
	clock = now
	tr.RecordAttempt("10.0.0.1", "vid1", 1, true)
	tr.RecordAttempt("10.0.0.1", "vid1", 2, false)
	tr.RecordAttempt("10.0.0.2", "vid2", 1, true)

	s := tr.Stats()
	if s.UniqueIdentities != 2 {
		t.Errorf("UniqueIdentities = %d, expected 2", s.UniqueIdentities)
	}
	if s.TotalAttempts != 3 {
		t.Errorf("TotalAttempts = %d, expected 3", s.TotalAttempts)
	}
	if s.Successful != 2 || s.Failed != 1 {
		t.Errorf("Successful/Failed = %d/%d, expected 2/1", s.Successful, s.Failed)
	}
}
