package database

import (
	"context"
	"testing"
	"time"

	"torfetch/internal/model"
)

func openTestDB(t *testing.T) *AttemptDB {
	t.Helper()

	adb, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := adb.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return adb
}

// TestOpen tests database creation semantics.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates the database file when allowed", func(t *testing.T) {
		t.Parallel()

		adb := openTestDB(t)
		if adb.Path() == "" {
			t.Error("expected a database path")
		}
	})

	t.Run("missing database without create option is an error", func(t *testing.T) {
		t.Parallel()

		opts := DefaultOptions()
		opts.CreateIfNotExists = false
		if _, err := Open(t.TempDir(), opts); err == nil {
			t.Error("expected error for missing database")
		}
	})
}

// TestRecordAndQuery tests the append-only attempt log.
func TestRecordAndQuery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adb := openTestDB(t)

	attempts := []model.FetchAttempt{
		{VideoID: "vid-1", Number: 1, Identity: "1.1.1.1", Outcome: model.OutcomeFailure, ErrorClass: "rate_limit"},
		{VideoID: "vid-1", Number: 2, Identity: "2.2.2.2", Outcome: model.OutcomeSuccess},
		{VideoID: "vid-2", Number: 1, Identity: "1.1.1.1", Outcome: model.OutcomeFailure, ErrorClass: "transient"},
	}
	for _, a := range attempts {
		if err := adb.Record(ctx, a); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	t.Run("attempts come back per video in insertion order", func(t *testing.T) {
		got, err := adb.Attempts(ctx, "vid-1")
		if err != nil {
			t.Fatalf("Attempts: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("attempts = %d, expected 2", len(got))
		}
		if got[0].Number != 1 || got[0].Identity != "1.1.1.1" || got[0].ErrorClass != "rate_limit" {
			t.Errorf("first attempt = %+v", got[0])
		}
		if got[1].Outcome != model.OutcomeSuccess || got[1].ErrorClass != "" {
			t.Errorf("second attempt = %+v", got[1])
		}
	})

	t.Run("recent failures are distinct identities", func(t *testing.T) {
		got, err := adb.RecentFailures(ctx, time.Hour, 10)
		if err != nil {
			t.Fatalf("RecentFailures: %v", err)
		}
		if len(got) != 1 || got[0] != "1.1.1.1" {
			t.Errorf("RecentFailures = %v, expected [1.1.1.1]", got)
		}
	})

	t.Run("outcome counts aggregate across videos", func(t *testing.T) {
		counts, err := adb.CountByOutcome(ctx)
		if err != nil {
			t.Fatalf("CountByOutcome: %v", err)
		}
		if counts[model.OutcomeFailure] != 2 || counts[model.OutcomeSuccess] != 1 {
			t.Errorf("counts = %v, expected 2 failures and 1 success", counts)
		}
	})

	t.Run("unknown video has no attempts", func(t *testing.T) {
		got, err := adb.Attempts(ctx, "missing")
		if err != nil {
			t.Fatalf("Attempts: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("attempts = %v, expected none", got)
		}
	})
}
