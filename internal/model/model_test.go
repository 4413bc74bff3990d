package model

import (
	"testing"
	"time"
)

// TestExitIdentityInCooldown tests the cooldown window calculation.
func TestExitIdentityInCooldown(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	t.Run("recently used identity is in cooldown", func(t *testing.T) {
		t.Parallel()

		id := &ExitIdentity{Identity: "10.0.0.1", LastUsed: now.Add(-30 * time.Minute)}
		if !id.InCooldown(now, time.Hour) {
			t.Error("expected identity used 30m ago to be in cooldown with 1h period")
		}
	})

	t.Run("old identity is not in cooldown", func(t *testing.T) {
		t.Parallel()

		id := &ExitIdentity{Identity: "10.0.0.1", LastUsed: now.Add(-2 * time.Hour)}
		if id.InCooldown(now, time.Hour) {
			t.Error("expected identity used 2h ago to be out of cooldown with 1h period")
		}
	})

	t.Run("boundary is exclusive", func(t *testing.T) {
		t.Parallel()

		id := &ExitIdentity{Identity: "10.0.0.1", LastUsed: now.Add(-time.Hour)}
		if id.InCooldown(now, time.Hour) {
			t.Error("identity used exactly cooldown ago should not be in cooldown")
		}
	})
}

// TestInstanceAddrs tests host:port formatting for both channels.
func TestInstanceAddrs(t *testing.T) {
	t.Parallel()

	inst := Instance{ID: 1, SocksPort: 9050, ControlPort: 9051, Host: "127.0.0.1"}

	if got := inst.SocksAddr(); got != "127.0.0.1:9050" {
		t.Errorf("SocksAddr() = %q, expected %q", got, "127.0.0.1:9050")
	}
	if got := inst.ControlAddr(); got != "127.0.0.1:9051" {
		t.Errorf("ControlAddr() = %q, expected %q", got, "127.0.0.1:9051")
	}
}

// TestRetryPolicyAttemptTimeout tests geometric timeout growth with cap.
func TestRetryPolicyAttemptTimeout(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{
		BaseTimeout: 60 * time.Second,
		MaxTimeout:  120 * time.Second,
	}

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"first attempt uses base timeout", 0, 60 * time.Second},
		{"second attempt grows by 1.5", 1, 90 * time.Second},
		{"third attempt hits the cap", 2, 120 * time.Second},
		{"later attempts stay capped", 5, 120 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := policy.AttemptTimeout(tt.attempt); got != tt.want {
				t.Errorf("AttemptTimeout(%d) = %v, expected %v", tt.attempt, got, tt.want)
			}
		})
	}
}

// TestDefaultRetryPolicy verifies the documented defaults.
func TestDefaultRetryPolicy(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()
	if p.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, expected 5", p.MaxRetries)
	}
	if p.Cooldown != time.Hour {
		t.Errorf("Cooldown = %v, expected 1h", p.Cooldown)
	}
	if p.MaxRotationAttempts != 5 {
		t.Errorf("MaxRotationAttempts = %d, expected 5", p.MaxRotationAttempts)
	}
}
