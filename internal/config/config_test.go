package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// TestDurationYAML tests the human-readable duration round trip.
func TestDurationYAML(t *testing.T) {
	t.Parallel()

	out, err := yaml.Marshal(Duration(90 * time.Minute))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != "1h30m0s\n" {
		t.Errorf("Marshal = %q, expected %q", out, "1h30m0s\n")
	}

	var d Duration
	if err := yaml.Unmarshal(out, &d); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if time.Duration(d) != 90*time.Minute {
		t.Errorf("round trip = %v, expected 90m", time.Duration(d))
	}

	if err := yaml.Unmarshal([]byte("soon"), &d); err == nil {
		t.Error("expected error for non-duration value")
	}
}

// TestNewConfigDefaults verifies the documented defaults.
func TestNewConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %q, expected 127.0.0.1", cfg.Host)
	}
	if cfg.BaseSocksPort != 9050 {
		t.Errorf("BaseSocksPort = %d, expected 9050", cfg.BaseSocksPort)
	}
	if cfg.BaseControlPort != 9051 {
		t.Errorf("BaseControlPort = %d, expected 9051", cfg.BaseControlPort)
	}
	if cfg.PortIncrement != 2 {
		t.Errorf("PortIncrement = %d, expected 2", cfg.PortIncrement)
	}
	if cfg.Policy.Cooldown != time.Hour {
		t.Errorf("Policy.Cooldown = %v, expected 1h", cfg.Policy.Cooldown)
	}
	if len(cfg.Languages) != 1 || cfg.Languages[0] != "en" {
		t.Errorf("Languages = %v, expected [en]", cfg.Languages)
	}
	if !cfg.DirectFallback {
		t.Error("DirectFallback should default to true")
	}
}

// TestConfigValidate tests validation error cases.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		cfg := NewConfig()
		cfg.VideoIDs = []string{"dQw4w9WgXcQ"}
		return cfg
	}

	t.Run("valid config passes", func(t *testing.T) {
		t.Parallel()

		if err := valid().Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"no video ids", func(c *Config) { c.VideoIDs = nil }, ErrNoVideoID},
		{"zero retries", func(c *Config) { c.Policy.MaxRetries = 0 }, ErrInvalidMaxRetries},
		{"zero base timeout", func(c *Config) { c.Policy.BaseTimeout = 0 }, ErrInvalidTimeout},
		{"max below base", func(c *Config) { c.Policy.MaxTimeout = c.Policy.BaseTimeout / 2 }, ErrInvalidTimeout},
		{"negative cooldown", func(c *Config) { c.Policy.Cooldown = -time.Minute }, ErrInvalidCooldown},
		{"zero workers", func(c *Config) { c.Workers = 0 }, ErrInvalidWorkers},
		{"no languages", func(c *Config) { c.Languages = nil }, ErrNoLanguages},
		{"conflicting report formats", func(c *Config) { c.JSONReport, c.MarkdownReport = true, true }, ErrConflictingReportFormats},
		{"conflicting tor modes", func(c *Config) { c.ExternalTor, c.EmbeddedTor = "127.0.0.1:9050", true }, ErrConflictingTorModes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, expected %v", err, tt.wantErr)
			}
		})
	}
}

// TestEffectivePoolSize verifies PoolSize defaulting.
func TestEffectivePoolSize(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.Workers = 4
	if got := cfg.EffectivePoolSize(); got != 4 {
		t.Errorf("EffectivePoolSize() = %d, expected Workers (4)", got)
	}
	cfg.PoolSize = 7
	if got := cfg.EffectivePoolSize(); got != 7 {
		t.Errorf("EffectivePoolSize() = %d, expected 7", got)
	}
}

// TestLoadConfigFile tests YAML loading and overlay behavior.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("missing file returns ErrConfigNotFound", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("invalid yaml returns error", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, []byte("languages: [en\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfigFile(path); err == nil {
			t.Error("expected parse error, got nil")
		}
	})

	t.Run("values overlay onto config", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		content := "languages:\n  - ja\n  - en\ncooldown: 30m\nmaxRetries: 3\ncontrolPassword: hunter2\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		f, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cfg := NewConfig()
		f.Apply(cfg)

		if cfg.Policy.Cooldown != 30*time.Minute {
			t.Errorf("Cooldown = %v, expected 30m", cfg.Policy.Cooldown)
		}
		if cfg.Policy.MaxRetries != 3 {
			t.Errorf("MaxRetries = %d, expected 3", cfg.Policy.MaxRetries)
		}
		if len(cfg.Languages) != 2 || cfg.Languages[0] != "ja" {
			t.Errorf("Languages = %v, expected [ja en]", cfg.Languages)
		}
		if cfg.ControlPassword != "hunter2" {
			t.Errorf("ControlPassword not applied")
		}
	})

	t.Run("zero values keep defaults", func(t *testing.T) {
		t.Parallel()

		f := &File{}
		cfg := NewConfig()
		f.Apply(cfg)
		if cfg.Host != DefaultHost {
			t.Errorf("Host = %q, expected default", cfg.Host)
		}
		if len(cfg.Languages) != 1 {
			t.Errorf("Languages changed by empty overlay: %v", cfg.Languages)
		}
	})
}

// TestFindConfigFile tests explicit-path resolution.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("explicit existing path wins", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(path, []byte("{}"), 0600); err != nil {
			t.Fatal(err)
		}
		if got := FindConfigFile(path); got != path {
			t.Errorf("FindConfigFile(%q) = %q", path, got)
		}
	})

	t.Run("explicit missing path returns empty", func(t *testing.T) {
		t.Parallel()

		if got := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})
}
