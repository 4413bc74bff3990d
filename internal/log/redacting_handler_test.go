package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// TestRedactingHandlerMasksSensitiveKeys verifies that credential-shaped
// attribute keys never reach the output.
func TestRedactingHandlerMasksSensitiveKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"control password", "control_password", "hunter2"},
		{"bare password", "password", "hunter2"},
		{"prefixed password", "tor_control_password", "hunter2"},
		{"token", "token", "abc123"},
		{"cookie", "cookie", "session=xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewLogger(&buf, true)
			logger.Warn("testing", tt.key, tt.value)

			out := buf.String()
			if strings.Contains(out, tt.value) {
				t.Errorf("output contains sensitive value %q: %s", tt.value, out)
			}
			if !strings.Contains(out, MaskValue) {
				t.Errorf("output missing mask value: %s", out)
			}
		})
	}
}

// TestRedactingHandlerPassesNormalAttrs verifies that ordinary attributes
// are untouched.
func TestRedactingHandlerPassesNormalAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(&buf, true)
	logger.Info("fetch complete", "video_id", "dQw4w9WgXcQ", "exit_identity", "185.220.101.5")

	out := buf.String()
	if !strings.Contains(out, "dQw4w9WgXcQ") {
		t.Errorf("video_id missing from output: %s", out)
	}
	if !strings.Contains(out, "185.220.101.5") {
		t.Errorf("exit_identity missing from output: %s", out)
	}
}

// TestRedactingHandlerMasksGroups verifies recursion into grouped attrs.
func TestRedactingHandlerMasksGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(&buf, true)
	logger.Warn("connecting", slog.Group("controller",
		slog.String("addr", "127.0.0.1:9051"),
		slog.String("password", "hunter2"),
	))

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("grouped password leaked: %s", out)
	}
	if !strings.Contains(out, "127.0.0.1:9051") {
		t.Errorf("grouped addr missing: %s", out)
	}
}

// TestVerboseLevels verifies the verbose flag gates debug output.
func TestVerboseLevels(t *testing.T) {
	t.Parallel()

	t.Run("verbose enables debug", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := NewLogger(&buf, true)
		logger.Debug("debug message")
		if !strings.Contains(buf.String(), "debug message") {
			t.Error("expected debug message in verbose mode")
		}
	})

	t.Run("non-verbose suppresses info", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := NewLogger(&buf, false)
		logger.Info("info message")
		if buf.Len() != 0 {
			t.Errorf("expected no output, got %q", buf.String())
		}
	})
}

// TestNewJSONLogger verifies JSON output still redacts.
func TestNewJSONLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, true)
	logger.Warn("auth", "password", "hunter2")

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("JSON output leaked password: %s", out)
	}
}
