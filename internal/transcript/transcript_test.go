package transcript

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"torfetch/internal/fetcher"
	"torfetch/internal/model"
)

const listXML = `<?xml version="1.0" encoding="utf-8" ?>
<transcript_list>
  <track lang_code="en" name="" />
  <track lang_code="de" name="" />
</transcript_list>`

const captionXML = `<?xml version="1.0" encoding="utf-8" ?>
<transcript>
  <text start="0" dur="2.5">hello   world</text>
  <text start="2.5" dur="2">[Music] this is &amp; a test</text>
  <text start="150" dur="30">final line</text>
</transcript>`

// timedtextServer answers list and caption requests like the public
// endpoint does.
func timedtextServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") == "list" {
			_, _ = w.Write([]byte(listXML)) //nolint:errcheck
			return
		}
		if r.URL.Query().Get("lang") == "en" {
			_, _ = w.Write([]byte(captionXML)) //nolint:errcheck
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func plainClient() func() *http.Client {
	return func() *http.Client { return http.DefaultClient }
}

// TestYouTubeProviderFetch tests the primary timedtext path.
func TestYouTubeProviderFetch(t *testing.T) {
	t.Parallel()

	t.Run("fetches, cleans and tags the transcript", func(t *testing.T) {
		t.Parallel()

		srv := timedtextServer(t)
		p := NewYouTubeProvider(plainClient(), srv.URL+"/ip", WithBaseURL(srv.URL))

		result, err := p.Fetch(context.Background(), "abc123", []string{"en"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := "hello world this is & a test final line"
		if result.Transcript != want {
			t.Errorf("Transcript = %q, expected %q", result.Transcript, want)
		}
		if result.Length != len(want) {
			t.Errorf("Length = %d, expected %d", result.Length, len(want))
		}
		if result.Duration != "~3 minutes" {
			t.Errorf("Duration = %q, expected ~3 minutes", result.Duration)
		}
		if result.Method != model.MethodTor {
			t.Errorf("Method = %q, expected %q", result.Method, model.MethodTor)
		}
	})

	t.Run("regional language request matches the base track", func(t *testing.T) {
		t.Parallel()

		srv := timedtextServer(t)
		p := NewYouTubeProvider(plainClient(), srv.URL+"/ip", WithBaseURL(srv.URL))

		result, err := p.Fetch(context.Background(), "abc123", []string{"en-US"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Length == 0 {
			t.Error("expected a non-empty transcript for en-US via the en track")
		}
	})

	t.Run("no matching language is structural", func(t *testing.T) {
		t.Parallel()

		srv := timedtextServer(t)
		p := NewYouTubeProvider(plainClient(), srv.URL+"/ip", WithBaseURL(srv.URL))

		_, err := p.Fetch(context.Background(), "abc123", []string{"ja"})
		if !errors.Is(err, fetcher.ErrUnavailable) {
			t.Errorf("error = %v, expected ErrUnavailable", err)
		}
	})

	t.Run("throttling status maps to rate limited", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		t.Cleanup(srv.Close)

		p := NewYouTubeProvider(plainClient(), srv.URL+"/ip", WithBaseURL(srv.URL))
		_, err := p.Fetch(context.Background(), "abc123", []string{"en"})
		if !errors.Is(err, fetcher.ErrRateLimited) {
			t.Errorf("error = %v, expected ErrRateLimited", err)
		}
	})

	t.Run("empty track list is structural", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<transcript_list></transcript_list>`)) //nolint:errcheck
		}))
		t.Cleanup(srv.Close)

		p := NewYouTubeProvider(plainClient(), srv.URL+"/ip", WithBaseURL(srv.URL))
		_, err := p.Fetch(context.Background(), "abc123", []string{"en"})
		if !errors.Is(err, fetcher.ErrUnavailable) {
			t.Errorf("error = %v, expected ErrUnavailable", err)
		}
	})
}

// TestYouTubeProviderCheckAvailability tests the pre-flight check.
func TestYouTubeProviderCheckAvailability(t *testing.T) {
	t.Parallel()

	t.Run("served language is available", func(t *testing.T) {
		t.Parallel()

		srv := timedtextServer(t)
		p := NewYouTubeProvider(plainClient(), srv.URL+"/ip", WithBaseURL(srv.URL))

		available, reason, err := p.CheckAvailability(context.Background(), "abc123", []string{"en"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !available {
			t.Errorf("available = false (%s), expected true", reason)
		}
	})

	t.Run("unserved language reports the available codes", func(t *testing.T) {
		t.Parallel()

		srv := timedtextServer(t)
		p := NewYouTubeProvider(plainClient(), srv.URL+"/ip", WithBaseURL(srv.URL))

		available, reason, err := p.CheckAvailability(context.Background(), "abc123", []string{"ja"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if available {
			t.Error("available = true, expected false for unserved language")
		}
		if reason == "" {
			t.Error("expected a reason naming the available tracks")
		}
	})

	t.Run("listing failure is an error, not a verdict", func(t *testing.T) {
		t.Parallel()

		p := NewYouTubeProvider(plainClient(), "http://127.0.0.1:1/ip", WithBaseURL("http://127.0.0.1:1"))
		_, _, err := p.CheckAvailability(context.Background(), "abc123", []string{"en"})
		if err == nil {
			t.Error("expected an error for unreachable endpoint")
		}
	})
}

// TestDirectFetcher tests the fallback path.
func TestDirectFetcher(t *testing.T) {
	t.Parallel()

	srv := timedtextServer(t)
	d := NewDirectFetcher(WithDirectBaseURL(srv.URL))

	result, err := d.Fetch(context.Background(), "abc123", []string{"en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != model.MethodDirect {
		t.Errorf("Method = %q, expected %q", result.Method, model.MethodDirect)
	}
	if result.Length == 0 {
		t.Error("expected a non-empty transcript")
	}
}

// rotatorFunc adapts a function to TitleRotator.
type rotatorFunc func() (string, error)

func (f rotatorFunc) Rotate(context.Context, map[string]struct{}, int) (string, error) {
	return f()
}

// TestTitleFetcher tests oEmbed title resolution.
func TestTitleFetcher(t *testing.T) {
	t.Parallel()

	t.Run("returns the sanitized title", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"title": "Go  Concurrency: Patterns / Practice"}`)) //nolint:errcheck
		}))
		t.Cleanup(srv.Close)

		f := NewTitleFetcher(plainClient(), WithOEmbedURL(srv.URL), withTitleSleep(func(time.Duration) {}))
		got := f.Title(context.Background(), "abc123")
		want := "Go Concurrency_ Patterns _ Practice"
		if got != want {
			t.Errorf("Title = %q, expected %q", got, want)
		}
	})

	t.Run("falls back to synthetic name after exhausted retries", func(t *testing.T) {
		t.Parallel()

		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		t.Cleanup(srv.Close)

		rotations := 0
		f := NewTitleFetcher(plainClient(),
			WithOEmbedURL(srv.URL),
			WithTitleRotator(rotatorFunc(func() (string, error) {
				rotations++
				return "10.0.0.2", nil
			})),
			withTitleSleep(func(time.Duration) {}),
		)

		got := f.Title(context.Background(), "abc123")
		if got != "Video_abc123" {
			t.Errorf("Title = %q, expected fallback Video_abc123", got)
		}
		if calls != 3 {
			t.Errorf("oembed calls = %d, expected 3", calls)
		}
		if rotations != 2 {
			t.Errorf("rotations = %d, expected 2 between 3 attempts", rotations)
		}
	})

	t.Run("recovers on a later attempt", func(t *testing.T) {
		t.Parallel()

		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			if calls < 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"title": "Recovered"}`)) //nolint:errcheck
		}))
		t.Cleanup(srv.Close)

		f := NewTitleFetcher(plainClient(), WithOEmbedURL(srv.URL), withTitleSleep(func(time.Duration) {}))
		if got := f.Title(context.Background(), "abc123"); got != "Recovered" {
			t.Errorf("Title = %q, expected Recovered", got)
		}
	})
}

// TestSanitizeTitle tests filename sanitization.
func TestSanitizeTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"metacharacters become underscores", `a<b>c:d"e/f\g|h?i*j`, "a_b_c_d_e_f_g_h_i_j"},
		{"whitespace collapses", "too   many\t spaces ", "too many spaces"},
		{"plain title unchanged", "Plain Title", "Plain Title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := SanitizeTitle(tt.title); got != tt.want {
				t.Errorf("SanitizeTitle(%q) = %q, expected %q", tt.title, got, tt.want)
			}
		})
	}
}

// TestCleanTranscript tests non-speech marker removal.
func TestCleanTranscript(t *testing.T) {
	t.Parallel()

	got := cleanTranscript("  before [Music] middle [Applause]  after ")
	if got != "before middle after" {
		t.Errorf("cleanTranscript = %q, expected %q", got, "before middle after")
	}
}
