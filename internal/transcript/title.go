package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Title fetch defaults.
const (
	// DefaultOEmbedURL is the public oEmbed endpoint.
	DefaultOEmbedURL = "https://www.youtube.com/oembed"

	// titleRetries is how many oEmbed attempts are made before falling
	// back to the synthetic Video_<id> name.
	titleRetries = 3

	// maxTitleLength caps sanitized titles for filesystem use.
	maxTitleLength = 100
)

var unsafeFilenameRe = regexp.MustCompile(`[<>:"/\\|?*]`)

// TitleRotator requests a new circuit between title retries.
type TitleRotator interface {
	Rotate(ctx context.Context, avoid map[string]struct{}, maxAttempts int) (string, error)
}

// TitleFetcher resolves video titles via the oEmbed endpoint. Titles
// name output files, so a failed lookup is never fatal: Title falls back
// to a synthetic name built from the video id.
type TitleFetcher struct {
	client  func() *http.Client
	baseURL string
	rotator TitleRotator
	logger  *slog.Logger

	// sleep and jitter are indirected for tests.
	sleep  func(time.Duration)
	jitter func() float64
}

// TitleOption configures a TitleFetcher.
type TitleOption func(*TitleFetcher)

// WithOEmbedURL overrides the oEmbed endpoint.
func WithOEmbedURL(baseURL string) TitleOption {
	return func(t *TitleFetcher) {
		t.baseURL = baseURL
	}
}

// WithTitleRotator enables circuit rotation between title retries.
func WithTitleRotator(r TitleRotator) TitleOption {
	return func(t *TitleFetcher) {
		t.rotator = r
	}
}

// WithTitleLogger sets the logger. Defaults to slog.Default().
func WithTitleLogger(logger *slog.Logger) TitleOption {
	return func(t *TitleFetcher) {
		t.logger = logger
	}
}

// withTitleSleep overrides the backoff sleep. Test-only.
func withTitleSleep(fn func(time.Duration)) TitleOption {
	return func(t *TitleFetcher) {
		t.sleep = fn
	}
}

// NewTitleFetcher creates a TitleFetcher issuing requests through the
// clients produced by the given factory.
func NewTitleFetcher(client func() *http.Client, opts ...TitleOption) *TitleFetcher {
	t := &TitleFetcher{
		client:  client,
		baseURL: DefaultOEmbedURL,
		sleep:   time.Sleep,
		jitter:  rand.Float64,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Title returns the sanitized video title, retrying with rotation and
// backoff, or Video_<id> when every attempt fails.
func (t *TitleFetcher) Title(ctx context.Context, videoID string) string {
	for attempt := 0; attempt < titleRetries; attempt++ {
		if attempt > 0 {
			if t.rotator != nil {
				if _, err := t.rotator.Rotate(ctx, nil, 1); err != nil {
					t.logger.Debug("rotation before title retry failed", "error", err)
				}
			}
			t.sleep(time.Duration((math.Pow(2, float64(attempt)) + t.jitter()/2) * float64(time.Second)))
		}

		title, err := t.fetch(ctx, videoID)
		if err == nil {
			return title
		}
		t.logger.Warn("title fetch attempt failed",
			"video_id", videoID,
			"attempt", attempt+1,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}
	return FallbackTitle(videoID)
}

// fetch performs one oEmbed lookup.
func (t *TitleFetcher) fetch(ctx context.Context, videoID string) (string, error) {
	q := url.Values{}
	q.Set("url", "https://www.youtube.com/watch?v="+videoID)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := t.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oembed status %d", resp.StatusCode)
	}

	var payload struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode oembed response: %w", err)
	}
	if payload.Title == "" {
		return "", fmt.Errorf("oembed response has no title")
	}
	return SanitizeTitle(payload.Title), nil
}

// SanitizeTitle makes a title safe for filename use: filesystem
// metacharacters become underscores, whitespace is collapsed, and the
// result is capped in length.
func SanitizeTitle(title string) string {
	title = unsafeFilenameRe.ReplaceAllString(title, "_")
	title = strings.TrimSpace(whitespaceRe.ReplaceAllString(title, " "))
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}
	return title
}

// FallbackTitle is the synthetic name used when no title could be
// fetched.
func FallbackTitle(videoID string) string {
	return "Video_" + videoID
}
