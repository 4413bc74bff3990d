package transcript

import (
	"context"
	"net/http"
	"time"

	"torfetch/internal/model"
)

// directTimeout bounds the whole direct fetch. The fallback runs once
// without retries, so it gets a single generous timeout instead of the
// engine's adaptive one.
const directTimeout = 30 * time.Second

// DirectFetcher fetches caption tracks over a plain connection, without
// the proxy. It is the shipped secondary fetch path: independent of the
// Tor transport, so a broken or exhausted circuit cannot take it down.
type DirectFetcher struct {
	client  *http.Client
	baseURL string
}

// DirectOption configures a DirectFetcher.
type DirectOption func(*DirectFetcher)

// WithDirectBaseURL overrides the timedtext endpoint.
func WithDirectBaseURL(baseURL string) DirectOption {
	return func(d *DirectFetcher) {
		d.baseURL = baseURL
	}
}

// WithDirectClient overrides the HTTP client.
func WithDirectClient(client *http.Client) DirectOption {
	return func(d *DirectFetcher) {
		d.client = client
	}
}

// NewDirectFetcher creates a DirectFetcher with its own HTTP client.
func NewDirectFetcher(opts ...DirectOption) *DirectFetcher {
	d := &DirectFetcher{
		client:  &http.Client{Timeout: directTimeout},
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch retrieves the transcript directly, tagged with the direct
// method marker.
func (d *DirectFetcher) Fetch(ctx context.Context, videoID string, languages []string) (*model.FetchResult, error) {
	result, err := fetchTimedtext(ctx, d.client, d.baseURL, videoID, languages)
	if err != nil {
		return nil, err
	}
	result.Method = model.MethodDirect
	return result, nil
}
