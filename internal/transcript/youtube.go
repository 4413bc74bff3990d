package transcript

import (
	"context"
	"log/slog"
	"net/http"

	"torfetch/internal/model"
	"torfetch/internal/tor"
)

// YouTubeProvider fetches caption tracks through the Tor data channel.
// It is the engine's primary fetch path and also answers the pre-flight
// availability check.
//
// The http.Client factory is called per request so that a circuit
// rotation's transport teardown takes effect: a client built before the
// rotation still rides the old circuit.
type YouTubeProvider struct {
	client   func() *http.Client
	baseURL  string
	resolver *tor.Resolver
	logger   *slog.Logger
}

// YouTubeOption configures a YouTubeProvider.
type YouTubeOption func(*YouTubeProvider)

// WithBaseURL overrides the timedtext endpoint. Tests point this at a
// local server.
func WithBaseURL(baseURL string) YouTubeOption {
	return func(p *YouTubeProvider) {
		p.baseURL = baseURL
	}
}

// WithProviderLogger sets the logger. Defaults to slog.Default().
func WithProviderLogger(logger *slog.Logger) YouTubeOption {
	return func(p *YouTubeProvider) {
		p.logger = logger
	}
}

// NewYouTubeProvider creates a provider whose requests and identity
// probes both go through the clients produced by the given factory.
func NewYouTubeProvider(client func() *http.Client, probeURL string, opts ...YouTubeOption) *YouTubeProvider {
	p := &YouTubeProvider{
		client:  client,
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.resolver = tor.NewResolver(probeURL, client)
	return p
}

// Fetch retrieves the transcript for videoID in the first matching
// language, tagged with the tor method marker.
func (p *YouTubeProvider) Fetch(ctx context.Context, videoID string, languages []string) (*model.FetchResult, error) {
	result, err := fetchTimedtext(ctx, p.client(), p.baseURL, videoID, languages)
	if err != nil {
		return nil, err
	}
	result.Method = model.MethodTor

	p.logger.Debug("transcript fetched through tor",
		"video_id", videoID,
		"length", result.Length,
		"duration", result.Duration,
	)
	return result, nil
}

// ResolveIdentity reports the exit identity of the current circuit.
func (p *YouTubeProvider) ResolveIdentity(ctx context.Context) (string, error) {
	return p.resolver.ResolveIdentity(ctx)
}

// CheckAvailability lists the caption tracks and reports whether any of
// the requested languages is served. A listing failure is returned as an
// error so the caller can proceed rather than fail fast on a blind spot.
func (p *YouTubeProvider) CheckAvailability(ctx context.Context, videoID string, languages []string) (bool, string, error) {
	tracks, err := listTracks(ctx, p.client(), p.baseURL, videoID)
	if err != nil {
		return false, "", err
	}
	if len(tracks) == 0 {
		return false, "no caption tracks for this video", nil
	}
	if _, ok := matchTrack(tracks, languages); !ok {
		return false, "no caption track in requested languages, available: " + availableCodes(tracks), nil
	}
	return true, "", nil
}
