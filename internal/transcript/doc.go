// Package transcript fetches YouTube caption tracks through the
// timedtext API.
//
// Two fetch paths share the same core: YouTubeProvider routes requests
// through the Tor data channel and is the engine's primary path, while
// DirectFetcher uses a plain connection and serves as the independent
// fallback. TitleFetcher resolves video titles via the oEmbed endpoint
// for output file naming.
package transcript
