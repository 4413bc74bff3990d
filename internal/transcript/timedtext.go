package transcript

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"torfetch/internal/fetcher"
	"torfetch/internal/model"
)

// DefaultBaseURL is the public timedtext endpoint.
const DefaultBaseURL = "https://video.google.com/timedtext"

// maxTranscriptBytes caps the caption document size. Real caption files
// are tens of kilobytes; anything larger is not a transcript.
const maxTranscriptBytes = 10 << 20

// trackList is the XML track listing returned by type=list.
type trackList struct {
	XMLName xml.Name `xml:"transcript_list"`
	Tracks  []track  `xml:"track"`
}

// track describes one available caption track.
type track struct {
	LangCode string `xml:"lang_code,attr"`
	Name     string `xml:"name,attr"`
}

// captionDoc is the XML caption document for one track.
type captionDoc struct {
	XMLName xml.Name  `xml:"transcript"`
	Texts   []snippet `xml:"text"`
}

// snippet is one timed caption line.
type snippet struct {
	Start float64 `xml:"start,attr"`
	Dur   float64 `xml:"dur,attr"`
	Text  string  `xml:",chardata"`
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// listTracks fetches the available caption tracks for a video.
func listTracks(ctx context.Context, client *http.Client, baseURL, videoID string) ([]track, error) {
	q := url.Values{}
	q.Set("type", "list")
	q.Set("v", videoID)

	body, err := get(ctx, client, baseURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to list caption tracks: %w", err)
	}

	var list trackList
	if err := xml.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode track list: %w", err)
	}
	return list.Tracks, nil
}

// matchTrack picks the caption track best matching the requested
// languages, in preference order.
func matchTrack(tracks []track, languages []string) (track, bool) {
	if len(tracks) == 0 {
		return track{}, false
	}

	available := make([]language.Tag, 0, len(tracks))
	for _, tr := range tracks {
		available = append(available, language.Make(tr.LangCode))
	}
	matcher := language.NewMatcher(available)

	desired := make([]language.Tag, 0, len(languages))
	for _, lang := range languages {
		desired = append(desired, language.Make(lang))
	}

	_, idx, conf := matcher.Match(desired...)
	if conf == language.No {
		return track{}, false
	}
	return tracks[idx], true
}

// fetchTrack downloads and assembles one caption track into a result.
func fetchTrack(ctx context.Context, client *http.Client, baseURL, videoID string, tr track) (*model.FetchResult, error) {
	q := url.Values{}
	q.Set("v", videoID)
	q.Set("lang", tr.LangCode)
	if tr.Name != "" {
		q.Set("name", tr.Name)
	}

	body, err := get(ctx, client, baseURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch captions: %w", err)
	}

	var doc captionDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode captions: %w", err)
	}
	if len(doc.Texts) == 0 {
		return nil, fmt.Errorf("%w: caption track %s is empty", fetcher.ErrUnavailable, tr.LangCode)
	}

	parts := make([]string, 0, len(doc.Texts))
	for _, s := range doc.Texts {
		parts = append(parts, s.Text)
	}
	text := cleanTranscript(strings.Join(parts, " "))

	last := doc.Texts[len(doc.Texts)-1]
	return &model.FetchResult{
		Transcript: text,
		Length:     len(text),
		Duration:   estimateDuration(last.Start + last.Dur),
	}, nil
}

// fetchTimedtext runs the full list-match-fetch sequence shared by the
// Tor and direct paths.
func fetchTimedtext(ctx context.Context, client *http.Client, baseURL, videoID string, languages []string) (*model.FetchResult, error) {
	tracks, err := listTracks(ctx, client, baseURL, videoID)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no caption tracks for %s", fetcher.ErrUnavailable, videoID)
	}

	tr, ok := matchTrack(tracks, languages)
	if !ok {
		return nil, fmt.Errorf("%w: no caption track in %s, available: %s",
			fetcher.ErrUnavailable, strings.Join(languages, ","), availableCodes(tracks))
	}
	return fetchTrack(ctx, client, baseURL, videoID, tr)
}

// get issues one GET and returns the body, mapping throttling status
// codes to ErrRateLimited.
func get(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests, http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", fetcher.ErrRateLimited, resp.StatusCode)
	default:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTranscriptBytes))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// cleanTranscript collapses whitespace and strips non-speech markers.
func cleanTranscript(text string) string {
	text = strings.ReplaceAll(text, "[Music]", "")
	text = strings.ReplaceAll(text, "[Applause]", "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// estimateDuration renders the video length implied by the last caption.
func estimateDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	return fmt.Sprintf("~%d minutes", int(seconds/60))
}

// availableCodes lists up to five available track language codes for
// error messages.
func availableCodes(tracks []track) string {
	codes := make([]string, 0, 5)
	for _, tr := range tracks {
		codes = append(codes, tr.LangCode)
		if len(codes) == 5 {
			break
		}
	}
	return strings.Join(codes, ",")
}
