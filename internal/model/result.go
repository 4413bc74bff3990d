package model

// Fetch methods recorded on FetchResult.Method. The method marker tells
// the caller which path actually produced the transcript.
const (
	// MethodTor marks a transcript fetched through the Tor proxy.
	MethodTor = "tor"

	// MethodDirect marks a transcript fetched over a direct connection,
	// the shipped secondary path.
	MethodDirect = "direct"
)

// FetchResult is a successfully fetched transcript.
// A nil *FetchResult from the engine means total exhaustion: both the
// primary and the secondary path failed.
type FetchResult struct {
	// Transcript is the cleaned transcript text.
	Transcript string `json:"transcript"`

	// Length is len(Transcript) in bytes. Kept as an explicit field
	// because report output and downstream consumers use it directly.
	Length int `json:"length"`

	// Duration is a human-readable estimate of the video length derived
	// from the last caption snippet, e.g. "~12 minutes". Empty when the
	// fetch path cannot estimate it.
	Duration string `json:"duration,omitempty"`

	// Method identifies the fetch path that produced the result.
	Method string `json:"method"`
}
