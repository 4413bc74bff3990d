// Package main provides the entry point for the torfetch CLI.
//
// torfetch fetches video transcripts through local Tor daemon instances,
// rotating exit identities between retries to work around per-IP rate
// limits.
//
// Usage:
//
//	torfetch fetch <video-id> [video-id...]
//	torfetch status
//
// See --help for all available options.
package main

// main is the entry point for torfetch.
func main() {
	Execute()
}
