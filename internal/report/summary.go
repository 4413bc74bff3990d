package report

import (
	"time"

	"torfetch/internal/pool"
	"torfetch/internal/tracker"
)

// VideoResult is the outcome of one video in a session.
type VideoResult struct {
	// VideoID is the video identifier.
	VideoID string `json:"video_id"`

	// Title is the resolved video title, or the synthetic fallback.
	Title string `json:"title,omitempty"`

	// Method is the fetch path that produced the transcript, empty when
	// the fetch failed.
	Method string `json:"method,omitempty"`

	// Length is the transcript length in bytes.
	Length int `json:"length,omitempty"`

	// Duration is the estimated video duration.
	Duration string `json:"duration,omitempty"`

	// Error describes the failure, empty on success.
	Error string `json:"error,omitempty"`
}

// Succeeded reports whether the video produced a transcript.
func (v VideoResult) Succeeded() bool {
	return v.Error == "" && v.Method != ""
}

// Summary is the complete record of one fetch session.
type Summary struct {
	// StartedAt and FinishedAt bound the session.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Videos holds per-video outcomes in processing order.
	Videos []VideoResult `json:"videos"`

	// Tracker is the identity tracker aggregate for the session day.
	Tracker tracker.Stats `json:"tracker"`

	// Pool is the identity pool snapshot, nil when pool mode was off.
	Pool *pool.Stats `json:"pool,omitempty"`

	// Instances is how many daemon instances served the session.
	Instances int `json:"instances"`

	// Workers is the parallel worker count.
	Workers int `json:"workers"`
}

// Total returns the number of videos in the session.
func (s *Summary) Total() int {
	return len(s.Videos)
}

// Succeeded returns how many videos produced a transcript.
func (s *Summary) Succeeded() int {
	n := 0
	for _, v := range s.Videos {
		if v.Succeeded() {
			n++
		}
	}
	return n
}

// Failed returns how many videos produced no transcript.
func (s *Summary) Failed() int {
	return s.Total() - s.Succeeded()
}

// ByMethod returns how many videos were fetched via the given method.
func (s *Summary) ByMethod(method string) int {
	n := 0
	for _, v := range s.Videos {
		if v.Method == method {
			n++
		}
	}
	return n
}

// Elapsed returns the session wall-clock duration.
func (s *Summary) Elapsed() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
