package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"torfetch/internal/model"
)

// SimpleWriter outputs human-readable text summaries.
// This format is designed for terminal display at the end of a session.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// verbose enables the per-video result listing.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables the per-video result listing.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary in human-readable format.
func (w *SimpleWriter) Write(summary *Summary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeTotals(&sb, summary)
	if w.verbose {
		w.writeVideos(&sb, summary)
	}
	w.writeTrackerStats(&sb, summary)
	w.writePoolStats(&sb, summary)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the session header.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, summary *Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n")
	sb.WriteString("                 TRANSCRIPT FETCH SESSION\n")
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Started:   %s\n", summary.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Elapsed:   %s\n", summary.Elapsed().Round(time.Second)))
	sb.WriteString(fmt.Sprintf("Workers:   %d across %d tor instance(s)\n", summary.Workers, summary.Instances))
	sb.WriteString("\n")
}

// writeTotals writes the success and method breakdown.
func (w *SimpleWriter) writeTotals(sb *strings.Builder, summary *Summary) {
	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n")
	sb.WriteString("RESULTS\n")
	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  Videos:      %d\n", summary.Total()))
	sb.WriteString(fmt.Sprintf("  Succeeded:   %d\n", summary.Succeeded()))
	sb.WriteString(fmt.Sprintf("    via tor:    %d\n", summary.ByMethod(model.MethodTor)))
	sb.WriteString(fmt.Sprintf("    via direct: %d\n", summary.ByMethod(model.MethodDirect)))
	sb.WriteString(fmt.Sprintf("  Failed:      %d\n", summary.Failed()))
	sb.WriteString("\n")
}

// writeVideos writes the per-video listing.
func (w *SimpleWriter) writeVideos(sb *strings.Builder, summary *Summary) {
	if len(summary.Videos) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n")
	sb.WriteString("VIDEOS\n")
	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n\n")

	for _, v := range summary.Videos {
		if v.Succeeded() {
			sb.WriteString(fmt.Sprintf("  [+] %s (%s, %d chars", v.VideoID, v.Method, v.Length))
			if v.Duration != "" {
				sb.WriteString(", " + v.Duration)
			}
			sb.WriteString(")\n")
			continue
		}
		sb.WriteString(fmt.Sprintf("  [x] %s: %s\n", v.VideoID, v.Error))
	}
	sb.WriteString("\n")
}

// writeTrackerStats writes the identity tracker aggregates.
func (w *SimpleWriter) writeTrackerStats(sb *strings.Builder, summary *Summary) {
	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n")
	sb.WriteString("EXIT IDENTITIES (" + summary.Tracker.Date + ")\n")
	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  Attempts:          %d\n", summary.Tracker.TotalAttempts))
	sb.WriteString(fmt.Sprintf("  Unique identities: %d\n", summary.Tracker.UniqueIdentities))
	sb.WriteString(fmt.Sprintf("  Successful:        %d\n", summary.Tracker.Successful))
	sb.WriteString(fmt.Sprintf("  Failed:            %d\n", summary.Tracker.Failed))
	sb.WriteString("\n")
}

// writePoolStats writes the pool snapshot when pool mode was on.
func (w *SimpleWriter) writePoolStats(sb *strings.Builder, summary *Summary) {
	if summary.Pool == nil {
		return
	}

	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n")
	sb.WriteString("IDENTITY POOL\n")
	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  Target:          %d\n", summary.Pool.TargetSize))
	sb.WriteString(fmt.Sprintf("  Allocated:       %d\n", summary.Pool.Allocated))
	sb.WriteString(fmt.Sprintf("  Unused:          %d\n", summary.Pool.QueueSize))
	sb.WriteString(fmt.Sprintf("  Failed attempts: %d\n", summary.Pool.FailedAttempts))
	sb.WriteString("\n")
}
