package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"torfetch/internal/model"
)

// MarkdownWriter outputs summaries in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent
// markdown generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given
// writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(summary *Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeTotals(md, summary)
	w.writeVideos(md, summary)
	w.writeTrackerStats(md, summary)
	w.writePoolStats(md, summary)

	return len(md.String()), md.Build()
}

// writeHeader writes the session overview table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *Summary) {
	md.H1("Transcript Fetch Session")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Started", summary.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", summary.Elapsed().String()},
			{"Workers", strconv.Itoa(summary.Workers)},
			{"Tor instances", strconv.Itoa(summary.Instances)},
		},
	})
	md.PlainText("")
}

// writeTotals writes the success breakdown and an alert matching the
// overall outcome.
func (w *MarkdownWriter) writeTotals(md *markdown.Markdown, summary *Summary) {
	md.H2("Results")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"Fetched via tor", strconv.Itoa(summary.ByMethod(model.MethodTor))},
			{"Fetched via direct fallback", strconv.Itoa(summary.ByMethod(model.MethodDirect))},
			{"Failed", strconv.Itoa(summary.Failed())},
			{"**Total**", "**" + strconv.Itoa(summary.Total()) + "**"},
		},
	})
	md.PlainText("")

	if summary.Succeeded() > 0 {
		w.writePieChart(md, summary)
	}

	switch {
	case summary.Total() == 0:
		md.Note("No videos were processed.")
	case summary.Failed() == 0:
		md.Tip("All transcripts were fetched successfully.")
	case summary.Succeeded() == 0:
		md.Cautionf("All %d video(s) failed. Check daemon reachability and identity cooldowns.", summary.Failed())
	default:
		md.Warningf("%d video(s) produced no transcript.", summary.Failed())
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of the method distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary *Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Fetch Method Distribution"),
		piechart.WithShowData(true),
	)

	if n := summary.ByMethod(model.MethodTor); n > 0 {
		chart.LabelAndIntValue("Tor", uint64(n))
	}
	if n := summary.ByMethod(model.MethodDirect); n > 0 {
		chart.LabelAndIntValue("Direct", uint64(n))
	}
	if n := summary.Failed(); n > 0 {
		chart.LabelAndIntValue("Failed", uint64(n))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeVideos writes the per-video result table.
func (w *MarkdownWriter) writeVideos(md *markdown.Markdown, summary *Summary) {
	md.H2("Videos")
	md.PlainText("")

	if len(summary.Videos) == 0 {
		md.PlainText("No videos were processed.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(summary.Videos))
	for i, v := range summary.Videos {
		status := "fetched"
		detail := v.Duration
		if !v.Succeeded() {
			status = "failed"
			detail = truncateString(v.Error, 60)
		}
		method := v.Method
		if method == "" {
			method = "-"
		}
		rows[i] = []string{
			"`" + v.VideoID + "`",
			truncateString(v.Title, 50),
			method,
			strconv.Itoa(v.Length),
			status,
			detail,
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Video", "Title", "Method", "Length", "Status", "Detail"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeTrackerStats writes the identity tracker aggregates.
func (w *MarkdownWriter) writeTrackerStats(md *markdown.Markdown, summary *Summary) {
	md.H2("Exit Identities")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Tracking day", summary.Tracker.Date},
			{"Attempts", strconv.Itoa(summary.Tracker.TotalAttempts)},
			{"Unique identities", strconv.Itoa(summary.Tracker.UniqueIdentities)},
			{"Successful", strconv.Itoa(summary.Tracker.Successful)},
			{"Failed", strconv.Itoa(summary.Tracker.Failed)},
		},
	})
	md.PlainText("")
}

// writePoolStats writes the pool snapshot when pool mode was on.
func (w *MarkdownWriter) writePoolStats(md *markdown.Markdown, summary *Summary) {
	if summary.Pool == nil {
		return
	}

	md.H2("Identity Pool")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Target", strconv.Itoa(summary.Pool.TargetSize)},
			{"Allocated", strconv.Itoa(summary.Pool.Allocated)},
			{"Unused", strconv.Itoa(summary.Pool.QueueSize)},
			{"Failed attempts", strconv.Itoa(summary.Pool.FailedAttempts)},
		},
	})
	md.PlainText("")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
