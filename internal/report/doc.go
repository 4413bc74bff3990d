// Package report renders fetch session summaries.
//
// A session processes a list of video ids; the summary records per-video
// outcomes, the method that produced each transcript, and the identity
// tracker aggregates. Writers render the same summary as terminal text,
// JSON for tool integration, or Markdown for documentation.
package report
