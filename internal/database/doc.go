// Package database provides SQLite-based storage for fetch attempt
// history.
//
// The JSON tracker file holds the day-scoped aggregate counters the
// engine decides with; this package keeps the full per-attempt history
// across runs so failure patterns can be inspected after the fact.
package database
