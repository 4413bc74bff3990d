package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Package-level sentinel errors let callers use errors.Is while keeping
// the messages human-readable.
var (
	// ErrNoVideoID is returned when no video id was given.
	ErrNoVideoID = errors.New("no video id specified: provide at least one video id")

	// ErrInvalidMaxRetries is returned when the retry budget is not positive.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be positive")

	// ErrInvalidTimeout is returned when the timeout bounds are not
	// positive or the cap is below the base.
	ErrInvalidTimeout = errors.New("invalid timeout: base must be positive and max >= base")

	// ErrInvalidCooldown is returned when the cooldown period is negative.
	ErrInvalidCooldown = errors.New("invalid cooldown: must be non-negative")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid workers: must be positive")

	// ErrNoLanguages is returned when the language preference list is empty.
	ErrNoLanguages = errors.New("no languages specified: provide at least one language code")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are requested.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingTorModes is returned when both an external proxy
	// address and the embedded daemon are requested.
	ErrConflictingTorModes = errors.New("conflicting tor modes: --external-tor and --embedded-tor cannot be used together")
)
