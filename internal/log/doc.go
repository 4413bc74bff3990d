// Package log provides slog-based structured logging for torfetch.
//
// The only credential this tool ever holds is the Tor control-port
// password, but it also flows proxy addresses and external API responses
// through its logs, so the package wraps any slog.Handler with a
// redacting handler that masks credential-shaped attributes before they
// reach the underlying handler.
//
// Loggers are injected as *slog.Logger; the package never installs
// global state beyond what the caller opts into with slog.SetDefault.
package log
