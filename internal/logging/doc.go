// Package logging assembles structured slog loggers and formatting helpers used
// across imagebit components.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so scheduler and host code can
// tag log lines with run identifiers and file names. The package also provides
// a no-op logger for tests and wiring code that cannot fail.
package logging
