// Package services defines shared utilities consumed by the conversion
// components and the hosts that drive them.
//
// Key responsibilities:
//   - Context helpers that stamp run identifiers and file names for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (external tool, configuration, validation, timeout) so hosts can choose
//     exit codes and user-facing wording without string matching.
//
// Use these helpers when wiring new components so error classification and
// observability stay uniform across the launcher, scheduler and hosts.
package services
