// Package main hosts the imagebit CLI entrypoint and command graph.
//
// The Cobra-based command tree runs foreground conversions with a console
// host, prints preflight checks, run history and log tails, scaffolds
// configuration and talks to the background daemon over IPC (submit, cancel,
// status, test-notify).
//
// Keep this package lean: behavior lives in the internal packages and is
// surfaced here through commands and flags.
package main
