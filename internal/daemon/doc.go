// Package daemon coordinates the long-running imagebit process.
//
// It owns one conversion Controller and the run history store, and holds a
// flock-based lock so only one daemon instance serves a state directory.
// Conversion requests arrive through the IPC server; the daemon runs
// preflight checks before handing them to the controller and logs progress
// in place of a console.
package daemon
