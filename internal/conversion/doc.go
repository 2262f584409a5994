// Package conversion owns conversion runs on behalf of hosts.
//
// A Controller turns a StartRun request into a job (flat directory scan
// filtered by input extension), drives a fresh scheduler.Scheduler for it
// and forwards progress, per-file failures and the terminal summary to the
// Host that started the run. At most one run is active per Controller;
// StartRun returns ErrRunActive while a run is Running or Cancelling.
//
// Hosts are the CLI console and the daemon's IPC surface. Both may call
// RequestCancel from any goroutine at any time.
package conversion
