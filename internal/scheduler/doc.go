// Package scheduler implements the admission-control loop that drives a
// batch conversion.
//
// A Scheduler walks a Job's files in order and launches one encoder process
// per file while never exceeding its concurrency limit. Exit notifications
// arrive from the launcher's waiter goroutines and free capacity; the loop
// re-checks capacity every poll interval, or sooner when an exit wakes it.
// Cancellation is cooperative: it is checked before every admission decision,
// stops further launches, and leaves in-flight processes to finish on their
// own.
//
// A Scheduler is single-use. Create a fresh one per run.
package scheduler
