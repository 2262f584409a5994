// Package preflight provides readiness checks for the encoder binary and the
// directories a conversion run touches.
//
// These checks run in two contexts:
//   - The "imagebit check" command prints every result as a table.
//   - The convert command and the daemon call RunAll before starting a run
//     and refuse to start when a required check fails, so a missing encoder
//     surfaces as one clear message instead of a launch failure mid-batch.
package preflight
