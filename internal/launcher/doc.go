// Package launcher starts one external encoder process per input file.
//
// The invocation is always passed as discrete argv entries, never through a
// shell, so file names containing spaces or quotes reach the encoder intact.
// Processes are detached from the caller's terminal (own process group on
// Unix, hidden console window on Windows) and report their exit through a
// one-shot callback that fires regardless of exit status. The launcher never
// waits for a process itself; admission control lives in the scheduler.
package launcher
