package history

import "time"

// Status values shared by runs and files.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
	StatusFailed      = "failed"
	StatusInterrupted = "interrupted"
	StatusConverted   = "converted"
)

// Run is one conversion run.
type Run struct {
	ID          string
	InputDir    string
	OutputDir   string
	Status      string
	Total       int
	Concurrency int
	Launched    int
	Completed   int
	Failed      int
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Finished reports whether the run reached a terminal status.
func (r Run) Finished() bool {
	return r.Status != StatusRunning
}

// Duration is the wall time of a finished run, or zero.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// File is one launched input within a run.
type File struct {
	RunID      string
	Index      int
	InputPath  string
	OutputPath string
	// Status is StatusRunning until the encoder exits, then StatusConverted
	// or StatusFailed. StatusInterrupted marks files whose process outlived
	// the recording program.
	Status     string
	ExitCode   int
	Error      string
	Duration   time.Duration
	LaunchedAt time.Time
	FinishedAt time.Time
}

// FileExit carries what is known about a finished encoder process.
type FileExit struct {
	Index      int
	OutputPath string
	ExitCode   int
	Err        error
	Duration   time.Duration
}

// RunTotals are the counters recorded with a terminal outcome.
type RunTotals struct {
	Launched  int
	Completed int
	Failed    int
}
