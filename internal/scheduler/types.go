package scheduler

import (
	"time"

	"imagebit/internal/launcher"
)

// Launcher starts one encoder process and reports its exit asynchronously.
type Launcher interface {
	Launch(input, outputDir string, onExit func(launcher.Exit)) (launcher.Handle, error)
}

// Job is the ordered list of inputs for one run plus the shared output
// directory. File order is launch order.
type Job struct {
	Files     []string
	OutputDir string
}

// ProgressEvent is emitted once per file at the moment its process launches.
type ProgressEvent struct {
	Index    int // 1-based
	Total    int
	FileName string
	Path     string
}

// FileResult describes a finished encoder process.
type FileResult struct {
	Index    int
	Path     string
	Output   string
	ExitCode int
	Duration time.Duration
	Err      error
	Stderr   string
}

// Failed reports whether the file did not convert.
func (r FileResult) Failed() bool {
	return r.Err != nil
}

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Counters are advisory run statistics. Completed counts every exited
// process, Failed the subset that did not convert.
type Counters struct {
	Total     int
	Launched  int
	Running   int
	Completed int
	Failed    int
}

// Summary is the result of a run. Pending is the number of processes still
// running when the summary was taken; a Completed outcome means every file
// was launched, not that every process has exited.
type Summary struct {
	Outcome Outcome
	Counters
	Pending  int
	Failures []FileResult
	Err      error
}

// Observer receives run notifications. OnProgress is called synchronously
// from the scheduling goroutine and must return quickly. OnFileDone is called
// from process waiter goroutines and may run concurrently with itself and
// with OnProgress, but never before the OnProgress for the same file.
type Observer interface {
	OnProgress(ProgressEvent)
	OnFileDone(FileResult)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Progress func(ProgressEvent)
	FileDone func(FileResult)
}

func (o ObserverFuncs) OnProgress(ev ProgressEvent) {
	if o.Progress != nil {
		o.Progress(ev)
	}
}

func (o ObserverFuncs) OnFileDone(res FileResult) {
	if o.FileDone != nil {
		o.FileDone(res)
	}
}
