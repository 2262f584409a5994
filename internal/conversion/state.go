package conversion

import (
	"errors"
	"time"

	"imagebit/internal/scheduler"
)

// ErrRunActive is returned by StartRun while another run is in progress.
var ErrRunActive = errors.New("a conversion run is already active")

// RunState is the lifecycle position of a Controller.
type RunState string

const (
	StateIdle       RunState = "idle"
	StateRunning    RunState = "running"
	StateCancelling RunState = "cancelling"
	StateCompleted  RunState = "completed"
	StateCancelled  RunState = "cancelled"
	StateFailed     RunState = "failed"
)

// Active reports whether a new run would be rejected.
func (s RunState) Active() bool {
	return s == StateRunning || s == StateCancelling
}

func stateFor(outcome scheduler.Outcome) RunState {
	switch outcome {
	case scheduler.OutcomeCancelled:
		return StateCancelled
	case scheduler.OutcomeFailed:
		return StateFailed
	default:
		return StateCompleted
	}
}

// FileFailure describes one input that did not convert.
type FileFailure = scheduler.FileResult

// Summary is the terminal report for a run.
type Summary struct {
	RunID     string
	InputDir  string
	OutputDir string
	Limit     int
	scheduler.Summary
	StartedAt  time.Time
	FinishedAt time.Time
}

// Status is a point-in-time view of the Controller.
type Status struct {
	State        RunState
	RunID        string
	InputDir     string
	OutputDir    string
	Limit        int
	Counters     scheduler.Counters
	LastProgress *scheduler.ProgressEvent
	Failures     []FileFailure
	StartedAt    time.Time
	FinishedAt   time.Time
	Err          error
}

// Host receives run notifications.
//
// OnProgress is called synchronously from the scheduling goroutine, once per
// file in launch order, and must not block for long. OnFileFailed is called
// from process waiter goroutines. OnTerminal is called exactly once per run
// after the Controller has left the active state.
type Host interface {
	OnProgress(scheduler.ProgressEvent)
	OnFileFailed(FileFailure)
	OnTerminal(Summary)
}

// HostFuncs adapts plain functions to Host. Nil fields are skipped.
type HostFuncs struct {
	Progress   func(scheduler.ProgressEvent)
	FileFailed func(FileFailure)
	Terminal   func(Summary)
}

func (h HostFuncs) OnProgress(ev scheduler.ProgressEvent) {
	if h.Progress != nil {
		h.Progress(ev)
	}
}

func (h HostFuncs) OnFileFailed(f FileFailure) {
	if h.FileFailed != nil {
		h.FileFailed(f)
	}
}

func (h HostFuncs) OnTerminal(s Summary) {
	if h.Terminal != nil {
		h.Terminal(s)
	}
}
