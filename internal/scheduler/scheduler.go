package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"imagebit/internal/launcher"
	"imagebit/internal/logging"
	"imagebit/internal/services"
)

// DefaultPollInterval is the capacity backoff used when Options leaves it unset.
const DefaultPollInterval = 100 * time.Millisecond

// ErrReused is returned when Run is called more than once on a Scheduler.
var ErrReused = errors.New("scheduler already used; create a new one per run")

// Options configures a Scheduler.
type Options struct {
	Launcher Launcher
	// Limit bounds concurrently running processes. Values below 1 are
	// clamped to 1.
	Limit        int
	PollInterval time.Duration
	// Verify, when set, inspects the output of every zero-exit process. A
	// non-nil error marks the file as failed.
	Verify   func(output string) error
	Observer Observer
	Logger   *slog.Logger
}

type slot struct {
	handle launcher.Handle
	// announced is closed once the file's ProgressEvent has been emitted.
	announced chan struct{}
}

// Scheduler runs one conversion job.
type Scheduler struct {
	launcher Launcher
	limit    int
	poll     time.Duration
	verify   func(string) error
	observer Observer
	logger   *slog.Logger

	used            atomic.Bool
	cancelRequested atomic.Bool
	wake            chan struct{}

	mu       sync.Mutex
	active   map[int]*slot
	counters Counters
	failures []FileResult
	outcome  Outcome
	runErr   error
}

// New constructs a single-use scheduler.
func New(opts Options) *Scheduler {
	limit := opts.Limit
	if limit < 1 {
		limit = 1
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	observer := opts.Observer
	if observer == nil {
		observer = ObserverFuncs{}
	}
	return &Scheduler{
		launcher: opts.Launcher,
		limit:    limit,
		poll:     poll,
		verify:   opts.Verify,
		observer: observer,
		logger:   logging.NewComponentLogger(opts.Logger, "scheduler"),
		wake:     make(chan struct{}, 1),
		active:   make(map[int]*slot),
	}
}

// Limit returns the effective concurrency bound.
func (s *Scheduler) Limit() int {
	return s.limit
}

// RequestCancel asks the run to stop launching new files. It is safe to call
// from any goroutine, any number of times, before, during or after Run.
func (s *Scheduler) RequestCancel() {
	if s.cancelRequested.CompareAndSwap(false, true) {
		s.logger.Debug("cancellation requested")
	}
	s.nudge()
}

// CancelRequested reports whether RequestCancel has been called.
func (s *Scheduler) CancelRequested() bool {
	return s.cancelRequested.Load()
}

// Snapshot returns the current counters.
func (s *Scheduler) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// Run launches every file in job, in order, under the concurrency limit. It
// returns once every file has been launched (OutcomeCompleted), a
// cancellation has been observed (OutcomeCancelled) or a launch failed
// (OutcomeFailed, with the launch error also returned). Processes still
// running when Run returns keep reporting through the Observer; use Wait to
// block until they have exited.
//
// Cancelling ctx has the same effect as RequestCancel.
func (s *Scheduler) Run(ctx context.Context, job Job) (Summary, error) {
	if !s.used.CompareAndSwap(false, true) {
		return Summary{}, ErrReused
	}
	if s.launcher == nil {
		err := services.Wrap(services.ErrConfiguration, "scheduler", "run", "no launcher configured", nil)
		return s.finish(OutcomeFailed, err), err
	}

	total := len(job.Files)
	s.mu.Lock()
	s.counters = Counters{Total: total}
	s.mu.Unlock()

	s.logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("total", total),
		logging.Int("limit", s.limit),
		logging.String("output_dir", job.OutputDir),
	)

	for next := 0; next < total; {
		if s.cancelPending(ctx) {
			return s.finish(OutcomeCancelled, nil), nil
		}

		sl, ok := s.reserve(next + 1)
		if !ok {
			s.backoff(ctx)
			continue
		}

		path := job.Files[next]
		index := next + 1
		handle, err := s.launcher.Launch(path, job.OutputDir, func(exit launcher.Exit) {
			s.handleExit(index, sl, exit)
		})
		if err != nil {
			s.release(index)
			logging.ErrorWithContext(s.logger, "encoder launch failed", "launch_failed",
				logging.String(logging.FieldFile, filepath.Base(path)),
				logging.Int("index", index),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check encoder.binary and its permissions"),
			)
			return s.finish(OutcomeFailed, err), err
		}

		s.mu.Lock()
		sl.handle = handle
		s.counters.Launched++
		s.mu.Unlock()

		s.observer.OnProgress(ProgressEvent{
			Index:    index,
			Total:    total,
			FileName: filepath.Base(path),
			Path:     path,
		})
		close(sl.announced)
		next++
	}

	return s.finish(OutcomeCompleted, nil), nil
}

// Wait blocks until every launched process has exited, or ctx is done, and
// returns the final summary. It must be called after Run has returned.
func (s *Scheduler) Wait(ctx context.Context) (Summary, error) {
	for {
		s.mu.Lock()
		idle := len(s.active) == 0
		s.mu.Unlock()
		if idle {
			return s.summary(), nil
		}
		timer := time.NewTimer(s.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return s.summary(), ctx.Err()
		case <-s.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (s *Scheduler) cancelPending(ctx context.Context) bool {
	if s.cancelRequested.Load() {
		return true
	}
	if ctx.Err() != nil {
		s.cancelRequested.Store(true)
		return true
	}
	return false
}

// reserve claims a capacity slot for index before the process is started so
// an exit that races the launch cannot leave a stale entry behind.
func (s *Scheduler) reserve(index int) (*slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.active) >= s.limit {
		return nil, false
	}
	sl := &slot{announced: make(chan struct{})}
	s.active[index] = sl
	s.counters.Running = len(s.active)
	return sl, true
}

func (s *Scheduler) release(index int) {
	s.mu.Lock()
	delete(s.active, index)
	s.counters.Running = len(s.active)
	s.mu.Unlock()
}

func (s *Scheduler) backoff(ctx context.Context) {
	timer := time.NewTimer(s.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-s.wake:
	case <-timer.C:
	}
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) handleExit(index int, sl *slot, exit launcher.Exit) {
	<-sl.announced

	result := FileResult{
		Index:    index,
		Path:     exit.Input,
		Output:   exit.Output,
		ExitCode: exit.ExitCode,
		Duration: exit.Duration,
		Err:      exit.Err,
		Stderr:   exit.Stderr,
	}
	if result.Err == nil && s.verify != nil {
		if err := s.verify(exit.Output); err != nil {
			result.Err = services.Wrap(services.ErrValidation, "encoder", filepath.Base(exit.Input), "output check failed", err)
		}
	}

	s.mu.Lock()
	delete(s.active, index)
	s.counters.Running = len(s.active)
	s.counters.Completed++
	if result.Failed() {
		s.counters.Failed++
		s.failures = append(s.failures, result)
	}
	s.mu.Unlock()

	if result.Failed() {
		logging.WarnWithContext(s.logger, "file conversion failed", "file_failed",
			logging.String(logging.FieldFile, filepath.Base(result.Path)),
			logging.Int("index", index),
			logging.Int("exit_code", result.ExitCode),
			logging.Error(result.Err),
			logging.String(logging.FieldImpact, "no output for this file; batch continues"),
			logging.String(logging.FieldErrorHint, "run the encoder manually on this file to inspect its error"),
		)
	} else {
		s.logger.Debug("file converted",
			logging.String(logging.FieldFile, filepath.Base(result.Path)),
			logging.Int("index", index),
			logging.Duration("duration", result.Duration),
		)
	}

	s.observer.OnFileDone(result)
	s.nudge()
}

func (s *Scheduler) finish(outcome Outcome, err error) Summary {
	s.mu.Lock()
	s.outcome = outcome
	s.runErr = err
	s.mu.Unlock()

	summary := s.summary()
	s.logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_finish"),
		logging.String("outcome", string(outcome)),
		logging.Int("launched", summary.Launched),
		logging.Int("total", summary.Total),
		logging.Int("pending", summary.Pending),
	)
	return summary
}

func (s *Scheduler) summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	failures := make([]FileResult, len(s.failures))
	copy(failures, s.failures)
	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })
	return Summary{
		Outcome:  s.outcome,
		Counters: s.counters,
		Pending:  len(s.active),
		Failures: failures,
		Err:      s.runErr,
	}
}
