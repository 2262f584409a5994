package conversion

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"imagebit/internal/config"
	"imagebit/internal/history"
	"imagebit/internal/launcher"
	"imagebit/internal/logging"
	"imagebit/internal/outputcheck"
	"imagebit/internal/scheduler"
	"imagebit/internal/selector"
	"imagebit/internal/services"
	"imagebit/internal/sysinfo"
)

// Ledger records runs. *history.Store satisfies it.
type Ledger interface {
	StartRun(ctx context.Context, run history.Run) error
	FileLaunched(ctx context.Context, runID string, index int, inputPath string) error
	FileFinished(ctx context.Context, runID string, exit history.FileExit) error
	FinishRun(ctx context.Context, runID, status string, totals history.RunTotals, runErr error) error
}

// Options configures a Controller.
type Options struct {
	Config *config.Config
	// Launcher overrides the encoder launcher built from Config.
	Launcher scheduler.Launcher
	Ledger   Ledger
	Logger   *slog.Logger
	// NewRunID overrides run identifier generation.
	NewRunID func() string
}

// Controller owns at most one active conversion run.
type Controller struct {
	cfg      *config.Config
	launcher scheduler.Launcher
	ledger   Ledger
	base     *slog.Logger
	logger   *slog.Logger
	newRunID func() string

	mu      sync.Mutex
	state   RunState
	current *run
}

type run struct {
	id        string
	inputDir  string
	outputDir string
	total     int
	limit     int
	host      Host
	sched     *scheduler.Scheduler
	logger    *slog.Logger
	ctx       context.Context

	// guarded by Controller.mu
	lastProgress *scheduler.ProgressEvent
	failures     []FileFailure
	startedAt    time.Time
	finishedAt   time.Time
	summary      *Summary
	stopWait     context.CancelFunc

	controller *Controller
	done       chan struct{}
}

// NewController builds a Controller from configuration.
func NewController(opts Options) *Controller {
	cfg := opts.Config
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	logger := logging.NewComponentLogger(opts.Logger, "conversion")
	l := opts.Launcher
	if l == nil {
		l = launcher.New(launcher.Config{
			Binary:          cfg.Encoder.Binary,
			FormatFlags:     cfg.Encoder.FormatFlags,
			ExtraArgs:       cfg.Encoder.ExtraArgs,
			OutputExtension: cfg.Encoder.OutputExtension,
			Timeout:         cfg.EncoderTimeout(),
		}, opts.Logger)
	}
	newID := opts.NewRunID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Controller{
		cfg:      cfg,
		launcher: l,
		ledger:   opts.Ledger,
		base:     opts.Logger,
		logger:   logger,
		newRunID: newID,
		state:    StateIdle,
	}
}

// StartRun scans inputDir for matching files and starts converting them into
// outputDir in the background. It returns the run identifier, or
// ErrRunActive when a run is already Running or Cancelling.
//
// A missing input directory or one without matching files yields an empty
// job that completes immediately. Cancelling ctx has the same effect as
// RequestCancel.
func (c *Controller) StartRun(ctx context.Context, inputDir, outputDir string, host Host) (string, error) {
	if host == nil {
		host = HostFuncs{}
	}
	in, err := config.ExpandPath(inputDir)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "conversion", "start", "resolve input directory", err)
	}
	out, err := config.ExpandPath(outputDir)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "conversion", "start", "resolve output directory", err)
	}
	if in == "" || out == "" {
		return "", services.Wrap(services.ErrValidation, "conversion", "start", "input and output directories are required", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Active() {
		return "", ErrRunActive
	}

	files, err := selector.New(c.cfg.Encoder.InputExtensions...).Scan(in)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return "", services.Wrap(services.ErrValidation, "conversion", "scan", in, err)
		}
		logging.WarnWithContext(c.logger, "input directory does not exist", "input_missing",
			logging.String("input_dir", in),
			logging.String(logging.FieldImpact, "nothing to convert; run completes immediately"),
			logging.String(logging.FieldErrorHint, "check the input directory path"),
		)
		files = nil
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return "", services.Wrap(services.ErrValidation, "conversion", "start", "create output directory", err)
	}

	id := c.newRunID()
	runCtx := services.WithRunID(ctx, id)
	r := &run{
		id:         id,
		inputDir:   in,
		outputDir:  out,
		total:      len(files),
		limit:      sysinfo.DefaultLimit(ctx, c.cfg.Scheduler.MaxProcesses),
		host:       host,
		logger:     logging.WithContext(runCtx, c.logger),
		ctx:        context.WithoutCancel(runCtx),
		startedAt:  time.Now(),
		controller: c,
		done:       make(chan struct{}),
	}
	var verify func(string) error
	if c.cfg.Encoder.VerifyOutput {
		verify = outputcheck.Verify
	}
	r.sched = scheduler.New(scheduler.Options{
		Launcher:     c.launcher,
		Limit:        r.limit,
		PollInterval: c.cfg.PollInterval(),
		Verify:       verify,
		Observer:     r,
		Logger:       logging.WithContext(runCtx, c.base),
	})

	if c.ledger != nil {
		if err := c.ledger.StartRun(r.ctx, history.Run{
			ID:          id,
			InputDir:    in,
			OutputDir:   out,
			Total:       len(files),
			Concurrency: r.limit,
			StartedAt:   r.startedAt,
		}); err != nil {
			r.ledgerFailed("record run start", err)
		}
	}

	c.state = StateRunning
	c.current = r
	r.logger.Info("conversion run started",
		logging.String(logging.FieldEventType, "conversion_start"),
		logging.String("input_dir", in),
		logging.String("output_dir", out),
		logging.Int("files", len(files)),
		logging.Int("limit", r.limit),
	)

	go c.execute(runCtx, r, scheduler.Job{Files: files, OutputDir: out})
	return id, nil
}

func (c *Controller) execute(ctx context.Context, r *run, job scheduler.Job) {
	summary, err := r.sched.Run(ctx, job)
	if err != nil && summary.Err == nil {
		summary.Err = err
	}

	// Only a completed run waits for its encoders; a cancelled or failed run
	// reports at once and leaves the stragglers to the ledger goroutine below.
	if summary.Outcome == scheduler.OutcomeCompleted && summary.Pending > 0 && c.cfg.Scheduler.WaitForExit {
		summary = c.awaitExits(r, summary)
	}

	c.mu.Lock()
	r.finishedAt = time.Now()
	result := Summary{
		RunID:      r.id,
		InputDir:   r.inputDir,
		OutputDir:  r.outputDir,
		Limit:      r.limit,
		Summary:    summary,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
	}
	r.summary = &result
	c.state = stateFor(summary.Outcome)
	c.mu.Unlock()

	r.recordFinish(summary)
	if summary.Pending > 0 {
		go r.recordStragglers(summary.Outcome)
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "conversion_finish"),
		logging.String("outcome", string(summary.Outcome)),
		logging.Int("launched", summary.Launched),
		logging.Int("total", summary.Total),
		logging.Int("failed", summary.Failed),
		logging.Int("pending", summary.Pending),
		logging.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	}
	if summary.Outcome == scheduler.OutcomeFailed {
		attrs = append(attrs, logging.Error(summary.Err),
			logging.String(logging.FieldErrorHint, "run imagebit check to verify the encoder"))
		logging.ErrorWithContext(r.logger, "conversion run failed", "conversion_failed", attrs...)
	} else {
		r.logger.Info("conversion run finished", logging.Args(attrs...)...)
	}

	r.host.OnTerminal(result)
	close(r.done)
}

// RequestCancel stops the active run from launching further files. It is
// idempotent and does nothing when no run is active.
func (c *Controller) RequestCancel() bool {
	c.mu.Lock()
	if c.state != StateRunning || c.current == nil {
		c.mu.Unlock()
		return false
	}
	c.state = StateCancelling
	r := c.current
	stopWait := r.stopWait
	c.mu.Unlock()

	r.logger.Info("cancellation requested", logging.String(logging.FieldEventType, "conversion_cancel"))
	r.sched.RequestCancel()
	if stopWait != nil {
		stopWait()
	}
	return true
}

// awaitExits blocks until the run's remaining encoders exit. A RequestCancel
// arriving meanwhile ends the wait early; the returned summary then still
// counts the processes that are running.
func (c *Controller) awaitExits(r *run, summary scheduler.Summary) scheduler.Summary {
	waitCtx, stop := context.WithCancel(r.ctx)
	defer stop()

	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return summary
	}
	r.stopWait = stop
	c.mu.Unlock()

	final, err := r.sched.Wait(waitCtx)
	if err != nil {
		r.logger.Info("stopped waiting for running encoders",
			logging.String(logging.FieldEventType, "conversion_wait_aborted"),
			logging.Int("pending", final.Pending),
		)
	}
	return final
}

// recordStragglers waits for encoders that outlived the run's terminal signal
// and records the final totals.
func (r *run) recordStragglers(outcome scheduler.Outcome) {
	final, err := r.sched.Wait(r.ctx)
	if err != nil {
		return
	}
	final.Outcome = outcome
	r.recordFinish(final)
	r.logger.Debug("straggling encoders exited",
		logging.Int("completed", final.Completed),
		logging.Int("failed", final.Failed),
	)
}

// State returns the controller's lifecycle state.
func (c *Controller) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of the current or most recent run.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state}
	r := c.current
	if r == nil {
		return st
	}
	st.RunID = r.id
	st.InputDir = r.inputDir
	st.OutputDir = r.outputDir
	st.Limit = r.limit
	st.StartedAt = r.startedAt
	st.FinishedAt = r.finishedAt
	st.Counters = r.sched.Snapshot()
	st.Counters.Total = r.total
	if r.lastProgress != nil {
		ev := *r.lastProgress
		st.LastProgress = &ev
	}
	st.Failures = append([]FileFailure(nil), r.failures...)
	if r.summary != nil {
		st.Err = r.summary.Err
	}
	return st
}

// Wait blocks until the current run has delivered its terminal summary, or
// ctx is done. It returns immediately when no run was started.
func (c *Controller) Wait(ctx context.Context) (Summary, error) {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()
	if r == nil {
		return Summary{}, nil
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return *r.summary, nil
}

func (r *run) OnProgress(ev scheduler.ProgressEvent) {
	r.controller.mu.Lock()
	copied := ev
	r.lastProgress = &copied
	r.controller.mu.Unlock()

	if ledger := r.controller.ledger; ledger != nil {
		if err := ledger.FileLaunched(r.ctx, r.id, ev.Index, ev.Path); err != nil {
			r.ledgerFailed("record file launch", err)
		}
	}
	r.host.OnProgress(ev)
}

func (r *run) OnFileDone(res scheduler.FileResult) {
	if ledger := r.controller.ledger; ledger != nil {
		if err := ledger.FileFinished(r.ctx, r.id, history.FileExit{
			Index:      res.Index,
			OutputPath: res.Output,
			ExitCode:   res.ExitCode,
			Err:        res.Err,
			Duration:   res.Duration,
		}); err != nil {
			r.ledgerFailed("record file exit", err)
		}
	}
	if !res.Failed() {
		return
	}
	r.controller.mu.Lock()
	r.failures = append(r.failures, res)
	r.controller.mu.Unlock()
	r.host.OnFileFailed(res)
}

func (r *run) recordFinish(summary scheduler.Summary) {
	ledger := r.controller.ledger
	if ledger == nil {
		return
	}
	totals := history.RunTotals{
		Launched:  summary.Launched,
		Completed: summary.Completed,
		Failed:    summary.Failed,
	}
	if err := ledger.FinishRun(r.ctx, r.id, string(stateFor(summary.Outcome)), totals, summary.Err); err != nil {
		r.ledgerFailed("record run outcome", err)
	}
}

func (r *run) ledgerFailed(operation string, err error) {
	logging.WarnWithContext(r.logger, "history ledger write failed", "history_write_failed",
		logging.String("operation", operation),
		logging.Error(err),
		logging.String(logging.FieldImpact, "run continues; history for this run may be incomplete"),
		logging.String(logging.FieldErrorHint, "check permissions on the state directory"),
	)
}
