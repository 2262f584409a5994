package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gofrs/flock"

	"imagebit/internal/config"
	"imagebit/internal/conversion"
	"imagebit/internal/history"
	"imagebit/internal/logging"
	"imagebit/internal/notifications"
	"imagebit/internal/preflight"
	"imagebit/internal/scheduler"
	"imagebit/internal/services"
)

// ErrAlreadyRunning is returned by Start when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another imagebit daemon instance is already running")

// Daemon serves conversion requests and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *history.Store
	controller *conversion.Controller
	notifier   notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Run          conversion.Status
	HistoryPath  string
	LockFilePath string
}

// New constructs a daemon. store may be nil when history is unavailable.
func New(cfg *config.Config, store *history.Store, logger *slog.Logger, controller *conversion.Controller) (*Daemon, error) {
	if cfg == nil || controller == nil {
		return nil, errors.New("daemon requires config and conversion controller")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		controller: controller,
		notifier:   notifications.NewService(cfg),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and closes out runs a previous instance
// left open.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if d.store != nil {
		if n, err := d.store.MarkInterrupted(ctx); err != nil {
			logging.WarnWithContext(d.logger, "failed to close stale runs", "history_recover_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "old runs may still show as running"),
				logging.String(logging.FieldErrorHint, "check history database permissions"),
			)
		} else if n > 0 {
			d.logger.Info("marked interrupted runs", logging.Int64("count", n))
		}
	}

	d.running.Store(true)
	d.logger.Info("imagebit daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop cancels any active run and releases the daemon lock. Processes
// already launched are left to finish.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.controller.RequestCancel()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_unlock_failed"),
			logging.String(logging.FieldImpact, "a new daemon may refuse to start until this process exits"),
		)
	}
	d.running.Store(false)
	d.logger.Info("imagebit daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Submit starts converting inputDir into outputDir. It returns
// conversion.ErrRunActive while another run is active.
func (d *Daemon) Submit(ctx context.Context, inputDir, outputDir string) (string, error) {
	if !d.running.Load() {
		return "", errors.New("daemon is not running")
	}
	in, err := config.ExpandPath(inputDir)
	if err != nil {
		return "", err
	}
	out, err := config.ExpandPath(outputDir)
	if err != nil {
		return "", err
	}
	// A missing input directory is an empty job, not a rejection.
	if failed, bad := preflight.FirstFailure(preflight.RunAll(d.cfg, "", out)); bad {
		return "", services.Wrap(services.ErrValidation, "daemon", "preflight", failed.Name+": "+failed.Detail, nil)
	}
	return d.controller.StartRun(ctx, in, out, &logHost{logger: d.logger, notifier: d.notifier})
}

// SetNotifier replaces the notification service built from config.
func (d *Daemon) SetNotifier(n notifications.Service) {
	if n != nil {
		d.notifier = n
	}
}

// TestNotification sends a test message. It reports false when
// notifications are not configured.
func (d *Daemon) TestNotification(ctx context.Context) (bool, error) {
	if !notifications.Enabled(d.notifier) {
		return false, nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Cancel requests cancellation of the active run. It reports whether a run
// was active.
func (d *Daemon) Cancel() bool {
	return d.controller.RequestCancel()
}

// Status returns a snapshot of daemon and run state.
func (d *Daemon) Status() Status {
	st := Status{
		Running:      d.running.Load(),
		Run:          d.controller.Status(),
		LockFilePath: d.lockPath,
	}
	if d.store != nil {
		st.HistoryPath = d.store.Path()
	}
	return st
}

// Wait blocks until the current run has finished or ctx is done.
func (d *Daemon) Wait(ctx context.Context) (conversion.Summary, error) {
	return d.controller.Wait(ctx)
}

// logHost reports run events to the daemon log and the notifier.
type logHost struct {
	logger   *slog.Logger
	notifier notifications.Service
}

func (h *logHost) OnProgress(ev scheduler.ProgressEvent) {
	h.logger.Info(fmt.Sprintf("Converting Image (%d / %d): %s", ev.Index, ev.Total, ev.FileName),
		logging.String(logging.FieldEventType, "file_launch"),
		logging.String(logging.FieldFile, ev.FileName),
	)
}

func (h *logHost) OnFileFailed(f conversion.FileFailure) {
	logging.WarnWithContext(h.logger, "image conversion failed", "file_failed",
		logging.String("path", f.Path),
		logging.Int("exit_code", f.ExitCode),
		logging.Error(f.Err),
	)
}

func (h *logHost) OnTerminal(s conversion.Summary) {
	msg := "Job has been completed!"
	event := notifications.EventRunCompleted
	switch s.Outcome {
	case scheduler.OutcomeCancelled:
		msg = "Job has been cancelled!"
		event = notifications.EventRunCancelled
	case scheduler.OutcomeFailed:
		msg = "Job has failed"
		event = notifications.EventRunFailed
	}
	h.logger.Info(msg,
		logging.String(logging.FieldEventType, "job_"+string(s.Outcome)),
		logging.String(logging.FieldRunID, s.RunID),
		logging.Int("launched", s.Launched),
		logging.Int("failed", s.Failed),
	)

	if h.notifier == nil {
		return
	}
	report := notifications.RunReport{
		RunID:     s.RunID,
		InputDir:  s.InputDir,
		Total:     s.Total,
		Converted: s.Completed - s.Failed,
		Failed:    s.Failed,
		Duration:  s.FinishedAt.Sub(s.StartedAt),
		Err:       s.Err,
	}
	if err := h.notifier.NotifyRun(context.Background(), event, report); err != nil {
		logging.WarnWithContext(h.logger, "run notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run outcome was not delivered to ntfy"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}
