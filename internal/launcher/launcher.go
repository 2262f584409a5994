package launcher

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"imagebit/internal/logging"
	"imagebit/internal/services"
)

// Config describes the encoder invocation.
type Config struct {
	Binary          string
	FormatFlags     []string
	ExtraArgs       []string
	OutputExtension string
	// Timeout kills a process that has not exited after this long. Zero
	// disables the timeout.
	Timeout time.Duration
}

// Handle identifies a started encoder process.
type Handle struct {
	Input   string
	Output  string
	PID     int
	Started time.Time
}

// Exit describes how an encoder process ended. Err is nil only for a zero
// exit status.
type Exit struct {
	Input    string
	Output   string
	ExitCode int
	Err      error
	Duration time.Duration
	Stderr   string
}

// Success reports whether the process exited cleanly.
func (e Exit) Success() bool {
	return e.Err == nil
}

// Launcher builds and starts encoder processes.
type Launcher struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a launcher. Binary defaults to cwebp.
func New(cfg Config, logger *slog.Logger) *Launcher {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "cwebp"
	}
	if cfg.OutputExtension == "" {
		cfg.OutputExtension = ".webp"
	}
	return &Launcher{cfg: cfg, logger: logging.NewComponentLogger(logger, "launcher")}
}

// OutputPath maps an input file to its output location inside outputDir by
// replacing the extension with the target format's extension.
func (l *Launcher) OutputPath(input, outputDir string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, stem+l.cfg.OutputExtension)
}

// Args returns the encoder arguments for one conversion:
// <format flags...> <extra args...> <input> -o <output>.
func (l *Launcher) Args(input, output string) []string {
	args := make([]string, 0, len(l.cfg.FormatFlags)+len(l.cfg.ExtraArgs)+3)
	args = append(args, l.cfg.FormatFlags...)
	args = append(args, l.cfg.ExtraArgs...)
	args = append(args, input, "-o", output)
	return args
}

// Launch starts the encoder for input and returns once the process is
// running. onExit is invoked exactly once, from another goroutine, when the
// process terminates. A start failure is returned as an error and onExit is
// never called.
func (l *Launcher) Launch(input, outputDir string, onExit func(Exit)) (Handle, error) {
	output := l.OutputPath(input, outputDir)
	args := l.Args(input, output)

	cmd := exec.Command(l.cfg.Binary, args...)
	stderr := newTailBuffer(stderrTailLimit)
	cmd.Stderr = stderr
	configureDetached(cmd)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Handle{}, services.Wrap(
			services.ErrExternalTool,
			"launcher",
			"start encoder",
			fmt.Sprintf("%s could not be started", l.cfg.Binary),
			err,
		)
	}

	handle := Handle{Input: input, Output: output, PID: cmd.Process.Pid, Started: started}
	l.logger.Debug("encoder started",
		logging.String(logging.FieldFile, filepath.Base(input)),
		logging.Int("pid", handle.PID),
		logging.String("command", l.cfg.Binary+" "+strings.Join(args, " ")),
	)

	var timedOut atomic.Bool
	var timer *time.Timer
	if l.cfg.Timeout > 0 {
		timer = time.AfterFunc(l.cfg.Timeout, func() {
			timedOut.Store(true)
			if err := killProcess(cmd); err != nil {
				l.logger.Debug("kill timed out encoder failed", logging.Int("pid", handle.PID), logging.Error(err))
			}
		})
	}

	go func() {
		waitErr := cmd.Wait()
		if timer != nil {
			timer.Stop()
		}
		exit := Exit{
			Input:    input,
			Output:   output,
			ExitCode: exitCode(cmd, waitErr),
			Duration: time.Since(started),
			Stderr:   stderr.String(),
		}
		switch {
		case timedOut.Load():
			exit.Err = services.Wrap(services.ErrTimeout, "encoder", filepath.Base(input),
				fmt.Sprintf("killed after %s", l.cfg.Timeout), waitErr)
		case waitErr != nil:
			exit.Err = services.Wrap(services.ErrExternalTool, "encoder", filepath.Base(input),
				fmt.Sprintf("exit status %d", exit.ExitCode), waitErr)
		}
		if onExit != nil {
			onExit(exit)
		}
	}()

	return handle, nil
}

func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}
