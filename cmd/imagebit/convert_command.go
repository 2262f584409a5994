package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"imagebit/internal/config"
	"imagebit/internal/conversion"
	"imagebit/internal/history"
	"imagebit/internal/preflight"
	"imagebit/internal/scheduler"
	"imagebit/internal/services"
)

var errRunCancelled = fmt.Errorf("conversion cancelled: %w", context.Canceled)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var jobs int
	var noVerify bool
	var noWait bool
	var noHistory bool

	cmd := &cobra.Command{
		Use:   "convert <input-dir> <output-dir>",
		Short: "Convert every matching image in a directory",
		Long: "Convert every file in <input-dir> whose extension matches encoder.input_extensions,\n" +
			"writing one output per input into <output-dir>. Ctrl-C cancels the run; encoders\n" +
			"that already started are left to finish.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := *base
			if cmd.Flags().Changed("jobs") {
				if jobs < 1 {
					return services.Wrap(services.ErrValidation, "cli", "convert", "--jobs must be at least 1", nil)
				}
				cfg.Scheduler.MaxProcesses = jobs
			}
			if noVerify {
				cfg.Encoder.VerifyOutput = false
			}
			if noWait {
				cfg.Scheduler.WaitForExit = false
			}
			return runConvert(cmd, ctx, &cfg, args[0], args[1], !noHistory)
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Maximum concurrent encoder processes (default: scheduler.max_processes)")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "Skip output verification")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return once every file has been launched")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the run in the history database")
	return cmd
}

func runConvert(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, inputDir, outputDir string, record bool) error {
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	// The input directory is not checked here: a missing one is an empty job.
	if failed, ok := preflight.FirstFailure(preflight.RunAll(cfg, "", outputDir)); ok {
		return services.Wrap(services.ErrValidation, "cli", "preflight", failed.Name+": "+failed.Detail, nil)
	}

	logger := ctx.fileLogger(cfg)

	var ledger conversion.Ledger
	if record {
		store, err := history.Open(cfg)
		if err != nil {
			fmt.Fprintf(stderr, "warn: history disabled: %v\n", err)
		} else {
			defer store.Close()
			ledger = store
		}
	}

	controller := conversion.NewController(conversion.Options{
		Config: cfg,
		Ledger: ledger,
		Logger: logger,
	})

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	host := newConsoleHost(stdout, stderr)
	if _, err := controller.StartRun(cmd.Context(), inputDir, outputDir, host); err != nil {
		return err
	}

	type result struct {
		summary conversion.Summary
		err     error
	}
	finished := make(chan result, 1)
	go func() {
		summary, err := controller.Wait(context.Background())
		finished <- result{summary: summary, err: err}
	}()

	interrupts := 0
	for {
		select {
		case sig := <-signals:
			interrupts++
			if interrupts > 1 {
				fmt.Fprintf(stderr, "Received %s again; exiting without waiting for running encoders\n", sig)
				return errRunCancelled
			}
			if controller.RequestCancel() {
				fmt.Fprintln(stderr, "Cancelling; no further files will be launched (press Ctrl-C again to exit now)")
			}
		case res := <-finished:
			if res.err != nil {
				return res.err
			}
			return reportSummary(stdout, res.summary)
		}
	}
}

func reportSummary(w io.Writer, summary conversion.Summary) error {
	if len(summary.Failures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, failureTable(summary.Failures))
	}

	elapsed := summary.FinishedAt.Sub(summary.StartedAt).Round(10 * time.Millisecond)
	converted := summary.Completed - summary.Failed
	line := fmt.Sprintf("Converted %d of %d files (%d failed) in %s", converted, summary.Total, summary.Failed, elapsed)
	if summary.Pending > 0 {
		line += fmt.Sprintf(", %d still running", summary.Pending)
	}
	fmt.Fprintln(w, line)

	switch summary.Outcome {
	case scheduler.OutcomeCancelled:
		return errRunCancelled
	case scheduler.OutcomeFailed:
		if summary.Err != nil {
			return summary.Err
		}
		return errors.New("conversion failed")
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed to convert", summary.Failed, summary.Total)
	}
	return nil
}

func failureTable(failures []conversion.FileFailure) string {
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		exit := "-"
		if f.ExitCode != 0 {
			exit = strconv.Itoa(f.ExitCode)
		}
		reason := ""
		if f.Err != nil {
			reason = f.Err.Error()
		}
		rows = append(rows, []string{
			strconv.Itoa(f.Index),
			filepath.Base(f.Path),
			exit,
			truncate(reason, 80),
		})
	}
	return renderTable(
		[]string{"#", "File", "Exit", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
	)
}

// consoleHost prints run notifications. OnFileFailed arrives from waiter
// goroutines, so writes are serialized.
type consoleHost struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
}

func newConsoleHost(stdout, stderr io.Writer) *consoleHost {
	return &consoleHost{stdout: stdout, stderr: stderr}
}

func (h *consoleHost) OnProgress(ev scheduler.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.stdout, "Converting Image (%d / %d): %s\n", ev.Index, ev.Total, ev.FileName)
}

func (h *consoleHost) OnFileFailed(f conversion.FileFailure) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.stderr, "Failed: %s: %v\n", filepath.Base(f.Path), f.Err)
}

func (h *consoleHost) OnTerminal(s conversion.Summary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch s.Outcome {
	case scheduler.OutcomeCompleted:
		fmt.Fprintln(h.stdout, "Job has been completed!")
	case scheduler.OutcomeCancelled:
		fmt.Fprintln(h.stdout, "Job has been cancelled!")
	default:
		fmt.Fprintf(h.stdout, "Job has failed: %v\n", s.Err)
	}
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
