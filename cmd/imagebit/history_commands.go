package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"imagebit/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent conversion runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, runs)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No conversion runs recorded")
					return nil
				}
				fmt.Fprintln(out, runsTable(runs))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				run, err := store.GetRun(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %s not found", args[0])
				}
				files, err := store.Files(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, struct {
						Run   *history.Run   `json:"run"`
						Files []history.File `json:"files"`
					}{run, files})
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Run "+run.ID, colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Status", runStatusKind(run.Status), run.Status, colorize))
				fmt.Fprintln(out, renderStatusLine("Input", statusInfo, run.InputDir, colorize))
				fmt.Fprintln(out, renderStatusLine("Output", statusInfo, run.OutputDir, colorize))
				fmt.Fprintln(out, renderStatusLine("Files", statusInfo,
					fmt.Sprintf("%d launched of %d, %d failed (limit %d)", run.Launched, run.Total, run.Failed, run.Concurrency), colorize))
				fmt.Fprintln(out, renderStatusLine("Started", statusInfo, formatWhen(run.StartedAt), colorize))
				if run.Finished() {
					fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, formatDuration(run.Duration()), colorize))
				}
				if run.Error != "" {
					fmt.Fprintln(out, renderStatusLine("Error", statusError, run.Error, colorize))
				}
				if len(files) > 0 {
					fmt.Fprintln(out)
					fmt.Fprintln(out, filesTable(files))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func withHistory(ctx *commandContext, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func runsTable(runs []history.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			formatWhen(r.StartedAt),
			r.Status,
			fmt.Sprintf("%d/%d", r.Launched, r.Total),
			strconv.Itoa(r.Failed),
			formatDuration(r.Duration()),
			truncate(r.InputDir, 40),
		})
	}
	return renderTable(
		[]string{"Run", "Started", "Status", "Files", "Failed", "Duration", "Input"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}

func filesTable(files []history.File) string {
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		exit := "-"
		if f.Status != history.StatusRunning && f.Status != history.StatusInterrupted {
			exit = strconv.Itoa(f.ExitCode)
		}
		rows = append(rows, []string{
			strconv.Itoa(f.Index),
			filepath.Base(f.InputPath),
			f.Status,
			exit,
			formatDuration(f.Duration),
			truncate(f.Error, 60),
		})
	}
	return renderTable(
		[]string{"#", "File", "Status", "Exit", "Duration", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func runStatusKind(status string) statusKind {
	switch status {
	case history.StatusCompleted, history.StatusConverted:
		return statusOK
	case history.StatusCancelled, history.StatusInterrupted:
		return statusWarn
	case history.StatusFailed:
		return statusError
	default:
		return statusInfo
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
