package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"imagebit/internal/config"
	"imagebit/internal/daemonctl"
	"imagebit/internal/daemonrun"
	"imagebit/internal/ipc"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var development bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the imagebit daemon in the foreground",
		Long: "Run the imagebit daemon in the foreground. The daemon holds a lock in the state\n" +
			"directory, serves submit/cancel/status requests on its socket and records runs\n" +
			"in the history database.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.logLevel(),
				Development: development,
			})
		},
	}
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in daemon logs")

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the imagebit daemon in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			launched, err := daemonctl.EnsureRunning(ctx.socketPath(), exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.configPath,
				LogLevel:   ctx.logLevel(),
			}, 10*time.Second)
			if err != nil {
				return err
			}
			if launched {
				fmt.Fprintln(stdout, "Daemon started")
			} else {
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the imagebit daemon (cancels any active run)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stdout := cmd.OutOrStdout()
			pid, err := daemonctl.Stop(cmd.Context(), ctx.socketPath(), 10*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Daemon stopped (pid %d)\n", pid)
			return nil
		},
	}

	cmd.AddCommand(startCmd, stopCmd)
	return cmd
}

func newRemoteCommands(ctx *commandContext) []*cobra.Command {
	submitCmd := &cobra.Command{
		Use:   "submit <input-dir> <output-dir>",
		Short: "Ask the daemon to convert a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputDir, err := absoluteArg(args[0])
			if err != nil {
				return err
			}
			outputDir, err := absoluteArg(args[1])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Start(cmd.Context(), inputDir, outputDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Conversion started (run %s)\n", resp.RunID)
				return nil
			})
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the daemon's active conversion run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cancel(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Cancelled {
					fmt.Fprintln(out, "Cancellation requested; running encoders will finish")
				} else {
					fmt.Fprintln(out, "No active conversion run")
				}
				return nil
			})
		},
	}

	var asJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and conversion status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			client, err := ctx.dialClient()
			if err != nil {
				if !errors.Is(err, errDaemonUnavailable) {
					return err
				}
				if asJSON {
					return writeJSON(cmd, ipc.StatusResponse{})
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "Not running", colorize))
				return nil
			}
			defer client.Close()

			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			for _, line := range statusLines(status, colorize) {
				fmt.Fprintln(out, line)
			}
			if len(status.Failures) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, remoteFailureTable(status.Failures))
			}
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return []*cobra.Command{submitCmd, cancelCmd, statusCmd}
}

// absoluteArg resolves a directory argument against the caller's working
// directory; the daemon runs elsewhere.
func absoluteArg(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("directory argument is empty")
	}
	return config.ExpandPath(trimmed)
}

func remoteFailureTable(failures []ipc.FileFailure) string {
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		exit := "-"
		if f.ExitCode != 0 {
			exit = fmt.Sprint(f.ExitCode)
		}
		rows = append(rows, []string{fmt.Sprint(f.Index), filepath.Base(f.Path), exit, truncate(f.Error, 80)})
	}
	return renderTable(
		[]string{"#", "File", "Exit", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
	)
}
