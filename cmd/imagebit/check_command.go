package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"imagebit/internal/preflight"
	"imagebit/internal/sysinfo"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check [input-dir] [output-dir]",
		Short: "Verify the encoder and directories before converting",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var inputDir, outputDir string
			if len(args) > 0 {
				inputDir = args[0]
			}
			if len(args) > 1 {
				outputDir = args[1]
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			results := preflight.RunAll(cfg, inputDir, outputDir)
			for _, line := range preflightLines(results, colorize) {
				fmt.Fprintln(out, line)
			}

			logical := sysinfo.LogicalCPUs(cmd.Context())
			limit := sysinfo.DefaultLimit(cmd.Context(), cfg.Scheduler.MaxProcesses)
			fmt.Fprintln(out, renderStatusLine("Concurrency", statusInfo,
				fmt.Sprintf("%s processes (%s logical CPUs)", strconv.Itoa(limit), strconv.Itoa(logical)), colorize))
			fmt.Fprintln(out, renderStatusLine("Verify output", statusInfo, yesNo(cfg.Encoder.VerifyOutput), colorize))

			if failed, ok := preflight.FirstFailure(results); ok {
				return fmt.Errorf("preflight failed: %s", failed.Name)
			}
			return nil
		},
	}
}

func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}
