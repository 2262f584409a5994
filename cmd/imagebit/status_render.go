package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"imagebit/internal/conversion"
	"imagebit/internal/ipc"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func runStateKind(state string) statusKind {
	switch conversion.RunState(state) {
	case conversion.StateRunning, conversion.StateCompleted:
		return statusOK
	case conversion.StateCancelling, conversion.StateCancelled:
		return statusWarn
	case conversion.StateFailed:
		return statusError
	default:
		return statusInfo
	}
}

func statusLines(status *ipc.StatusResponse, colorize bool) []string {
	lines := []string{
		renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize),
		renderStatusLine("Conversion", runStateKind(status.State), status.State, colorize),
	}
	if status.RunID == "" {
		return lines
	}
	lines = append(lines,
		renderStatusLine("Run", statusInfo, status.RunID, colorize),
		renderStatusLine("Input", statusInfo, status.InputDir, colorize),
		renderStatusLine("Output", statusInfo, status.OutputDir, colorize),
		renderStatusLine("Progress", statusInfo, fmt.Sprintf("%d / %d launched, %d running (limit %d)",
			status.Launched, status.Total, status.Active, status.Limit), colorize),
		renderStatusLine("Finished", statusInfo, fmt.Sprintf("%d exited, %d failed", status.Completed, status.Failed), colorize),
	)
	if status.LastFile != "" {
		lines = append(lines, renderStatusLine("Last file", statusInfo,
			fmt.Sprintf("(%d / %d) %s", status.LastIndex, status.Total, status.LastFile), colorize))
	}
	if status.Error != "" {
		lines = append(lines, renderStatusLine("Error", statusError, status.Error, colorize))
	}
	return lines
}
