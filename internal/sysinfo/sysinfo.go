// Package sysinfo reports host facts used to size the encoder pool.
package sysinfo

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
)

var countLogical = func(ctx context.Context) (int, error) {
	return cpu.CountsWithContext(ctx, true)
}

// LogicalCPUs returns the number of logical processors on the host. When the
// host query fails it falls back to the Go runtime's view.
func LogicalCPUs(ctx context.Context) int {
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	n, err := countLogical(queryCtx)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// DefaultLimit resolves a configured process limit. Zero or negative values
// mean one process per logical CPU.
func DefaultLimit(ctx context.Context, configured int) int {
	if configured > 0 {
		return configured
	}
	return LogicalCPUs(ctx)
}
