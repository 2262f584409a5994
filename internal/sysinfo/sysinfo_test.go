package sysinfo

import (
	"context"
	"errors"
	"runtime"
	"testing"
)

func TestDefaultLimitPrefersConfiguredValue(t *testing.T) {
	if got := DefaultLimit(context.Background(), 3); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestDefaultLimitUsesLogicalCPUs(t *testing.T) {
	orig := countLogical
	t.Cleanup(func() { countLogical = orig })
	countLogical = func(context.Context) (int, error) { return 12, nil }

	if got := DefaultLimit(context.Background(), 0); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
}

func TestLogicalCPUsFallsBackToRuntime(t *testing.T) {
	orig := countLogical
	t.Cleanup(func() { countLogical = orig })

	for _, stub := range []func(context.Context) (int, error){
		func(context.Context) (int, error) { return 0, errors.New("not supported") },
		func(context.Context) (int, error) { return 0, nil },
	} {
		countLogical = stub
		if got := LogicalCPUs(context.Background()); got != runtime.NumCPU() {
			t.Fatalf("expected runtime fallback %d, got %d", runtime.NumCPU(), got)
		}
	}
}
