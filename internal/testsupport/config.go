package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"imagebit/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := ShortTempDir(t)
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Scheduler.MaxProcesses = 2
	cfgVal.Scheduler.PollIntervalMS = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithMaxProcesses overrides the scheduler concurrency limit.
func WithMaxProcesses(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.MaxProcesses = n
	}
}

// WithVerifyOutput toggles output verification.
func WithVerifyOutput(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Encoder.VerifyOutput = enabled
	}
}

// WithStubEncoder writes script as an executable and points the encoder
// binary at it.
func WithStubEncoder(script string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "cwebp")
		if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
			b.t.Fatalf("write stub encoder: %v", err)
		}
		b.cfg.Encoder.Binary = target
	}
}

// ReleaseGatedEncoder lets every GatedEncoder process of cfg exit.
func ReleaseGatedEncoder(t testing.TB, cfg *config.Config) {
	t.Helper()
	gate := filepath.Join(filepath.Dir(cfg.Encoder.Binary), "release")
	if err := os.WriteFile(gate, nil, 0o644); err != nil {
		t.Fatalf("release gated encoder: %v", err)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// ShortTempDir returns a temp directory with a short path, so unix socket
// paths beneath it stay under the platform length limit.
func ShortTempDir(t testing.TB) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ib")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}
