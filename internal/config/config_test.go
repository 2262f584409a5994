package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"imagebit/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("IMAGEBIT_ENCODER", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "imagebit")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.LogDir != filepath.Join(wantState, "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Encoder.Binary != "cwebp" {
		t.Fatalf("unexpected encoder binary: %q", cfg.Encoder.Binary)
	}
	if len(cfg.Encoder.FormatFlags) != 1 || cfg.Encoder.FormatFlags[0] != "-lossless" {
		t.Fatalf("unexpected format flags: %v", cfg.Encoder.FormatFlags)
	}
	if len(cfg.Encoder.InputExtensions) != 1 || cfg.Encoder.InputExtensions[0] != ".png" {
		t.Fatalf("unexpected input extensions: %v", cfg.Encoder.InputExtensions)
	}
	if cfg.Encoder.OutputExtension != ".webp" {
		t.Fatalf("unexpected output extension: %q", cfg.Encoder.OutputExtension)
	}
	if cfg.Scheduler.MaxProcesses != 0 {
		t.Fatalf("expected auto concurrency, got %d", cfg.Scheduler.MaxProcesses)
	}
	if cfg.PollInterval() != 100*time.Millisecond {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
	if cfg.EncoderTimeout() != 0 {
		t.Fatalf("expected timeout disabled, got %s", cfg.EncoderTimeout())
	}
	if !cfg.Scheduler.WaitForExit {
		t.Fatal("expected wait_for_exit default true")
	}
	if cfg.HistoryPath() != filepath.Join(wantState, "history.db") {
		t.Fatalf("unexpected history path: %q", cfg.HistoryPath())
	}
}

func TestLoadCustomConfigNormalizesExtensions(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("IMAGEBIT_ENCODER", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := `
[paths]
state_dir = "~/state"

[encoder]
binary = "/opt/bin/cwebp"
input_extensions = ["PNG", ".Png", "jpg", " "]
output_extension = "WEBP"
timeout_seconds = 30

[scheduler]
max_processes = 3
poll_interval_ms = 25

[logging]
format = "JSON"
level = "Debug"
`
	if err := os.WriteFile(configPath, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected explicit config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	want := []string{".png", ".jpg"}
	if strings.Join(cfg.Encoder.InputExtensions, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected input extensions: %v", cfg.Encoder.InputExtensions)
	}
	if cfg.Encoder.OutputExtension != ".webp" {
		t.Fatalf("unexpected output extension: %q", cfg.Encoder.OutputExtension)
	}
	if cfg.EncoderTimeout() != 30*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.EncoderTimeout())
	}
	if cfg.Scheduler.MaxProcesses != 3 || cfg.PollInterval() != 25*time.Millisecond {
		t.Fatalf("unexpected scheduler config: %+v", cfg.Scheduler)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestEncoderEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("IMAGEBIT_ENCODER", "/usr/local/bin/cwebp")
	t.Chdir(t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Encoder.Binary != "/usr/local/bin/cwebp" {
		t.Fatalf("expected env override, got %q", cfg.Encoder.Binary)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"negative processes", func(c *config.Config) { c.Scheduler.MaxProcesses = -1 }, "max_processes"},
		{"negative timeout", func(c *config.Config) { c.Encoder.TimeoutSeconds = -5 }, "timeout_seconds"},
		{"same extension", func(c *config.Config) { c.Encoder.OutputExtension = ".png" }, "must differ"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"empty binary", func(c *config.Config) { c.Encoder.Binary = " " }, "encoder.binary"},
		{"bare ntfy topic", func(c *config.Config) { c.Notifications.NtfyTopic = "my-topic" }, "ntfy_topic"},
		{"negative ntfy timeout", func(c *config.Config) { c.Notifications.RequestTimeoutSeconds = -1 }, "request_timeout_seconds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[encoder]\nbinarie = \"x\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	if _, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestCreateSampleRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("IMAGEBIT_ENCODER", "")
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if decoded.Encoder.Binary != "cwebp" {
		t.Fatalf("unexpected sample binary: %q", decoded.Encoder.Binary)
	}
	if _, _, _, err := config.Load(target); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}

func TestNormalizeExtension(t *testing.T) {
	cases := map[string]string{
		"png":   ".png",
		".PNG":  ".png",
		" jpg ": ".jpg",
		"":      "",
		".":     "",
	}
	for in, want := range cases {
		if got := config.NormalizeExtension(in); got != want {
			t.Fatalf("NormalizeExtension(%q) = %q, want %q", in, got, want)
		}
	}
}
