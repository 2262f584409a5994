//go:build unix

package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imagebit/internal/testsupport"
)

func TestCheckReadableDir(t *testing.T) {
	dir := t.TempDir()
	if result := CheckReadableDir("test", dir); !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
	if result := CheckReadableDir("test", filepath.Join(dir, "nope")); result.Passed || result.Detail == "" {
		t.Fatalf("expected failure for missing dir, got %+v", result)
	}

	f := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckReadableDir("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckWritableDirAllowsMissingLeaf(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out", "nested")
	result := CheckWritableDir("Output directory", target)
	if !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "will be created") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckWritableDirRejectsFileAncestor(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckWritableDir("Output directory", filepath.Join(f, "out")); result.Passed {
		t.Fatal("expected failure beneath a regular file")
	}
}

func TestCheckEncoder(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubEncoder("#!/bin/sh\nexit 0\n"))
	if result := CheckEncoder(cfg.Encoder.Binary); !result.Passed {
		t.Fatalf("expected encoder check to pass, got %s", result.Detail)
	}

	nonExec := filepath.Join(t.TempDir(), "cwebp")
	if err := os.WriteFile(nonExec, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckEncoder(nonExec); result.Passed {
		t.Fatal("expected non-executable encoder to fail")
	}
	if result := CheckEncoder(""); result.Passed {
		t.Fatal("expected blank encoder to fail")
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubEncoder("#!/bin/sh\nexit 0\n"))
	in := t.TempDir()
	results := RunAll(cfg, in, filepath.Join(t.TempDir(), "out"))
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if failed, ok := FirstFailure(results); ok {
		t.Fatalf("unexpected failure %s: %s", failed.Name, failed.Detail)
	}

	results = RunAll(cfg, filepath.Join(in, "missing"), "")
	failed, ok := FirstFailure(results)
	if !ok || failed.Name != "Input directory" {
		t.Fatalf("expected input directory failure, got %+v", results)
	}
	if RunAll(nil, in, "") != nil {
		t.Fatal("expected nil results for nil config")
	}
}
