package selector_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"imagebit/internal/selector"
)

func TestSelectFiltersAndPreservesOrder(t *testing.T) {
	s := selector.New(".png")
	in := []string{"/in/b.png", "/in/c.txt", "/in/a.PNG", "/in/archive.png.bak", "/in/noext", "/in/d.Png"}
	got := s.Select(in)
	want := []string{"/in/b.png", "/in/a.PNG", "/in/d.Png"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Select = %v, want %v", got, want)
	}
}

func TestSelectIsIdempotent(t *testing.T) {
	s := selector.New("png", "JPG")
	in := []string{"x.jpg", "y.gif", "z.png", "w.JPG", "v.jpeg"}
	once := s.Select(in)
	twice := s.Select(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("select not idempotent: %v vs %v", once, twice)
	}
	if len(once) != 3 {
		t.Fatalf("expected 3 matches, got %v", once)
	}
}

func TestSelectEmptyInput(t *testing.T) {
	got := selector.New(".png").Select(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
}

func TestZeroSelectorMatchesNothing(t *testing.T) {
	var s *selector.Selector
	if s.Matches("a.png") {
		t.Fatal("nil selector should not match")
	}
	if selector.New("", ".").Matches("a.png") {
		t.Fatal("blank extensions should not match")
	}
}

func TestScanReadsFlatDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.png", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "nested.png"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested.png", "deep.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write nested: %v", err)
	}

	got, err := selector.New(".png").Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Scan = %v, want %v", got, want)
	}
}

func TestListMissingDirectory(t *testing.T) {
	if _, err := selector.List(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
