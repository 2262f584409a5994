// Package selector narrows a raw directory listing down to the files the
// encoder accepts.
package selector

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/text/cases"
)

var fold = cases.Fold()

// Selector filters paths by extension. The zero value selects nothing.
type Selector struct {
	extensions map[string]struct{}
}

// New builds a selector for the given extensions. Extensions may be given
// with or without the leading dot and in any case.
func New(extensions ...string) *Selector {
	s := &Selector{extensions: make(map[string]struct{}, len(extensions))}
	for _, ext := range extensions {
		key := foldExt(ext)
		if key == "" || key == "." {
			continue
		}
		if key[0] != '.' {
			key = "." + key
		}
		s.extensions[key] = struct{}{}
	}
	return s
}

// Matches reports whether path carries one of the selector's extensions.
func (s *Selector) Matches(path string) bool {
	if s == nil || len(s.extensions) == 0 {
		return false
	}
	_, ok := s.extensions[foldExt(filepath.Ext(path))]
	return ok
}

// Select returns the subset of paths with a matching extension, preserving
// their relative order. Empty input yields an empty, non-nil slice.
func (s *Selector) Select(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if s.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}

// List returns the regular files directly inside dir, sorted by name. It
// does not recurse.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			// Resolve symlinks so linked images are still picked up.
			if entry.Type()&os.ModeSymlink == 0 {
				continue
			}
			info, err := os.Stat(filepath.Join(dir, entry.Name()))
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Scan lists dir and applies the selector in one step.
func (s *Selector) Scan(dir string) ([]string, error) {
	paths, err := List(dir)
	if err != nil {
		return nil, err
	}
	return s.Select(paths), nil
}

func foldExt(ext string) string {
	return fold.String(ext)
}
