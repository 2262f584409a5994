// Package outputcheck inspects encoder outputs after a zero exit status.
//
// A file counts as converted only when its output exists, is non-empty and,
// for WebP targets, carries a decodable header.
package outputcheck

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
)

// Info describes a verified output file.
type Info struct {
	Path   string
	Size   int64
	Width  int
	Height int
	Alpha  bool
}

// Inspect verifies the output at path and returns what it learned.
func Inspect(path string) (Info, error) {
	info := Info{Path: path}
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return info, fmt.Errorf("output %s was not created", filepath.Base(path))
		}
		return info, fmt.Errorf("stat output: %w", err)
	}
	if stat.IsDir() {
		return info, fmt.Errorf("output %s is a directory", filepath.Base(path))
	}
	info.Size = stat.Size()
	if info.Size == 0 {
		return info, fmt.Errorf("output %s is empty", filepath.Base(path))
	}

	if !strings.EqualFold(filepath.Ext(path), ".webp") {
		return info, nil
	}
	data, err := readHeader(path)
	if err != nil {
		return info, fmt.Errorf("read output: %w", err)
	}
	width, height, alpha, err := webp.GetInfo(data)
	if err != nil {
		return info, fmt.Errorf("decode webp header: %w", err)
	}
	info.Width, info.Height, info.Alpha = width, height, alpha
	return info, nil
}

// headerLimit bounds how much of an output is read to find its WebP header.
const headerLimit = 64 << 10

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, headerLimit))
}

// Verify is Inspect without the details. It matches the scheduler's output
// hook signature.
func Verify(path string) error {
	_, err := Inspect(path)
	return err
}
