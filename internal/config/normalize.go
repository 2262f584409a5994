package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEncoder()
	c.normalizeScheduler()
	c.normalizeLogging()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, defaultLogDirName)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEncoder() {
	if value, ok := os.LookupEnv("IMAGEBIT_ENCODER"); ok && strings.TrimSpace(value) != "" {
		c.Encoder.Binary = value
	}
	c.Encoder.Binary = strings.TrimSpace(c.Encoder.Binary)
	if c.Encoder.Binary == "" {
		c.Encoder.Binary = defaultEncoderBinary
	}
	if strings.HasPrefix(c.Encoder.Binary, "~") {
		if expanded, err := expandPath(c.Encoder.Binary); err == nil {
			c.Encoder.Binary = expanded
		}
	}
	c.Encoder.FormatFlags = trimNonEmpty(c.Encoder.FormatFlags)
	c.Encoder.ExtraArgs = trimNonEmpty(c.Encoder.ExtraArgs)

	exts := make([]string, 0, len(c.Encoder.InputExtensions))
	seen := make(map[string]struct{}, len(c.Encoder.InputExtensions))
	for _, ext := range c.Encoder.InputExtensions {
		normalized := NormalizeExtension(ext)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = []string{defaultInputExtension}
	}
	c.Encoder.InputExtensions = exts

	c.Encoder.OutputExtension = NormalizeExtension(c.Encoder.OutputExtension)
	if c.Encoder.OutputExtension == "" {
		c.Encoder.OutputExtension = defaultOutputExtension
	}
}

func (c *Config) normalizeScheduler() {
	if c.Scheduler.PollIntervalMS == 0 {
		c.Scheduler.PollIntervalMS = defaultPollIntervalMS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// NormalizeExtension lowercases an extension and ensures a leading dot.
// Blank input yields an empty string.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func trimNonEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
