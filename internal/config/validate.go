package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEncoder(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeoutSeconds < 0 {
		return errors.New("notifications.request_timeout_seconds must be >= 0")
	}
	if topic := c.Notifications.NtfyTopic; topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateEncoder() error {
	if strings.TrimSpace(c.Encoder.Binary) == "" {
		return errors.New("encoder.binary must be set")
	}
	if len(c.Encoder.InputExtensions) == 0 {
		return errors.New("encoder.input_extensions must list at least one extension")
	}
	for _, ext := range c.Encoder.InputExtensions {
		if ext == c.Encoder.OutputExtension {
			return fmt.Errorf("encoder.output_extension %q must differ from input extensions", ext)
		}
	}
	if c.Encoder.TimeoutSeconds < 0 {
		return errors.New("encoder.timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.MaxProcesses < 0 {
		return errors.New("scheduler.max_processes must be >= 0 (0 selects one per CPU)")
	}
	if c.Scheduler.PollIntervalMS < 0 {
		return errors.New("scheduler.poll_interval_ms must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
