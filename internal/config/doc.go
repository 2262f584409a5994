// Package config loads, normalizes, and validates imagebit configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// IMAGEBIT_ENCODER. The Config type centralizes every knob the CLI, daemon and
// conversion scheduler need so encoder invocation, concurrency limits and
// state locations are resolved in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical extensions, and clear validation errors.
package config
