// ABOUTME: Configuration loading for courier.
// ABOUTME: YAML or TOML files, ${VAR} expansion, env overrides, durations.

// Package config loads the courier configuration. The file format follows
// its extension (.yaml/.yml or .toml); ${VAR} references expand from the
// environment before parsing, and COURIER_* environment variables override
// the secrets so tokens can stay out of the file entirely.
package config
