// ABOUTME: Structured logging setup shared by every courier component.
// ABOUTME: A compact colored handler for terminals, JSON for everything else.

// Package logging builds the process-wide slog logger from configuration.
package logging
