// ABOUTME: Builds the root logger from the configured level and format.

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Setup builds a logger. Level is one of debug/info/warn/error; format is
// "text" for the compact handler, "color" for the same with ANSI colors, or
// "json" for machine-readable output.
func Setup(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = NewHandler(w, &HandlerOptions{Level: lvl})
	case "color":
		handler = NewHandler(w, &HandlerOptions{Level: lvl, Color: true})
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		return nil, fmt.Errorf("logging: unknown format %q", format)
	}
	return slog.New(handler), nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", level)
	}
}
