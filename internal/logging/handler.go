// ABOUTME: Compact slog handler for terminal output.
// ABOUTME: One line per record, level colored, attrs as key=value.

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var (
	dimText   = color.New(color.FgHiBlack).SprintFunc()
	errText   = color.New(color.FgRed).SprintFunc()
	warnText  = color.New(color.FgYellow).SprintFunc()
	infoText  = color.New(color.FgCyan).SprintFunc()
	debugText = color.New(color.FgHiBlack).SprintFunc()
)

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	Level slog.Level
	Color bool
}

// Handler renders compact single-line records. Safe for concurrent use.
type Handler struct {
	w     io.Writer
	mu    *sync.Mutex
	level slog.Level
	color bool
	attrs []slog.Attr
}

// NewHandler creates a handler writing to w.
func NewHandler(w io.Writer, opts *HandlerOptions) *Handler {
	if opts == nil {
		opts = &HandlerOptions{}
	}
	return &Handler{
		w:     w,
		mu:    &sync.Mutex{},
		level: opts.Level,
		color: opts.Color,
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.Format("15:04:05")
	if !h.color {
		ts = r.Time.Format("2006-01-02 15:04:05")
	}

	var sb strings.Builder
	if h.color {
		sb.WriteString(dimText(ts))
		sb.WriteByte(' ')
		sb.WriteString(levelColor(r.Level)(levelLabel(r.Level)))
	} else {
		sb.WriteString(ts)
		sb.WriteByte(' ')
		sb.WriteString(levelLabel(r.Level))
	}
	sb.WriteByte(' ')
	sb.WriteString(r.Message)

	for _, a := range h.attrs {
		sb.WriteString(h.fmtAttr(a))
	}
	r.Attrs(func(a slog.Attr) bool {
		sb.WriteString(h.fmtAttr(a))
		return true
	})
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(combined, h.attrs)
	copy(combined[len(h.attrs):], attrs)
	return &Handler{w: h.w, mu: h.mu, level: h.level, color: h.color, attrs: combined}
}

func (h *Handler) WithGroup(string) slog.Handler {
	return h
}

func (h *Handler) fmtAttr(a slog.Attr) string {
	if h.color {
		return fmt.Sprintf(" %s=%s", dimText(a.Key), a.Value.String())
	}
	return fmt.Sprintf(" %s=%s", a.Key, a.Value.String())
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERR"
	case level >= slog.LevelWarn:
		return "WRN"
	case level >= slog.LevelInfo:
		return "INF"
	default:
		return "DBG"
	}
}

func levelColor(level slog.Level) func(...interface{}) string {
	switch {
	case level >= slog.LevelError:
		return errText
	case level >= slog.LevelWarn:
		return warnText
	case level >= slog.LevelInfo:
		return infoText
	default:
		return debugText
	}
}
