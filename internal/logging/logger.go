// Package logging wraps log/slog with a TRACE level and a compact console
// handler shared by the MCP server, the REST API and the poll loop.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LevelTrace sits below slog.LevelDebug. The MCP server logs raw request
// bodies at this level.
const LevelTrace = slog.Level(-8)

// Re-exported slog levels so callers only import this package.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel maps a config string to a level. Unknown strings return
// LevelInfo together with an error so callers can warn and keep going.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// LevelString renders a level name, including TRACE.
func LevelString(level slog.Level) string {
	switch {
	case level <= LevelTrace:
		return "TRACE"
	case level <= LevelDebug:
		return "DEBUG"
	case level <= LevelInfo:
		return "INFO"
	case level <= LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// Logger is a slog.Logger with a Trace method and a known level.
type Logger struct {
	*slog.Logger
	level slog.Level
}

// consoleHandler writes one line per record:
// "YYYY-MM-DD HH:MM:SS LEVEL message key=value ..."
// preset holds attributes accumulated through WithAttrs.
type consoleHandler struct {
	level  slog.Level
	out    io.Writer
	preset []slog.Attr
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Time.Format(time.DateOnly + " " + time.TimeOnly))
	sb.WriteString(" ")
	sb.WriteString(LevelString(r.Level))
	sb.WriteString(" ")
	sb.WriteString(r.Message)

	for _, a := range h.preset {
		writeAttr(&sb, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, a)
		return true
	})

	sb.WriteString("\n")
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func writeAttr(sb *strings.Builder, a slog.Attr) {
	fmt.Fprintf(sb, " %s=%v", a.Key, a.Value.Any())
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	merged := make([]slog.Attr, 0, len(h.preset)+len(attrs))
	merged = append(merged, h.preset...)
	merged = append(merged, attrs...)
	return &consoleHandler{level: h.level, out: h.out, preset: merged}
}

// WithGroup is accepted but flattens: groups add nothing to a single-line
// console format.
func (h *consoleHandler) WithGroup(_ string) slog.Handler {
	return h
}

// New creates a Logger writing to stdout at the given level.
func New(level slog.Level) *Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter creates a Logger writing to w. Tests use this to capture
// output.
func NewWithWriter(level slog.Level, w io.Writer) *Logger {
	return &Logger{
		Logger: slog.New(&consoleHandler{level: level, out: w}),
		level:  level,
	}
}

// SetDefault installs the logger as the process-wide slog default.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}

// Trace logs below DEBUG.
func (l *Logger) Trace(msg string, args ...any) {
	l.Log(context.Background(), LevelTrace, msg, args...)
}

// Level returns the level the logger was created with.
func (l *Logger) Level() slog.Level {
	return l.level
}
