package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LogFileName is the per-case log written next to the engine logs.
const LogFileName = "balsamic.log"

// NewLogger creates a configured slog.Logger.
//
// level: slog level (DEBUG, INFO, WARN, ERROR)
// format: "text" (human-readable) or "json" (structured)
//
// Output goes to stderr by default (stdout is reserved for program output).
func NewLogger(level slog.Level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to the given writer.
func NewLoggerWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewCaseLogger returns a logger writing to console and appending to
// logDir/balsamic.log. The caller closes the returned file.
func NewCaseLogger(level slog.Level, format string, console io.Writer, logDir, caseID string) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open case log: %w", err)
	}
	logger := NewLoggerWithWriter(level, format, io.MultiWriter(console, f))
	return logger.With("case", caseID), f, nil
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
