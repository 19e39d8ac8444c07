// Package log provides structured logging for gostep host tools.
// It wraps slog with defaults suited to a terminal and to log collectors.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Init initializes the global logger with the specified level.
// Valid levels: "debug", "info", "warn", "error"
func Init(level string) {
	InitWriter(level, os.Stderr)
}

// InitWriter initializes the global logger writing to w. The output is
// JSON when GOSTEP_LOG_FORMAT=json, text otherwise.
func InitWriter(level string, w io.Writer) {
	once.Do(func() {
		logger = New(level, w, os.Getenv("GOSTEP_LOG_FORMAT") == "json")
		slog.SetDefault(logger)
	})
}

// New builds a standalone logger without touching the global one
func New(level string, w io.Writer, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog level; unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// DebugWriter adapts l to the core debug writer, so timing ring dumps land
// in the structured log.
func DebugWriter(l *slog.Logger) func(string) {
	return func(line string) {
		l.Debug(strings.TrimSpace(line), "source", "core")
	}
}
