// Package logger provides the structured logger shared by the hub and the
// HTTP layer. It wraps log/slog and is configured once at startup from the
// logging section of the server configuration.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the logging level
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

var (
	mu           sync.RWMutex
	globalLogger *Logger
)

// ParseLevel maps a config string onto a slog level. Unknown values fall back
// to info and report false.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case string(DebugLevel):
		return slog.LevelDebug, true
	case string(InfoLevel), "":
		return slog.LevelInfo, true
	case string(WarnLevel):
		return slog.LevelWarn, true
	case string(ErrorLevel):
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// New builds a logger writing to w in the given format ("json" or "text").
func New(level LogLevel, format string, w io.Writer) *Logger {
	logLevel, _ := ParseLevel(string(level))
	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Init initializes the global logger on stdout and makes it the slog default.
func Init(level LogLevel, format string) *Logger {
	l := New(level, format, os.Stdout)

	mu.Lock()
	globalLogger = l
	mu.Unlock()

	slog.SetDefault(l.Logger)
	return l
}

// Get returns the global logger instance
func Get() *Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		// Fallback to default text handler if not initialized
		globalLogger = New(InfoLevel, "text", os.Stdout)
	}
	return globalLogger
}

// Discard returns a logger that drops everything. Intended for tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// With returns a new logger with additional attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// ErrorWithErr logs an error message with an error object
func (l *Logger) ErrorWithErr(msg string, err error, args ...any) {
	args = append(args, slog.Any("error", err))
	l.Logger.Error(msg, args...)
}

// WarnWithErr logs a warning with an error object
func (l *Logger) WarnWithErr(msg string, err error, args ...any) {
	args = append(args, slog.Any("error", err))
	l.Logger.Warn(msg, args...)
}
