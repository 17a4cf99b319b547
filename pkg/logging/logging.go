package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ParseLevel converts a config string to a LogLevel, defaulting to info
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LogLevelDebug:
		return LogLevelDebug
	case LogLevelWarn:
		return LogLevelWarn
	case LogLevelError:
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger wraps slog.Logger with a component attribute on every record
type Logger struct {
	*slog.Logger
	component string
}

// NewLogger creates a structured JSON logger writing to stderr
func NewLogger(component string, level LogLevel) *Logger {
	return NewLoggerWithWriter(os.Stderr, component, level)
}

// NewLoggerWithWriter creates a structured JSON logger writing to w
func NewLoggerWithWriter(w io.Writer, component string, level LogLevel) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level.slogLevel(),
	})

	return &Logger{
		Logger:    slog.New(handler),
		component: component,
	}
}

// NewFileLogger opens (appending) a log file and returns a logger writing
// to it. The caller closes the returned file.
func NewFileLogger(path, component string, level LogLevel) (*Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return NewLoggerWithWriter(f, component, level), f, nil
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return NewLoggerWithWriter(io.Discard, "discard", LogLevelError)
}

// Component returns the component name attached to records
func (l *Logger) Component() string {
	return l.component
}

// WithComponent creates a logger with a different component name
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.Logger,
		component: component,
	}
}

// WithJob creates a logger carrying the job id
func (l *Logger) WithJob(jobID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("job_id", jobID),
		component: l.component,
	}
}

// Debug logs a debug message with component context
func (l *Logger) Debug(msg string, args ...any) {
	l.Logger.Debug(msg, append([]any{"component", l.component}, args...)...)
}

// Info logs an info message with component context
func (l *Logger) Info(msg string, args ...any) {
	l.Logger.Info(msg, append([]any{"component", l.component}, args...)...)
}

// Warn logs a warning message with component context
func (l *Logger) Warn(msg string, args ...any) {
	l.Logger.Warn(msg, append([]any{"component", l.component}, args...)...)
}

// Error logs an error message with component context
func (l *Logger) Error(msg string, args ...any) {
	l.Logger.Error(msg, append([]any{"component", l.component}, args...)...)
}

// LogStartup logs the effective settings once at startup
func (l *Logger) LogStartup(version, downloadDir string, cookies, autoCopy bool) {
	l.Info("snatch starting",
		"version", version,
		"download_dir", downloadDir,
		"cookies", cookies,
		"auto_copy", autoCopy,
		"pid", os.Getpid())
}

// LogAdmission logs a scheduling decision
func (l *Logger) LogAdmission(jobID, url string, admitted bool, wait string) {
	l.Info("submit processed",
		"job_id", jobID,
		"url", url,
		"admitted", admitted,
		"wait", wait)
}

// LogError logs error events with context
func (l *Logger) LogError(operation string, err error, context ...any) {
	args := append([]any{"operation", operation, "error", err.Error()}, context...)
	l.Error("operation failed", args...)
}
