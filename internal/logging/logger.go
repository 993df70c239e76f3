package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger wraps slog for structured logging.
type Logger struct {
	logger *slog.Logger
}

// Config configures the logger.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level"`
	// Format is json or text.
	Format string    `json:"format" yaml:"format"`
	Output io.Writer `json:"-" yaml:"-"`
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(New(Config{Output: os.Stderr}))
}

// New creates a structured logger. Unknown levels fall back to info and
// unknown formats to text.
func New(cfg Config) *Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return &Logger{logger: slog.New(handler)}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(Config{Output: io.Discard, Level: "error"})
}

// Default returns the process-wide logger.
func Default() *Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	defaultLogger.Store(l)
}

// With adds fields to the logger.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// Slog exposes the underlying slog logger.
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}
