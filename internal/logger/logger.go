// Package logger provides a simple leveled logger for the application.
// It supports three levels: off (no output), normal (info/warn/error),
// and verbose (includes debug). Output is produced by zerolog; the logger
// is safe for concurrent use.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level controls the verbosity of the logger.
type Level int

const (
	// LevelOff disables all log output.
	LevelOff Level = iota
	// LevelNormal enables info, warn, and error output.
	LevelNormal
	// LevelVerbose enables all output including debug.
	LevelVerbose
)

// Logger is a leveled logger. All methods are safe for concurrent use.
type Logger struct {
	mu    sync.RWMutex
	level Level
	zl    zerolog.Logger
}

// Option configures a Logger.
type Option func(*options)

type options struct {
	console bool
}

// WithConsole renders human-readable lines instead of JSON. Use it when the
// output is a terminal.
func WithConsole(enabled bool) Option {
	return func(o *options) { o.console = enabled }
}

// New creates a logger with the given level, writing to the given output.
// If out is nil, os.Stderr is used.
func New(level Level, out io.Writer, opts ...Option) *Logger {
	if out == nil {
		out = os.Stderr
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly, NoColor: true}
	}

	l := &Logger{zl: zerolog.New(out).With().Timestamp().Logger()}
	l.SetLevel(level)
	return l
}

// SetLevel changes the log level at runtime.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.zl = l.zl.Level(zerologLevel(level))
}

// GetLevel returns the current log level.
func (l *Logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// Debug logs a message at debug level (only visible in verbose mode).
func (l *Logger) Debug(format string, args ...any) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.zl.Debug().Msg(fmt.Sprintf(format, args...))
}

// Info logs a message at info level.
func (l *Logger) Info(format string, args ...any) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.zl.Info().Msg(fmt.Sprintf(format, args...))
}

// Warn logs a message at warn level.
func (l *Logger) Warn(format string, args ...any) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.zl.Warn().Msg(fmt.Sprintf(format, args...))
}

// Error logs a message at error level.
func (l *Logger) Error(format string, args ...any) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.zl.Error().Msg(fmt.Sprintf(format, args...))
}

// With returns a child logger that attaches key=value to every line.
func (l *Logger) With(key, value string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{level: l.level, zl: l.zl.With().Str(key, value).Logger()}
}

func zerologLevel(level Level) zerolog.Level {
	switch {
	case level >= LevelVerbose:
		return zerolog.DebugLevel
	case level == LevelNormal:
		return zerolog.InfoLevel
	default:
		return zerolog.Disabled
	}
}
