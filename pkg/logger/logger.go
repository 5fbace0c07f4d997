// Package logger provides structured logging for mandistream services.
// It wraps zerolog behind the small surface the rest of the codebase uses,
// so callers never import zerolog directly.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a named, structured logger.
type Logger struct {
	// base carries the writer, level, and timestamp but no component,
	// so Named children start from a clean context.
	base zerolog.Logger
	zl   zerolog.Logger
	name string
}

// New creates a logger writing to w at the given level.
func New(name string, w io.Writer, level string) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	base := zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	return &Logger{
		base: base,
		zl:   base.With().Str("component", name).Logger(),
		name: name,
	}
}

// NewDefault creates a logger writing human-readable output to stderr.
func NewDefault(name string) *Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return New(name, w, "info")
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{base: zerolog.Nop(), zl: zerolog.Nop()}
}

// Named returns a child logger with a sub-component name.
func (l *Logger) Named(name string) *Logger {
	full := l.name + "." + name
	return &Logger{
		base: l.base,
		zl:   l.base.With().Str("component", full).Logger(),
		name: full,
	}
}

// WithField returns a logger with a field attached to every entry.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{base: l.base, zl: l.zl.With().Interface(key, value).Logger(), name: l.name}
}

// WithError returns a logger with the error attached to every entry.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{base: l.base, zl: l.zl.With().Err(err).Logger(), name: l.name}
}

// Debug logs at debug level. Args are alternating key/value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.emit(l.zl.Debug(), msg, args)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.emit(l.zl.Info(), msg, args)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.emit(l.zl.Warn(), msg, args)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.emit(l.zl.Error(), msg, args)
}

func (l *Logger) emit(ev *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, args[i+1])
	}
	ev.Msg(msg)
}
