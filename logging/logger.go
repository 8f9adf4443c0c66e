package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// LogLevel defines severity for logger output.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// ParseLevel maps a level name ("error", "warn", "info", "debug") to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "info", "":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", name)
}

func (l LogLevel) charm() charmlog.Level {
	switch l {
	case LogLevelError:
		return charmlog.ErrorLevel
	case LogLevelWarn:
		return charmlog.WarnLevel
	case LogLevelDebug:
		return charmlog.DebugLevel
	default:
		return charmlog.InfoLevel
	}
}

// Logger provides leveled logging.
type Logger struct {
	level  LogLevel
	logger *charmlog.Logger
}

// NewLogger creates a logger with desired level and prefix writing to stdout.
func NewLogger(level LogLevel, prefix string) *Logger {
	return NewLoggerTo(os.Stdout, level, prefix)
}

// NewLoggerTo creates a logger writing to w.
func NewLoggerTo(w io.Writer, level LogLevel, prefix string) *Logger {
	return &Logger{
		level: level,
		logger: charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.000000",
			Prefix:          prefix,
			Level:           level.charm(),
		}),
	}
}

// SetLevel adjusts current logging level.
func (l *Logger) SetLevel(level LogLevel) {
	if l == nil {
		return
	}
	l.level = level
	l.logger.SetLevel(level.charm())
}

// Level reports the current level.
func (l *Logger) Level() LogLevel {
	if l == nil {
		return LogLevelError
	}
	return l.level
}

// With returns a child logger carrying the given key/value pairs on every line.
func (l *Logger) With(keyvals ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{level: l.level, logger: l.logger.With(keyvals...)}
}

// Debugf prints debug messages.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || LogLevelDebug > l.level {
		return
	}
	l.logger.Debugf(format, args...)
}

// Infof prints info messages.
func (l *Logger) Infof(format string, args ...any) {
	if l == nil || LogLevelInfo > l.level {
		return
	}
	l.logger.Infof(format, args...)
}

// Warnf prints warning messages.
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil || LogLevelWarn > l.level {
		return
	}
	l.logger.Warnf(format, args...)
}

// Errorf prints error messages.
func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.logger.Errorf(format, args...)
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = NewLogger(LogLevelInfo, "walker")
)

// GetLogger returns the global logger.
func GetLogger() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetLogger replaces the global logger (primarily for tests).
func SetLogger(l *Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}
