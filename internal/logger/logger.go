package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents log severity
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string to a Level; unknown values map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// F is a shorthand for creating a Field
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Config holds logger configuration
type Config struct {
	Level      Level  // Minimum log level
	FilePath   string // Path to log file; empty disables file output
	MaxSizeMB  int    // Max size in megabytes before rotation
	MaxAgeDays int    // Max age in days of rotated files
	MaxBackups int    // Max number of rotated files kept
	Console    bool   // Also write to stderr
}

// DefaultConfig returns console-only INFO logging.
func DefaultConfig() Config {
	return Config{
		Level:      INFO,
		MaxSizeMB:  10,
		MaxAgeDays: 7,
		MaxBackups: 5,
		Console:    true,
	}
}

// Logger writes leveled entries with structured fields.
type Logger struct {
	level  Level
	out    io.Writer
	closer io.Closer
	mu     *sync.Mutex
	fields []Field
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// Init replaces the global logger.
func Init(config Config) error {
	l, err := New(config)
	if err != nil {
		return err
	}
	globalMu.Lock()
	old := globalLogger
	globalLogger = l
	globalMu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// New creates a new logger instance. File output is rotated by lumberjack.
func New(config Config) (*Logger, error) {
	var writers []io.Writer
	var closer io.Closer

	if config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSizeMB,
			MaxAge:     config.MaxAgeDays,
			MaxBackups: config.MaxBackups,
		}
		writers = append(writers, rotator)
		closer = rotator
	}

	if config.Console {
		writers = append(writers, os.Stderr)
	}

	return &Logger{
		level:  config.Level,
		out:    io.MultiWriter(writers...),
		closer: closer,
		mu:     &sync.Mutex{},
	}, nil
}

// NewWriter creates a logger writing to w, mainly for tests.
func NewWriter(w io.Writer, level Level) *Logger {
	return &Logger{level: level, out: w, mu: &sync.Mutex{}}
}

// log writes a log entry
func (l *Logger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	_, file, line, ok := runtime.Caller(3)
	caller := "???"
	if ok {
		caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s: %s",
		time.Now().Format("2006-01-02 15:04:05.000"), level, caller, msg)

	if len(l.fields)+len(fields) > 0 {
		b.WriteString(" |")
		for _, f := range l.fields {
			fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
		}
		for _, f := range fields {
			fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
		}
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, b.String())
}

// WithFields creates a new logger with preset fields. It shares the
// output of its parent.
func (l *Logger) WithFields(fields ...Field) *Logger {
	preset := make([]Field, 0, len(l.fields)+len(fields))
	preset = append(preset, l.fields...)
	preset = append(preset, fields...)
	return &Logger{
		level:  l.level,
		out:    l.out,
		mu:     l.mu,
		fields: preset,
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Field) { l.entry(DEBUG, msg, fields) }

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Field) { l.entry(INFO, msg, fields) }

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Field) { l.entry(WARN, msg, fields) }

// Error logs an error message
func (l *Logger) Error(msg string, fields ...Field) { l.entry(ERROR, msg, fields) }

// entry keeps the call depth identical for methods and globals.
func (l *Logger) entry(level Level, msg string, fields []Field) {
	l.log(level, msg, fields)
}

// Close closes the rotating file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// L returns the global logger, falling back to a console logger.
func L() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}
	fallback, _ := New(DefaultConfig())
	globalMu.Lock()
	if globalLogger == nil {
		globalLogger = fallback
	}
	l = globalLogger
	globalMu.Unlock()
	return l
}

// Global logger functions

// Debug logs a debug message using the global logger
func Debug(msg string, fields ...Field) { L().entry(DEBUG, msg, fields) }

// Info logs an info message using the global logger
func Info(msg string, fields ...Field) { L().entry(INFO, msg, fields) }

// Warn logs a warning message using the global logger
func Warn(msg string, fields ...Field) { L().entry(WARN, msg, fields) }

// Error logs an error message using the global logger
func Error(msg string, fields ...Field) { L().entry(ERROR, msg, fields) }

// WithFields creates a new logger with preset fields using the global logger
func WithFields(fields ...Field) *Logger {
	return L().WithFields(fields...)
}

// Close closes the global logger
func Close() error {
	globalMu.Lock()
	l := globalLogger
	globalLogger = nil
	globalMu.Unlock()
	if l == nil {
		return nil
	}
	return l.Close()
}
