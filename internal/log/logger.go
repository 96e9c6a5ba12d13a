// Package log provides leveled logging to both console and file.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the level tag used in log lines.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel converts a level name to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes output to both console and a log file.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	writer io.Writer
	level  Level
}

// New creates a new logger that writes to both stderr and a log file
// in the specified directory.
func New(logDir string, level Level) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "langquest.log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		file:   file,
		writer: io.MultiWriter(os.Stderr, file),
		level:  level,
	}, nil
}

// NewWriter creates a logger that writes only to w.
func NewWriter(w io.Writer, level Level) *Logger {
	return &Logger{writer: w, level: level}
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintf(l.writer, "[%s] %-5s %s\n", timestamp, level, msg)
}

// Debugf writes a debug message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args...)
}

// Infof writes an informational message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

// Warnf writes a warning.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf(LevelWarn, format, args...)
}

// Errorf writes an error message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// Init initializes the global logger.
// Also redirects Go's standard log package to the log file so stray
// log.Printf calls from dependencies land there too.
func Init(logDir string, level Level) error {
	logger, err := New(logDir, level)
	if err != nil {
		return err
	}
	SetDefault(logger)

	stdlog.SetOutput(logger.file)
	stdlog.SetFlags(stdlog.Ldate | stdlog.Ltime)

	return nil
}

// SetDefault replaces the global logger.
func SetDefault(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

func current() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Debugf logs through the global logger.
func Debugf(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Debugf(format, args...)
	}
}

// Infof logs through the global logger.
func Infof(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Infof(format, args...)
	} else {
		stdlog.Printf(format, args...)
	}
}

// Warnf logs through the global logger.
func Warnf(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Warnf(format, args...)
	} else {
		stdlog.Printf("WARN "+format, args...)
	}
}

// Errorf logs through the global logger.
func Errorf(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Errorf(format, args...)
	} else {
		stdlog.Printf("ERROR "+format, args...)
	}
}

// Close closes the global logger.
func Close() error {
	if l := current(); l != nil {
		return l.Close()
	}
	return nil
}
