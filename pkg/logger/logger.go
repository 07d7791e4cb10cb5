package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Logger writes leveled messages to a log file, mirroring errors to stderr.
type Logger struct {
	level  Level
	logger *log.Logger
	file   *os.File
}

var defaultLogger *Logger

// Options configures a Logger.
type Options struct {
	Level    Level
	LogFile  string // empty means stderr only
	Preserve bool   // append instead of truncating on startup
}

// Init sets up the package-level default logger.
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defaultLogger = l
	return nil
}

func New(opts Options) (*Logger, error) {
	if opts.LogFile == "" {
		return &Logger{
			level:  opts.Level,
			logger: log.New(os.Stderr, "", log.LstdFlags),
		}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if opts.Preserve {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(opts.LogFile, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		level:  opts.Level,
		logger: log.New(file, "", log.LstdFlags),
		file:   file,
	}, nil
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] %s", level.String(), message)

	if level >= LevelError && l.file != nil {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", level.String(), message)
	}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(LevelError, format, args...) }

func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(LevelFatal, format, args...)
	os.Exit(1)
}

// Package-level convenience functions using the default logger. They are
// no-ops until Init runs, so library code can log unconditionally.

func Debug(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Debug(format, args...)
	}
}

func Info(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Info(format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Warn(format, args...)
	}
}

func Error(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Error(format, args...)
	}
}

func Fatal(format string, args ...interface{}) {
	if defaultLogger == nil {
		fmt.Fprintf(os.Stderr, "[FATAL] "+format+"\n", args...)
		os.Exit(1)
	}
	defaultLogger.Fatal(format, args...)
}

// Close closes the default logger's file if one is open.
func Close() error {
	if defaultLogger != nil {
		return defaultLogger.Close()
	}
	return nil
}
