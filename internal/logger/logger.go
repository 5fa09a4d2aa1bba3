// Package logger provides leveled structured logging.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how log lines are written.
type Options struct {
	Level  string
	Format string // "json" or "text"
	File   string // optional rotated log file
}

var defaultLogger = zerolog.Nop()

// Init initializes the default logger with the specified level and format.
func Init(level string, format string) {
	InitWithOptions(Options{Level: level, Format: format})
}

// InitWithOptions initializes the default logger, optionally teeing output
// into a size-rotated file.
func InitWithOptions(opts Options) {
	var console io.Writer = os.Stderr
	if strings.ToLower(opts.Format) == "text" {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	writer := console
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err == nil {
			writer = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     30,
				Compress:   true,
			})
		}
	}

	defaultLogger = newLogger(writer, opts.Level)
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()
}

// ParseLevel maps a textual level to zerolog; unknown values mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Enabled reports whether messages at the given level would be written.
func Enabled(level zerolog.Level) bool {
	return defaultLogger.GetLevel() <= level
}

func Debug(format string, args ...interface{}) {
	defaultLogger.Debug().Msgf(format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.Info().Msgf(format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.Warn().Msgf(format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.Error().Msgf(format, args...)
}

// Fatal logs and exits. It writes even when Init was never called.
func Fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if defaultLogger.GetLevel() == zerolog.Disabled {
		fmt.Fprintln(os.Stderr, "[FATAL] "+msg)
		os.Exit(1)
	}
	defaultLogger.WithLevel(zerolog.FatalLevel).Msg(msg)
	os.Exit(1)
}
