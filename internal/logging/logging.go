// Package logging builds the slog loggers used across the SDK and its
// tools. Output goes to stderr and, when a directory is configured, to a
// size rotated log file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"clickstream/internal/config"
)

// FileName is the log file written inside the logs directory.
const FileName = "clickstream.log"

// Config controls logger construction.
type Config struct {
	Level      string
	LogDir     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Quiet disables the stderr sink.
	Quiet bool
	// Debug forces debug level regardless of Level.
	Debug bool
}

// FromConfig maps SDK configuration onto logger settings.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Level:      string(cfg.LogLevel),
		LogDir:     cfg.LogsDirectory,
		MaxSizeMB:  cfg.LogsMaxSizeInMb,
		MaxBackups: cfg.LogsMaxBackups,
		MaxAgeDays: cfg.LogsMaxAgeInDays,
		Debug:      cfg.Debug,
	}
}

// Logger is a slog logger whose level can be switched at runtime.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	base  slog.Level
	file  *lumberjack.Logger
}

// NewLogger creates a logger for cfg.
func NewLogger(cfg Config) *Logger {
	base := ParseLevel(cfg.Level)
	level := new(slog.LevelVar)
	level.Set(base)
	if cfg.Debug {
		level.Set(slog.LevelDebug)
	}

	var writers []io.Writer
	if !cfg.Quiet {
		writers = append(writers, os.Stderr)
	}

	var file *lumberjack.Logger
	if cfg.LogDir != "" {
		file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, FileName),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		writers = append(writers, file)
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = io.MultiWriter(writers...)
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		base:   base,
		file:   file,
	}
}

// SetDebug switches between debug level and the configured level.
func (l *Logger) SetDebug(enabled bool) {
	if enabled {
		l.level.Set(slog.LevelDebug)
		return
	}
	l.level.Set(l.base)
}

// Level returns the active level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
