package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ekisa-team/ttsd/internal/env"
)

const (
	defaultLogFile    = "logs/ttsd.log"
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 5
	defaultMaxAgeDays = 28
)

type options struct {
	writer    io.Writer
	logFile   string
	level     slog.Leveler
	logToFile bool
	noColor   bool
}

// Option configures the logger built by New.
type Option func(*options)

// WithLogToFile enables or disables the rotating file sink.
func WithLogToFile(enabled bool) Option {
	return func(o *options) {
		o.logToFile = enabled
	}
}

// WithLogFile sets the path of the rotating log file.
func WithLogFile(path string) Option {
	return func(o *options) {
		if path != "" {
			o.logFile = path
		}
	}
}

// WithLevel overrides the level derived from the environment.
func WithLevel(level slog.Leveler) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithWriter replaces stderr as the console destination.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
		o.noColor = true
	}
}

// New builds the process logger. Console output goes through tint; when file logging is
// enabled records are also written as JSON to a lumberjack-rotated file.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	o := &options{
		writer:  os.Stderr,
		logFile: defaultLogFile,
		level:   levelFor(environment),
	}
	for _, opt := range opts {
		opt(o)
	}

	console := tint.NewHandler(o.writer, &tint.Options{
		Level:      o.level,
		TimeFormat: timeFormatFor(environment),
		NoColor:    o.noColor || environment.IsProduction(),
	})

	if !o.logToFile {
		return slog.New(console)
	}

	if dir := filepath.Dir(o.logFile); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.New(console).Warn("Failed to create log directory, file logging disabled", "dir", dir, "error", err)
			return slog.New(console)
		}
	}

	file := slog.NewJSONHandler(&lumberjack.Logger{
		Filename:   o.logFile,
		MaxSize:    defaultMaxSizeMB,
		MaxBackups: defaultMaxBackups,
		MaxAge:     defaultMaxAgeDays,
		Compress:   true,
	}, &slog.HandlerOptions{Level: o.level})

	return slog.New(fanout{console, file})
}

func levelFor(environment env.Environment) slog.Level {
	if environment.IsProduction() {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func timeFormatFor(environment env.Environment) string {
	if environment.IsProduction() {
		return time.RFC3339
	}
	return time.Kitchen
}
