// Package logger builds the slog handler used by the service.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ekisa-team/indextts-api/internal/env"
)

const (
	defaultMaxSizeMB  = 64
	defaultMaxBackups = 3
	defaultMaxAgeDays = 7
)

type options struct {
	level     *slog.LevelVar
	out       io.Writer
	logFile   string
	logToFile bool
}

// Option configures New.
type Option func(*options)

// WithLogToFile enables teeing log records into a rotating file.
func WithLogToFile(enabled bool) Option {
	return func(o *options) { o.logToFile = enabled }
}

// WithLogFile sets the rotating log file path.
func WithLogFile(path string) Option {
	return func(o *options) { o.logFile = path }
}

// WithLevel shares a LevelVar with the caller so the level can be changed at runtime.
func WithLevel(level *slog.LevelVar) Option {
	return func(o *options) { o.level = level }
}

// WithWriter replaces stderr as the console destination.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// New returns a logger for the given environment. Development gets colored
// console output, production gets JSON.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	o := &options{
		level: new(slog.LevelVar),
		out:   os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}

	out := o.out
	if o.logToFile && o.logFile != "" {
		if err := os.MkdirAll(filepath.Dir(o.logFile), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "logger: failed to create log directory: %v\n", err)
		} else {
			out = io.MultiWriter(o.out, &lumberjack.Logger{
				Filename:   o.logFile,
				MaxSize:    defaultMaxSizeMB,
				MaxBackups: defaultMaxBackups,
				MaxAge:     defaultMaxAgeDays,
				Compress:   true,
			})
		}
	}

	var handler slog.Handler
	if environment.IsProduction() {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: o.level})
	} else {
		handler = tint.NewHandler(out, &tint.Options{
			Level:      o.level,
			TimeFormat: time.TimeOnly,
			NoColor:    out != os.Stderr,
		})
	}

	return slog.New(handler)
}

// ParseLevel converts a textual level. Empty means info.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level: %q", raw)
	}
}
