// Package suilog is the service's structured logger. It follows the
// key/value idiom go-ethereum's log package exposes to callers
// (logger.Info("message", "key", value, ...)), backed by log/slog, with a
// human-readable terminal handler for development and a JSON handler for
// production, plus optional rotation to a log file.
package suilog

import (
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the subset of slog.Logger the rest of the service depends on,
// kept narrow so call sites read like the teacher's log.Info/log.Error calls.
type Logger struct {
	inner *slog.Logger
}

// Option configures New.
type Option func(*config)

type config struct {
	json    bool
	level   slog.Level
	logFile string
	maxSize int
}

// WithJSON selects the JSON handler instead of the default text handler.
func WithJSON(json bool) Option { return func(c *config) { c.json = json } }

// WithLevel sets the minimum emitted level.
func WithLevel(l slog.Level) Option { return func(c *config) { c.level = l } }

// WithLogFile rotates output through lumberjack instead of writing to stderr.
// maxSizeMB is the per-file size cap before rotation; values below 100 are
// raised to 100.
func WithLogFile(path string, maxSizeMB int) Option {
	return func(c *config) { c.logFile = path; c.maxSize = maxSizeMB }
}

// New builds a Logger. With no options it writes leveled text to stderr.
func New(opts ...Option) *Logger {
	c := &config{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(c)
	}

	var w io.Writer = os.Stderr
	if c.logFile != "" {
		w = &lumberjack.Logger{
			Filename: c.logFile,
			MaxSize:  maxInt(c.maxSize, 100),
			MaxAge:   28,
			Compress: true,
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: c.level}
	var h slog.Handler
	if c.json {
		h = slog.NewJSONHandler(w, handlerOpts)
	} else {
		h = slog.NewTextHandler(w, handlerOpts)
	}
	return &Logger{inner: slog.New(h)}
}

// With returns a Logger that always includes the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{inner: l.inner.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.inner.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.inner.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.inner.Error(msg, args...) }

// Elapsed is a convenience arg pair for timing log lines, the way the source
// logged "Exec time {:?}" around request_gas.
func Elapsed(since time.Time) (string, any) {
	return "elapsed", time.Since(since)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
