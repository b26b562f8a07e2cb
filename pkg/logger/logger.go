// Package logger builds the process logger: a console handler plus an
// optional JSON file sink. It is created once in main and passed down.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type Options struct {
	Level   string
	Format  string // text or json, console only; the file sink is always json
	File    string
	Console io.Writer
}

// Logger is an slog.Logger that owns its file sink.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New returns a console-only logger.
func New(level, format string) *slog.Logger {
	return slog.New(consoleHandler(os.Stderr, level, format))
}

// Open builds a logger writing to the console and, when opts.File is set, to
// that file. The file's folder is created if needed.
func Open(opts Options) (*Logger, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	handlers := []slog.Handler{consoleHandler(console, opts.Level, opts.Format)}

	var file *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log folder: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{
			Level:     ParseLevel(opts.Level),
			AddSource: true,
		}))
	}

	return &Logger{
		Logger: slog.New(fanout(handlers)),
		file:   file,
	}, nil
}

// Close flushes and closes the file sink.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	errs := []error{l.file.Sync(), l.file.Close()}
	l.file = nil
	return errors.Join(errs...)
}

// ParseLevel maps debug, info, warn/warning, error and critical to slog
// levels. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func consoleHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
