package trident

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with trident-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithDir adds the knowledge base directory to the logger.
func (l *Logger) WithDir(dir string) *Logger {
	return &Logger{
		Logger: l.Logger.With("dir", dir),
	}
}

// WithPerm adds a permutation name to the logger.
func (l *Logger) WithPerm(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("perm", name),
	}
}

// WithComponent tags the records of an internal component.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// LogBuild logs a bulk load.
func (l *Logger) LogBuild(ctx context.Context, dir string, triples, terms int64, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"dir", dir,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "build completed",
			"dir", dir,
			"triples", triples,
			"terms", terms,
			"duration", d,
		)
	}
}

// LogOpen logs opening a knowledge base.
func (l *Logger) LogOpen(ctx context.Context, dir string, layers int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"dir", dir,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "knowledge base opened",
			"dir", dir,
			"diff_layers", layers,
		)
	}
}

// LogQuery logs the construction of an iterator.
func (l *Logger) LogQuery(ctx context.Context, perm string, s, p, o int64, itrType string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"perm", perm,
			"s", s, "p", p, "o", o,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"perm", perm,
			"s", s, "p", p, "o", o,
			"iterator", itrType,
		)
	}
}

// LogDiffLayer logs the creation or loading of an update layer.
func (l *Logger) LogDiffLayer(ctx context.Context, seq uint64, typ string, size int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "diff layer failed",
			"seq", seq,
			"type", typ,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "diff layer ready",
			"seq", seq,
			"type", typ,
			"size", size,
		)
	}
}

// LogPush logs publishing a knowledge base to an object store.
func (l *Logger) LogPush(ctx context.Context, prefix string, files int, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "push failed",
			"prefix", prefix,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "push completed",
			"prefix", prefix,
			"files", files,
			"bytes", bytes,
		)
	}
}

// LogPull logs fetching a knowledge base from an object store.
func (l *Logger) LogPull(ctx context.Context, prefix string, files int, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "pull failed",
			"prefix", prefix,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "pull completed",
			"prefix", prefix,
			"files", files,
			"bytes", bytes,
		)
	}
}

// LogCacheEviction logs dropping the cached reverse tables.
func (l *Logger) LogCacheEviction(ctx context.Context, perm string, hits, misses uint64) {
	l.DebugContext(ctx, "reverse cache cleared",
		"perm", perm,
		"hits", hits,
		"misses", misses,
	)
}

// LogRelease logs an iterator released twice.
func (l *Logger) LogRelease(ctx context.Context, itrType string, err error) {
	if err != nil {
		l.WarnContext(ctx, "iterator release failed",
			"iterator", itrType,
			"error", err,
		)
	}
}
