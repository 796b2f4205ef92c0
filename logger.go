package msentropy

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with repository-specific context.
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
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithCharge adds a charge field to the logger.
func (l *Logger) WithCharge(charge int16) *Logger {
	return &Logger{
		Logger: l.Logger.With("charge", charge),
	}
}

// WithFile adds a source-file field to the logger.
func (l *Logger) WithFile(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("file", name),
	}
}

// LogIngest logs a source-file ingestion.
func (l *Logger) LogIngest(ctx context.Context, fileName string, ingested, skipped int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "ingest failed",
			"file", fileName,
			"ingested", ingested,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "ingest completed",
			"file", fileName,
			"ingested", ingested,
			"skipped", skipped,
		)
	}
}

// LogBuild logs an explicit index build.
func (l *Logger) LogBuild(ctx context.Context, shards int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index build failed",
			"shards", shards,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index build completed",
			"shards", shards,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, charge int16, topn, found int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"charge", charge,
			"topn", topn,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"charge", charge,
			"topn", topn,
			"results", found,
		)
	}
}

// LogPersist logs a repository persist.
func (l *Logger) LogPersist(ctx context.Context, shards int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "persist failed",
			"shards", shards,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "persist completed",
			"shards", shards,
		)
	}
}
