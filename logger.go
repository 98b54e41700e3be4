package vecport

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/quillon/vecport/loader"
)

// Logger wraps slog.Logger with vecport-specific context.
// This provides structured logging with consistent field names.
//
// Secret keys, decrypted payloads and owner identities are never logged at
// any level.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithCollection adds a collection key field to the logger.
func (l *Logger) WithCollection(key string) *Logger {
	return &Logger{
		Logger: l.Logger.With("collection", key),
	}
}

// WithAttempt adds a load attempt correlation ID to the logger.
func (l *Logger) WithAttempt(attempt string) *Logger {
	return &Logger{
		Logger: l.Logger.With("attempt", attempt),
	}
}

// LogLoadStart logs the beginning of a load attempt.
func (l *Logger) LogLoadStart(ctx context.Context, key, attempt string) {
	l.InfoContext(ctx, "load started",
		"collection", key,
		"attempt", attempt,
	)
}

// LogLoadComplete logs the terminal outcome of a load attempt.
func (l *Logger) LogLoadComplete(ctx context.Context, key, attempt string, vectors int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"collection", key,
			"attempt", attempt,
			"code", errorCode(err),
			"duration", duration,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "load completed",
			"collection", key,
			"attempt", attempt,
			"vectors", vectors,
			"duration", duration,
		)
	}
}

// LogChunk logs one completed chunk unit.
func (l *Logger) LogChunk(ctx context.Context, key string, p loader.ChunkProgress) {
	l.DebugContext(ctx, "chunk loaded",
		"collection", key,
		"chunk", p.ChunkID,
		"vectors", p.VectorCount,
		"bytes", p.SizeBytes,
		"elapsed", p.Elapsed,
		"loaded", p.ChunksLoaded,
		"total", p.TotalChunks,
	)
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, key string, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"collection", key,
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"collection", key,
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogEviction logs an explicit eviction of a cached index.
func (l *Logger) LogEviction(ctx context.Context, key string, existed bool) {
	l.InfoContext(ctx, "collection evicted",
		"collection", key,
		"existed", existed,
	)
}
