package logger

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// Interface is the structured logger passed to every component.
// The *w variants take alternating key/value pairs.
type Interface interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Interface
	Named(name string) Interface

	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

type slogLogger struct {
	logger *slog.Logger
}

// NewLogger returns an Interface backed by the process-wide slog logger.
func NewLogger() Interface {
	return &slogLogger{logger: Get()}
}

// NewLoggerWithSlog wraps an existing slog logger.
func NewLoggerWithSlog(l *slog.Logger) Interface {
	return &slogLogger{logger: l}
}

// NewNop returns a logger that discards everything.
func NewNop() Interface {
	return &slogLogger{logger: slog.New(discardHandler{})}
}

func (l *slogLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *slogLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *slogLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *slogLogger) With(args ...any) Interface {
	return &slogLogger{logger: l.logger.With(args...)}
}

func (l *slogLogger) Named(name string) Interface {
	return &slogLogger{logger: l.logger.With("component", name)}
}

func (l *slogLogger) Debugw(msg string, keysAndValues ...any) {
	l.log(slog.LevelDebug, msg, keysAndValues)
}

func (l *slogLogger) Infow(msg string, keysAndValues ...any) {
	l.log(slog.LevelInfo, msg, keysAndValues)
}

func (l *slogLogger) Warnw(msg string, keysAndValues ...any) {
	l.log(slog.LevelWarn, msg, keysAndValues)
}

func (l *slogLogger) Errorw(msg string, keysAndValues ...any) {
	l.log(slog.LevelError, msg, keysAndValues)
}

// log records the caller of the exported method as the source, not this file.
func (l *slogLogger) log(level slog.Level, msg string, args []any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.logger.Handler().Handle(ctx, r)
}
