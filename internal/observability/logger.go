package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
)

const (
	ChannelSecurity = "security"
	ChannelDebug    = "debug"
)

// Logger writes JSON lines. Debug records are dropped unless the logger was
// built with debug enabled.
type Logger struct {
	base *slog.Logger
}

func NewLogger(w io.Writer, debug bool) *Logger {
	if w == nil {
		w = os.Stdout
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{base: slog.New(handler)}
}

// NopLogger discards everything.
func NopLogger() *Logger {
	return NewLogger(io.Discard, false)
}

func (l *Logger) Channel(name string) *Logger {
	return &Logger{base: l.base.With(slog.String("channel", name))}
}

func (l *Logger) Debug(message string, fields map[string]any) {
	l.write(slog.LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.write(slog.LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]any) {
	l.write(slog.LevelWarn, message, fields)
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.write(slog.LevelError, message, fields)
}

func (l *Logger) write(level slog.Level, message string, fields map[string]any) {
	if l == nil || l.base == nil {
		return
	}

	ctx := context.Background()
	if !l.base.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.base.LogAttrs(ctx, level, message, attrs...)
}
