// Package logger wraps log/slog with the level control, secret redaction
// and trace correlation ved's services share.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Config selects level, encoding and destination.
type Config struct {
	Level Level
	// Format is "json" or "text". Anything else means json.
	Format string
	// Output is "stdout", "stderr" or a file path opened for append.
	Output string
	// Writer, when set, takes precedence over Output.
	Writer io.Writer
}

// Logger is the structured logger every ved package accepts.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)

	// With returns a child logger. Children share the parent's level.
	With(args ...any) Logger

	SetLevel(level Level)
	GetLevel() Level

	// Close releases the output file, if the logger opened one.
	Close() error
}

// redacted lists attribute keys whose values never reach the output.
var redacted = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"token":         {},
	"access_token":  {},
	"authorization": {},
	"api_key":       {},
	"secret_key":    {},
}

const redactedValue = "[REDACTED]"

type slogLogger struct {
	sl     *slog.Logger
	level  *slog.LevelVar
	closer io.Closer
}

// New builds a Logger. A file Output that cannot be opened falls back to
// stderr and the failure is logged as the first record.
func New(cfg *Config) Logger {
	if cfg == nil {
		cfg = &Config{Level: InfoLevel, Format: "json"}
	}

	lv := new(slog.LevelVar)
	lv.Set(cfg.Level.slog())

	w, closer, openErr := output(cfg)
	opts := &slog.HandlerOptions{Level: lv, ReplaceAttr: rewriteAttr}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	l := &slogLogger{sl: slog.New(h), level: lv, closer: closer}
	if openErr != nil {
		l.Warn("log output unavailable, using stderr", "output", cfg.Output, "error", openErr)
	}
	return l
}

func output(cfg *Config) (io.Writer, io.Closer, error) {
	if cfg.Writer != nil {
		return cfg.Writer, nil, nil
	}
	switch cfg.Output {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return os.Stderr, nil, fmt.Errorf("open %s: %w", cfg.Output, err)
	}
	return f, f, nil
}

func rewriteAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.MessageKey:
		a.Key = "message"
	default:
		if _, ok := redacted[strings.ToLower(a.Key)]; ok {
			a.Value = slog.StringValue(redactedValue)
		}
	}
	return a
}

func (l *slogLogger) Debug(msg string, args ...any) { l.sl.Debug(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.sl.Info(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.sl.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.sl.Error(msg, args...) }

func (l *slogLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.sl.DebugContext(ctx, msg, withTrace(ctx, args)...)
}

func (l *slogLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.sl.InfoContext(ctx, msg, withTrace(ctx, args)...)
}

func (l *slogLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.sl.WarnContext(ctx, msg, withTrace(ctx, args)...)
}

func (l *slogLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.sl.ErrorContext(ctx, msg, withTrace(ctx, args)...)
}

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{sl: l.sl.With(args...), level: l.level}
}

func (l *slogLogger) SetLevel(level Level) { l.level.Set(level.slog()) }

func (l *slogLogger) GetLevel() Level { return fromSlog(l.level.Level()) }

func (l *slogLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// withTrace appends trace_id and span_id when ctx carries a sampled span.
func withTrace(ctx context.Context, args []any) []any {
	if ctx == nil {
		return args
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return args
	}
	return append(args, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
}

// Nop discards every record.
func Nop() Logger {
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelError + 4)
	return &slogLogger{
		sl:    slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: lv})),
		level: lv,
	}
}

// Component tags l with a component name. A nil l means the global logger.
func Component(l Logger, name string) Logger {
	if l == nil {
		l = Global()
	}
	return l.With("component", name)
}
