// Package logger builds the slog logger used by every process and carries a
// request scoped copy through context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// New returns a logger writing to stdout, shaped by env.
func New(env string) *slog.Logger { return NewWithWriter(env, os.Stdout) }

// NewWithWriter is New with an explicit destination.
func NewWithWriter(env string, w io.Writer) *slog.Logger {
	switch env {
	case EnvLocal:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case EnvDev:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// Err is the attribute every component uses for errors.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

type ctxKey struct{}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored by WithContext, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger { return FromContextOr(ctx, slog.Default()) }

// FromContextOr is FromContext with an explicit fallback.
func FromContextOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	if fallback == nil {
		return slog.Default()
	}
	return fallback
}
