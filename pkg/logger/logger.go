// Package logger builds the gateway's JSON slog logger and carries request-scoped loggers
// through gin and context.Context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

const service = "storefront-gateway"

// New writes JSON records to stdout.
func New(appEnv string) *slog.Logger {
	return NewWithWriter(os.Stdout, appEnv)
}

// NewWithWriter is New with an explicit sink. Every record carries service and env.
func NewWithWriter(w io.Writer, appEnv string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelFor(appEnv)})
	return slog.New(h).With(
		slog.String("service", service),
		slog.String("env", appEnv),
	)
}

func levelFor(appEnv string) slog.Level {
	switch appEnv {
	case "local", "dev", "test":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

type loggerKey struct{}

// WithContext returns ctx carrying l.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext is the logger attached by WithContext, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
