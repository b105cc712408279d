package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

type ctxKey struct{}

// Attribute keys whose values never reach the log output.
var redactedKeys = map[string]bool{
	"account_number": true,
	"authorization":  true,
	"secret_key":     true,
	"password":       true,
}

// Init installs the process-wide logger: text in development, JSON elsewhere.
func Init(service, level, appEnv string) *slog.Logger {
	logger := New(os.Stdout, service, level, appEnv)
	slog.SetDefault(logger)
	return logger
}

func New(w io.Writer, service, level, appEnv string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(level)))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl, ReplaceAttr: redact}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if appEnv == "development" {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", service)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if redactedKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}

func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// WithPayout scopes every later log line in ctx to one payout.
func WithPayout(ctx context.Context, payoutID uuid.UUID, reference string) (context.Context, *slog.Logger) {
	l := FromContext(ctx).With("payout_id", payoutID, "payout_reference", reference)
	return WithLogger(ctx, l), l
}
