// Package observability holds the logging setup shared by every loopcast
// component.
package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/m-mizutani/masq"

	"github.com/jmylchreest/loopcast/internal/config"
	"github.com/jmylchreest/loopcast/internal/models"
)

type requestIDKey struct{}

// NewLogger builds the process logger. The level is read from lv on every
// record so it can be changed while running; a nil lv uses cfg.Level.
//
// Stream keys never reach w: see Redactor.
func NewLogger(cfg config.LoggingConfig, w io.Writer, lv *slog.LevelVar) *slog.Logger {
	if lv == nil {
		lv = new(slog.LevelVar)
		lv.Set(ParseLevel(cfg.Level))
	}

	redact := Redactor()
	replace := redact
	if cfg.TimeFormat != "" {
		replace = func(groups []string, a slog.Attr) slog.Attr {
			if t, ok := a.Value.Any().(time.Time); ok && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
			}
			return redact(groups, a)
		}
	}

	opts := &slog.HandlerOptions{Level: lv, AddSource: cfg.AddSource, ReplaceAttr: replace}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Redactor returns the attribute filter that replaces stream keys with
// "[FILTERED]". It matches values of type models.StreamKey, struct fields
// tagged `masq:"secret"` and fields named StreamKey.
func Redactor() func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(
		masq.WithType[models.StreamKey](),
		masq.WithTag("secret"),
		masq.WithFieldName("StreamKey"),
	)
}

// ParseLevel maps a level name to a slog.Level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// WithComponent tags a logger with the component emitting through it.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// WithSession tags a logger with a streaming session id.
func WithSession(logger *slog.Logger, sessionID string) *slog.Logger {
	return logger.With(slog.String("session_id", sessionID))
}

// ContextWithRequestID stores the HTTP request id on ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored on ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
