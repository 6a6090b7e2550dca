// Package logging builds the slog logger used by every binary.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/KamdynS/bedrock-agents/config"
	"github.com/KamdynS/bedrock-agents/observability"
)

// New creates a *slog.Logger from the given Logging config.
// Output goes to stdout, or stderr when cfg.Output says so, with a "service"
// attribute on every record and the request id of the record's context, when
// there is one.
func New(cfg config.Logging) *slog.Logger {
	if strings.EqualFold(cfg.Output, "stderr") {
		return NewWithWriter(os.Stderr, cfg)
	}
	return NewWithWriter(os.Stdout, cfg)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, cfg config.Logging) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(&contextHandler{Handler: h}).With("service", cfg.Service)
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type contextHandler struct{ slog.Handler }

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if id, ok := observability.RequestIDFromContext(ctx); ok {
		rec.AddAttrs(slog.String("request_id", id))
	}
	if sid, ok := SessionIDFromContext(ctx); ok {
		rec.AddAttrs(slog.String("session_id", sid))
	}
	return h.Handler.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}

type sessionKey struct{}

// WithSessionID tags records logged with ctx with the conversation session.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionIDFromContext returns the session set by WithSessionID.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(sessionKey{}).(string)
	return sid, ok && sid != ""
}
