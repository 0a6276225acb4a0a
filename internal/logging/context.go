package logging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys used in logging.
type ContextKey string

const (
	// RunIDKey is the context key for the run ID.
	RunIDKey ContextKey = "run_id"
	// SiteKey is the context key for the site currently being processed.
	SiteKey ContextKey = "site"
	// EnvironmentKey is the context key for the target environment.
	EnvironmentKey ContextKey = "environment"
)

// ContextHandler is an slog.Handler that extracts values from context
// and includes them in all log records.
type ContextHandler struct {
	handler slog.Handler
}

// NewContextHandler creates a new context-aware handler that wraps another handler.
func NewContextHandler(handler slog.Handler) *ContextHandler {
	return &ContextHandler{
		handler: handler,
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle adds context attributes to the record and passes it to the underlying handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if runID := ctx.Value(RunIDKey); runID != nil {
		r.AddAttrs(slog.Any("run_id", runID))
	}
	if site := ctx.Value(SiteKey); site != nil {
		r.AddAttrs(slog.Any("site", site))
	}
	if env := ctx.Value(EnvironmentKey); env != nil {
		r.AddAttrs(slog.Any("environment", env))
	}

	return h.handler.Handle(ctx, r)
}

// WithAttrs returns a new handler with additional attributes.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{
		handler: h.handler.WithAttrs(attrs),
	}
}

// WithGroup returns a new handler with a group.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{
		handler: h.handler.WithGroup(name),
	}
}

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithSite adds the site name being processed to the context.
func WithSite(ctx context.Context, site string) context.Context {
	return context.WithValue(ctx, SiteKey, site)
}

// WithEnvironment adds the target environment name to the context.
func WithEnvironment(ctx context.Context, env string) context.Context {
	return context.WithValue(ctx, EnvironmentKey, env)
}

// GenerateRunID generates a new UUID-based run ID.
func GenerateRunID() string {
	return uuid.New().String()
}
