package logger

import (
	"context"
	"log/slog"

	"sojourn/backend/internal/middleware"
)

// ContextHandler decorates records with the request correlation ID so
// per-request logs are traceable through the pipeline and the worker.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(middleware.CorrelationKey).(string); ok && id != "" {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	return h.Handler.Handle(ctx, r)
}
