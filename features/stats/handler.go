package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"sojourn/backend/internal/middleware"
)

const userIDHeader = "X-User-ID"

type DocumentRepo interface {
	Count(ctx context.Context, userID string) (int, error)
}

type SessionRepo interface {
	CountSessions(ctx context.Context, userID string) (int, error)
}

type VectorStore interface {
	CountChunks(ctx context.Context, userID string) (int, error)
}

type Handler struct {
	documentRepo DocumentRepo
	sessionRepo  SessionRepo
	vectorStore  VectorStore
}

func NewHandler(d DocumentRepo, s SessionRepo, v VectorStore) *Handler {
	return &Handler{documentRepo: d, sessionRepo: s, vectorStore: v}
}

type StatsResponse struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Sessions  int `json:"sessions"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if userID == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "X-User-ID header is required", http.StatusBadRequest)
		return
	}

	dCount, err := h.documentRepo.Count(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	cCount, err := h.vectorStore.CountChunks(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count chunks", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count chunks", http.StatusInternalServerError)
		return
	}

	sCount, err := h.sessionRepo.CountSessions(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count sessions", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count sessions", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Documents: dCount,
		Chunks:    cCount,
		Sessions:  sCount,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
