package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"sojourn/backend/internal/middleware"
	"sojourn/backend/internal/rag"
)

const userIDHeader = "X-User-ID"

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type askRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := h.parseAsk(w, r)
	if !ok {
		return
	}

	result, err := h.service.Ask(r.Context(), userID, req.SessionID, req.Question)
	if err != nil {
		h.handleAskError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": result}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) AskStream(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := h.parseAsk(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "streaming unsupported", http.StatusInternalServerError)
		return
	}

	session, events, err := h.service.AskStream(r.Context(), userID, req.SessionID, req.Question)
	if err != nil {
		h.handleAskError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-ID", session.ID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		payload := streamPayload(session.ID, ev)
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Error("failed to encode stream event", "error", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), userID)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []Session{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": sessions,
		"meta": map[string]int{"count": len(sessions)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	sessionID := r.PathValue("id")
	messages, err := h.service.ListMessages(r.Context(), userID, sessionID)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": messages,
		"meta": map[string]int{"count": len(messages)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) parseAsk(w http.ResponseWriter, r *http.Request) (string, askRequest, bool) {
	var req askRequest

	userID, ok := h.userID(w, r)
	if !ok {
		return "", req, false
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return "", req, false
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "question is required", http.StatusBadRequest)
		return "", req, false
	}

	return userID, req, true
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if userID == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "X-User-ID header is required", http.StatusBadRequest)
		return "", false
	}
	return userID, true
}

func (h *Handler) handleAskError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		h.writeError(ctx, w, "NOT_FOUND", "Session not found", http.StatusNotFound)
	case errors.Is(err, rag.ErrRetrieval):
		slog.ErrorContext(ctx, "retrieval unavailable", "error", err)
		h.writeError(ctx, w, "RETRIEVAL_UNAVAILABLE", "Document retrieval is unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, rag.ErrGeneration):
		slog.ErrorContext(ctx, "generation failed", "error", err)
		h.writeError(ctx, w, "GENERATION_FAILED", "Answer generation failed", http.StatusBadGateway)
	default:
		slog.ErrorContext(ctx, "chat request failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
	}
}

type streamEvent struct {
	Type        string              `json:"type"`
	SessionID   string              `json:"session_id"`
	Content     string              `json:"content,omitempty"`
	UsedContext bool                `json:"used_context,omitempty"`
	Sources     []rag.SourceSnippet `json:"sources,omitempty"`
	Error       string              `json:"error,omitempty"`
}

func streamPayload(sessionID string, ev rag.Event) streamEvent {
	out := streamEvent{
		Type:        string(ev.Type),
		SessionID:   sessionID,
		Content:     ev.Content,
		UsedContext: ev.UsedContext,
		Sources:     ev.Sources,
	}
	if ev.Type == rag.EventError {
		out.Content = ""
		out.Error = ev.Content
	}
	return out
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
