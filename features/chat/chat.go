package chat

import (
	"time"

	"sojourn/backend/internal/rag"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session groups a user's conversation turns.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted turn. QueryType, UsedContext and Sources
// are only set on assistant turns.
type Message struct {
	ID          string              `json:"id"`
	SessionID   string              `json:"session_id"`
	Role        string              `json:"role"`
	Content     string              `json:"content"`
	QueryType   string              `json:"query_type,omitempty"`
	UsedContext bool                `json:"used_context"`
	Sources     []rag.SourceSnippet `json:"sources,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// AskResult is the synchronous answer returned to the client.
type AskResult struct {
	SessionID   string              `json:"session_id"`
	Answer      string              `json:"answer"`
	QueryType   string              `json:"query_type"`
	UsedContext bool                `json:"used_context"`
	Sources     []rag.SourceSnippet `json:"sources,omitempty"`
}
