package rag

import (
	"context"
	"encoding/json"
	"log/slog"
)

// QueryType is the routing decision for a user query.
type QueryType string

const (
	// QueryGeneral is answerable from general knowledge alone.
	QueryGeneral QueryType = "GENERAL"
	// QueryProfileDependent requires the user's own documents.
	QueryProfileDependent QueryType = "PROFILE_DEPENDENT"
	// QueryHybrid combines general knowledge with the user's documents.
	QueryHybrid QueryType = "HYBRID"
)

// Short structured response, no reasoning.
const classifierMaxTokens = 50

// Classifier routes queries with a single deterministic oracle call.
type Classifier struct {
	oracle Oracle
}

func NewClassifier(o Oracle) *Classifier {
	return &Classifier{oracle: o}
}

// Classify returns the query type for a user message. Any oracle
// failure, parse failure, or unexpected value maps to GENERAL: the
// safe default never exposes personal documents.
func (c *Classifier) Classify(ctx context.Context, query string) QueryType {
	raw, err := c.oracle.CompleteJSON(ctx, classifierSystemPrompt, query, classifierMaxTokens)
	if err != nil {
		slog.WarnContext(ctx, "query classification failed, defaulting to GENERAL", "error", err)
		return QueryGeneral
	}

	var out struct {
		QueryType string `json:"query_type"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		slog.WarnContext(ctx, "classifier returned malformed JSON, defaulting to GENERAL", "error", err)
		return QueryGeneral
	}

	switch QueryType(out.QueryType) {
	case QueryGeneral, QueryProfileDependent, QueryHybrid:
		return QueryType(out.QueryType)
	default:
		slog.WarnContext(ctx, "classifier returned unknown query type, defaulting to GENERAL", "value", out.QueryType)
		return QueryGeneral
	}
}

// NeedsRetrieval reports whether vector search should run. Only purely
// general questions skip it.
func NeedsRetrieval(t QueryType) bool {
	return t != QueryGeneral
}
