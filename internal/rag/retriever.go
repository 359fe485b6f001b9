package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrRetrieval marks embedding or index failures. They are surfaced,
// never folded into an empty result: "backend down" must stay
// distinguishable from "no relevant documents".
var ErrRetrieval = errors.New("retrieval failed")

const (
	// SimilarityThreshold is the minimum cosine similarity for a chunk
	// to count as relevant. Cosine similarity ranges [-1, 1].
	SimilarityThreshold = 0.25
	DefaultTopK         = 8

	contextSeparator = "\n\n---\n\n"
)

// RetrievedChunk is one tenant-scoped similarity search hit.
type RetrievedChunk struct {
	Content    string
	DocumentID string
	DocType    string
	Similarity float64
	// AssetID is empty when the chunk has no backing uploaded asset.
	AssetID string
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher runs similarity search over the chunk index. The
// userID filter is applied inside the query by every implementation;
// rows come back with Similarity populated as 1 - cosine distance.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, userID string, limit int) ([]RetrievedChunk, error)
}

// Retriever embeds a query and searches the caller's own chunks.
type Retriever struct {
	embedder Embedder
	index    VectorSearcher
	logger   *QueryLogger
	topK     int
}

func NewRetriever(e Embedder, idx VectorSearcher, l *QueryLogger, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: e, index: idx, logger: l, topK: topK}
}

// Retrieve returns at most topK chunks for the query, restricted to
// userID's documents, sorted by similarity descending and filtered at
// SimilarityThreshold. topK <= 0 uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query, userID string, topK int) ([]RetrievedChunk, error) {
	if topK <= 0 {
		topK = r.topK
	}

	start := time.Now()
	var kept []RetrievedChunk
	var err error

	defer func() {
		if r.logger != nil && err == nil {
			r.logger.Log(ctx, QueryLogEntry{
				Query:      query,
				UserID:     userID,
				NumResults: len(kept),
				Duration:   time.Since(start),
			})
		}
	}()

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrRetrieval, err)
	}

	rows, err := r.index.Search(ctx, vec, userID, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", ErrRetrieval, err)
	}

	for _, row := range rows {
		if row.Similarity >= SimilarityThreshold {
			kept = append(kept, row)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Similarity > kept[j].Similarity
	})

	if len(kept) > topK {
		kept = kept[:topK]
	}

	return kept, nil
}

// FormatContext renders chunks as labeled, 1-indexed blocks in
// retrieval order. Empty input yields "".
func FormatContext(chunks []RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		parts = append(parts, fmt.Sprintf("[Document %d - %s]\n%s", i+1, strings.ToUpper(chunk.DocType), chunk.Content))
	}

	return strings.Join(parts, contextSeparator)
}

// HasRelevantContext reports whether any chunks survived retrieval.
// Chunks are already threshold-filtered, so this is a presence check.
func HasRelevantContext(chunks []RetrievedChunk) bool {
	return len(chunks) > 0
}
