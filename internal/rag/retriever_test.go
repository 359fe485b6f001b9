package rag_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"sojourn/backend/internal/rag"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockSearcher struct{ mock.Mock }

func (m *MockSearcher) Search(ctx context.Context, vector []float32, userID string, limit int) ([]rag.RetrievedChunk, error) {
	args := m.Called(ctx, vector, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]rag.RetrievedChunk), args.Error(1)
}

func TestRetriever_Retrieve(t *testing.T) {
	vec := []float32{0.1, 0.2}

	t.Run("Filters Below Threshold And Sorts Descending", func(t *testing.T) {
		embedder := new(MockEmbedder)
		searcher := new(MockSearcher)
		embedder.On("Embed", mock.Anything, "my visa type").Return(vec, nil)
		searcher.On("Search", mock.Anything, vec, "user-a", 8).Return([]rag.RetrievedChunk{
			{Content: "B", Similarity: 0.30},
			{Content: "A", Similarity: 0.61},
			{Content: "junk", Similarity: 0.10},
			{Content: "anti", Similarity: -0.4},
		}, nil)

		r := rag.NewRetriever(embedder, searcher, nil, 8)
		got, err := r.Retrieve(context.Background(), "my visa type", "user-a", 0)

		assert.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, "A", got[0].Content)
		assert.Equal(t, "B", got[1].Content)
		for _, c := range got {
			assert.GreaterOrEqual(t, c.Similarity, rag.SimilarityThreshold)
		}
	})

	t.Run("Caps At TopK", func(t *testing.T) {
		embedder := new(MockEmbedder)
		searcher := new(MockSearcher)
		rows := make([]rag.RetrievedChunk, 5)
		for i := range rows {
			rows[i] = rag.RetrievedChunk{Content: "c", Similarity: 0.9 - float64(i)*0.1}
		}
		embedder.On("Embed", mock.Anything, "q").Return(vec, nil)
		searcher.On("Search", mock.Anything, vec, "user-a", 3).Return(rows, nil)

		r := rag.NewRetriever(embedder, searcher, nil, 8)
		got, err := r.Retrieve(context.Background(), "q", "user-a", 3)

		assert.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("Tenant Filter Is Forwarded", func(t *testing.T) {
		embedder := new(MockEmbedder)
		searcher := new(MockSearcher)
		embedder.On("Embed", mock.Anything, "q").Return(vec, nil)
		searcher.On("Search", mock.Anything, vec, "tenant-b", 8).Return([]rag.RetrievedChunk{}, nil)

		r := rag.NewRetriever(embedder, searcher, nil, 0)
		_, err := r.Retrieve(context.Background(), "q", "tenant-b", 0)

		assert.NoError(t, err)
		searcher.AssertCalled(t, "Search", mock.Anything, vec, "tenant-b", 8)
	})

	t.Run("Embedder Error Is A Retrieval Error", func(t *testing.T) {
		embedder := new(MockEmbedder)
		searcher := new(MockSearcher)
		embedder.On("Embed", mock.Anything, "q").Return(nil, errors.New("model offline"))

		r := rag.NewRetriever(embedder, searcher, nil, 8)
		got, err := r.Retrieve(context.Background(), "q", "user-a", 0)

		assert.Nil(t, got)
		assert.ErrorIs(t, err, rag.ErrRetrieval)
		searcher.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Search Error Is A Retrieval Error", func(t *testing.T) {
		embedder := new(MockEmbedder)
		searcher := new(MockSearcher)
		embedder.On("Embed", mock.Anything, "q").Return(vec, nil)
		searcher.On("Search", mock.Anything, vec, "user-a", 8).Return(nil, errors.New("index down"))

		r := rag.NewRetriever(embedder, searcher, nil, 8)
		_, err := r.Retrieve(context.Background(), "q", "user-a", 0)

		assert.ErrorIs(t, err, rag.ErrRetrieval)
	})

	t.Run("Logs Successful Retrievals", func(t *testing.T) {
		var buf bytes.Buffer
		embedder := new(MockEmbedder)
		searcher := new(MockSearcher)
		embedder.On("Embed", mock.Anything, "q").Return(vec, nil)
		searcher.On("Search", mock.Anything, vec, "user-a", 8).Return([]rag.RetrievedChunk{{Content: "A", Similarity: 0.5}}, nil)

		r := rag.NewRetriever(embedder, searcher, rag.NewQueryLogger(&buf), 8)
		_, err := r.Retrieve(context.Background(), "q", "user-a", 0)
		assert.NoError(t, err)

		var entry rag.QueryLogEntry
		assert.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "q", entry.Query)
		assert.Equal(t, "user-a", entry.UserID)
		assert.Equal(t, 1, entry.NumResults)
	})
}

func TestFormatContext(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, "", rag.FormatContext(nil))
		assert.Equal(t, "", rag.FormatContext([]rag.RetrievedChunk{}))
	})

	t.Run("Labeled Ordered Blocks", func(t *testing.T) {
		chunks := []rag.RetrievedChunk{
			{Content: "Admission letter body", DocType: "pdf"},
			{Content: "Visa photo text", DocType: "image"},
		}
		got := rag.FormatContext(chunks)
		assert.Equal(t, "[Document 1 - PDF]\nAdmission letter body\n\n---\n\n[Document 2 - IMAGE]\nVisa photo text", got)
	})
}

func TestHasRelevantContext(t *testing.T) {
	assert.False(t, rag.HasRelevantContext(nil))
	assert.True(t, rag.HasRelevantContext([]rag.RetrievedChunk{{Content: "x"}}))
}
