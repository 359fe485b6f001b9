package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"sojourn/backend/internal/text"
	"sojourn/backend/internal/worker"
)

type MockBatchEmbedder struct{ mock.Mock }

func (m *MockBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockVectorStore struct{ mock.Mock }

func (m *MockVectorStore) StoreChunk(ctx context.Context, chunk worker.Chunk) error {
	args := m.Called(ctx, chunk)
	return args.Error(0)
}

type MockStatusStore struct{ mock.Mock }

func (m *MockStatusStore) SetStatus(ctx context.Context, documentID, status string) error {
	args := m.Called(ctx, documentID, status)
	return args.Error(0)
}

type MockImagePipeline struct{ mock.Mock }

func (m *MockImagePipeline) ProcessImage(ctx context.Context, data []byte) (string, error) {
	args := m.Called(ctx, data)
	return args.String(0), args.Error(1)
}

// wordChunker splits on whitespace, one chunk per word pair.
type wordChunker struct{}

func (wordChunker) Chunk(content string) []text.Chunk {
	fields := []text.Chunk{}
	var words []string
	for _, w := range splitWords(content) {
		words = append(words, w)
		if len(words) == 2 {
			fields = append(fields, text.Chunk{Text: words[0] + " " + words[1], TokenCount: 2})
			words = nil
		}
	}
	if len(words) == 1 {
		fields = append(fields, text.Chunk{Text: words[0], TokenCount: 1})
	}
	return fields
}

func splitWords(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

func writeUpload(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func ingestMsg(t *testing.T, msg worker.IngestMessage) *nsq.Message {
	t.Helper()
	body, err := json.Marshal(msg)
	assert.NoError(t, err)
	return &nsq.Message{Body: body}
}

func TestIngestConsumer_HandleMessage(t *testing.T) {
	path := writeUpload(t, "letter.txt", "offer letter for computer science")

	e := new(MockBatchEmbedder)
	s := new(MockVectorStore)
	d := new(MockStatusStore)

	e.On("EmbedBatch", mock.Anything, []string{"offer letter", "for computer", "science"}).
		Return([][]float32{{0.1}, {0.2}, {0.3}}, nil)
	s.On("StoreChunk", mock.Anything, mock.MatchedBy(func(chunk worker.Chunk) bool {
		return chunk.UserID == "user-a" && chunk.DocumentID == "doc-1" && chunk.DocType == "txt"
	})).Return(nil).Times(3)
	d.On("SetStatus", mock.Anything, "doc-1", worker.StatusReady).Return(nil)

	consumer := worker.NewIngestConsumer(wordChunker{}, e, s, d, new(MockImagePipeline))
	err := consumer.HandleMessage(ingestMsg(t, worker.IngestMessage{
		DocumentID: "doc-1",
		UserID:     "user-a",
		AssetID:    "asset-1",
		FilePath:   path,
		DocType:    "txt",
	}))

	assert.NoError(t, err)
	e.AssertExpectations(t)
	s.AssertExpectations(t)
	d.AssertExpectations(t)
}

func TestIngestConsumer_ImageUpload(t *testing.T) {
	path := writeUpload(t, "scan.png", "raw image bytes")

	e := new(MockBatchEmbedder)
	s := new(MockVectorStore)
	d := new(MockStatusStore)
	img := new(MockImagePipeline)

	img.On("ProcessImage", mock.Anything, []byte("raw image bytes")).Return("passport photo", nil)
	e.On("EmbedBatch", mock.Anything, []string{"passport photo"}).Return([][]float32{{0.5}}, nil)
	s.On("StoreChunk", mock.Anything, mock.Anything).Return(nil)
	d.On("SetStatus", mock.Anything, "doc-2", worker.StatusReady).Return(nil)

	consumer := worker.NewIngestConsumer(wordChunker{}, e, s, d, img)
	err := consumer.HandleMessage(ingestMsg(t, worker.IngestMessage{
		DocumentID: "doc-2",
		UserID:     "user-a",
		FilePath:   path,
		DocType:    "image",
	}))

	assert.NoError(t, err)
	img.AssertExpectations(t)
}

func TestIngestConsumer_PoisonPill(t *testing.T) {
	consumer := worker.NewIngestConsumer(wordChunker{}, new(MockBatchEmbedder), new(MockVectorStore), new(MockStatusStore), new(MockImagePipeline))

	err := consumer.HandleMessage(&nsq.Message{Body: []byte("invalid json")})
	assert.NoError(t, err) // Should return nil (ack)
}

func TestIngestConsumer_ContentErrorMarksFailed(t *testing.T) {
	path := writeUpload(t, "archive.zip", "data")

	d := new(MockStatusStore)
	d.On("SetStatus", mock.Anything, "doc-3", worker.StatusFailed).Return(nil)

	consumer := worker.NewIngestConsumer(wordChunker{}, new(MockBatchEmbedder), new(MockVectorStore), d, new(MockImagePipeline))
	err := consumer.HandleMessage(ingestMsg(t, worker.IngestMessage{
		DocumentID: "doc-3",
		UserID:     "user-a",
		FilePath:   path,
		DocType:    "zip",
	}))

	assert.NoError(t, err) // acked, redelivery cannot fix the upload
	d.AssertExpectations(t)
}

func TestIngestConsumer_MissingFileMarksFailed(t *testing.T) {
	d := new(MockStatusStore)
	d.On("SetStatus", mock.Anything, "doc-4", worker.StatusFailed).Return(nil)

	consumer := worker.NewIngestConsumer(wordChunker{}, new(MockBatchEmbedder), new(MockVectorStore), d, new(MockImagePipeline))
	err := consumer.HandleMessage(ingestMsg(t, worker.IngestMessage{
		DocumentID: "doc-4",
		UserID:     "user-a",
		FilePath:   "/nonexistent/upload.txt",
		DocType:    "txt",
	}))

	assert.NoError(t, err)
	d.AssertExpectations(t)
}

func TestIngestConsumer_InfraErrorRequeues(t *testing.T) {
	path := writeUpload(t, "letter.txt", "offer letter")

	e := new(MockBatchEmbedder)
	d := new(MockStatusStore)
	e.On("EmbedBatch", mock.Anything, mock.Anything).Return(nil, errors.New("embedding api down"))

	consumer := worker.NewIngestConsumer(wordChunker{}, e, new(MockVectorStore), d, new(MockImagePipeline))
	err := consumer.HandleMessage(ingestMsg(t, worker.IngestMessage{
		DocumentID: "doc-5",
		UserID:     "user-a",
		FilePath:   path,
		DocType:    "txt",
	}))

	assert.Error(t, err) // requeued
	d.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestConsumer_EmptyBody(t *testing.T) {
	consumer := worker.NewIngestConsumer(wordChunker{}, new(MockBatchEmbedder), new(MockVectorStore), new(MockStatusStore), new(MockImagePipeline))
	err := consumer.HandleMessage(&nsq.Message{Body: nil})
	assert.NoError(t, err)
}
