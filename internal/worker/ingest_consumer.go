package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"sojourn/backend/internal/ingest"
	"sojourn/backend/internal/middleware"
	"sojourn/backend/internal/text"
)

const (
	StatusReady  = "ready"
	StatusFailed = "failed"

	processingTimeout = 5 * time.Minute
)

type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorStore interface {
	StoreChunk(ctx context.Context, chunk Chunk) error
}

type DocumentStatusStore interface {
	SetStatus(ctx context.Context, documentID, status string) error
}

type ImagePipeline interface {
	ProcessImage(ctx context.Context, data []byte) (string, error)
}

type Chunker interface {
	Chunk(content string) []text.Chunk
}

// IngestConsumer processes uploaded documents off the queue: extract
// text, chunk, embed, index, then flip the document status.
type IngestConsumer struct {
	chunker  Chunker
	embedder BatchEmbedder
	store    VectorStore
	docs     DocumentStatusStore
	images   ImagePipeline
}

func NewIngestConsumer(c Chunker, e BatchEmbedder, s VectorStore, d DocumentStatusStore, i ImagePipeline) *IngestConsumer {
	return &IngestConsumer{
		chunker:  c,
		embedder: e,
		store:    s,
		docs:     d,
		images:   i,
	}
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var msg IngestMessage
	if err := json.Unmarshal(m.Body, &msg); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if msg.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, msg.CorrelationID)
	}

	procCtx, cancel := context.WithTimeout(ctx, processingTimeout)
	defer cancel()

	err := h.process(procCtx, msg)
	if err == nil {
		if err := h.docs.SetStatus(procCtx, msg.DocumentID, StatusReady); err != nil {
			slog.ErrorContext(ctx, "status update failed", "error", err, "document_id", msg.DocumentID)
			return err // Retry
		}
		slog.InfoContext(ctx, "document ingested", "document_id", msg.DocumentID, "user_id", msg.UserID)
		return nil
	}

	if isContentError(err) {
		// The upload itself is bad. Redelivery cannot fix it.
		slog.WarnContext(ctx, "document rejected", "error", err, "document_id", msg.DocumentID)
		if err := h.docs.SetStatus(procCtx, msg.DocumentID, StatusFailed); err != nil {
			slog.ErrorContext(ctx, "status update failed", "error", err, "document_id", msg.DocumentID)
			return err // Retry
		}
		return nil
	}

	slog.ErrorContext(ctx, "ingestion failed", "error", err, "document_id", msg.DocumentID)
	return err // Retry
}

func (h *IngestConsumer) process(ctx context.Context, msg IngestMessage) error {
	content, err := h.extract(ctx, msg)
	if err != nil {
		return err
	}

	chunks := h.chunker.Chunk(content)
	if len(chunks) == 0 {
		return ingest.ErrNoText
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := h.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	for i, c := range chunks {
		chunk := Chunk{
			Content:    c.Text,
			UserID:     msg.UserID,
			DocumentID: msg.DocumentID,
			DocType:    msg.DocType,
			AssetID:    msg.AssetID,
			ChunkIndex: i,
			Vector:     vectors[i],
		}
		if err := h.store.StoreChunk(ctx, chunk); err != nil {
			return err
		}
	}

	return nil
}

func (h *IngestConsumer) extract(ctx context.Context, msg IngestMessage) (string, error) {
	if ingest.IsImage(msg.FilePath) {
		data, err := ingest.ReadFile(msg.FilePath)
		if err != nil {
			return "", err
		}
		return h.images.ProcessImage(ctx, data)
	}
	return ingest.ExtractText(msg.FilePath)
}

func isContentError(err error) bool {
	return errors.Is(err, ingest.ErrUnsupported) ||
		errors.Is(err, ingest.ErrNoText) ||
		errors.Is(err, ingest.ErrUnreadableImage) ||
		errors.Is(err, os.ErrNotExist)
}
