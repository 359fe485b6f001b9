package document

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sojourn/backend/internal/config"
	"sojourn/backend/internal/middleware"
	"sojourn/backend/internal/worker"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

type Document struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Filename    string    `json:"filename"`
	DocType     string    `json:"doc_type"`
	Status      string    `json:"status"`
	AssetURL    string    `json:"asset_url"`
	StoragePath string    `json:"-"`
	ContentHash string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CleanupResult reports what the delete actually removed. Partial
// failures are visible to the caller instead of being swallowed.
type CleanupResult struct {
	ChunksPurged bool     `json:"chunks_purged"`
	FileRemoved  bool     `json:"file_removed"`
	Errors       []string `json:"errors,omitempty"`
}

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	Get(ctx context.Context, userID, id string) (*Document, error)
	List(ctx context.Context, userID string) ([]Document, error)
	ExistsByHash(ctx context.Context, userID, hash string) (bool, error)
	UpdateStatus(ctx context.Context, id, status string) error
	SoftDelete(ctx context.Context, id string) error
	Count(ctx context.Context, userID string) (int, error)
}

type ChunkStore interface {
	DeleteChunksByDocument(ctx context.Context, userID, documentID string) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo       Repository
	pub        EventPublisher
	chunkStore ChunkStore
}

func NewService(repo Repository, pub EventPublisher, chunkStore ChunkStore) *Service {
	return &Service{repo: repo, pub: pub, chunkStore: chunkStore}
}

// Upload registers a stored file and queues it for ingestion. The same
// content uploaded twice by the same user is rejected; the same content
// from two users is two documents.
func (s *Service) Upload(ctx context.Context, userID, path, hash, filename, assetURL string) (*Document, error) {
	exists, err := s.repo.ExistsByHash(ctx, userID, hash)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("Duplicate detected")
	}

	doc := &Document{
		UserID:      userID,
		Filename:    filename,
		DocType:     docTypeFor(filename),
		Status:      StatusProcessing,
		AssetURL:    assetURL,
		StoragePath: path,
		ContentHash: hash,
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(worker.IngestMessage{
		DocumentID:    doc.ID,
		UserID:        userID,
		AssetID:       doc.ID,
		FilePath:      path,
		DocType:       doc.DocType,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicDocumentIngest, payload); err != nil {
		// Row exists but nothing will process it. Mark failed so the
		// user sees it rather than a document stuck in processing.
		if stErr := s.repo.UpdateStatus(ctx, doc.ID, StatusFailed); stErr != nil {
			slog.ErrorContext(ctx, "failed to mark document failed", "error", stErr, "document_id", doc.ID)
		}
		return nil, fmt.Errorf("queueing ingestion: %w", err)
	}

	return doc, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (*Document, error) {
	return s.repo.Get(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID string) ([]Document, error) {
	return s.repo.List(ctx, userID)
}

// Delete removes the document row, its index chunks and its file. The
// row delete is the one that must succeed; chunk and file cleanup
// failures are reported in the result and logged, not fatal.
func (s *Service) Delete(ctx context.Context, userID, id string) (*CleanupResult, error) {
	doc, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SoftDelete(ctx, doc.ID); err != nil {
		return nil, err
	}

	result := &CleanupResult{ChunksPurged: true, FileRemoved: true}

	if err := s.chunkStore.DeleteChunksByDocument(ctx, userID, doc.ID); err != nil {
		result.ChunksPurged = false
		result.Errors = append(result.Errors, fmt.Sprintf("chunk purge: %v", err))
		slog.ErrorContext(ctx, "chunk purge failed", "error", err, "document_id", doc.ID)
	}

	if doc.StoragePath != "" {
		if err := os.Remove(doc.StoragePath); err != nil && !os.IsNotExist(err) {
			result.FileRemoved = false
			result.Errors = append(result.Errors, fmt.Sprintf("file removal: %v", err))
			slog.ErrorContext(ctx, "file removal failed", "error", err, "document_id", doc.ID)
		}
	}

	return result, nil
}

func docTypeFor(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	switch ext {
	case "png", "jpg", "jpeg", "gif", "webp":
		return "image"
	default:
		return ext
	}
}
