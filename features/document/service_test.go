package document_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"sojourn/backend/features/document"
	"sojourn/backend/internal/worker"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) Save(ctx context.Context, doc *document.Document) error {
	args := m.Called(ctx, doc)
	if args.Error(0) == nil && doc.ID == "" {
		doc.ID = "doc-1"
	}
	return args.Error(0)
}

func (m *MockRepo) Get(ctx context.Context, userID, id string) (*document.Document, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*document.Document), args.Error(1)
}

func (m *MockRepo) List(ctx context.Context, userID string) ([]document.Document, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]document.Document), args.Error(1)
}

func (m *MockRepo) ExistsByHash(ctx context.Context, userID, hash string) (bool, error) {
	args := m.Called(ctx, userID, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) UpdateStatus(ctx context.Context, id, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockRepo) SoftDelete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepo) Count(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

type MockChunkStore struct{ mock.Mock }

func (m *MockChunkStore) DeleteChunksByDocument(ctx context.Context, userID, documentID string) error {
	args := m.Called(ctx, userID, documentID)
	return args.Error(0)
}

func TestService_Upload(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)

	repo.On("ExistsByHash", mock.Anything, "user-a", "hash1").Return(false, nil)
	repo.On("Save", mock.Anything, mock.MatchedBy(func(doc *document.Document) bool {
		return doc.UserID == "user-a" && doc.DocType == "pdf" && doc.Status == document.StatusProcessing
	})).Return(nil)
	pub.On("Publish", "document.ingest", mock.MatchedBy(func(body []byte) bool {
		var msg worker.IngestMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return false
		}
		return msg.DocumentID == "doc-1" && msg.UserID == "user-a" && msg.DocType == "pdf"
	})).Return(nil)

	svc := document.NewService(repo, pub, new(MockChunkStore))
	doc, err := svc.Upload(context.Background(), "user-a", "/uploads/x.pdf", "hash1", "offer.pdf", "http://localhost/uploads/x.pdf")

	assert.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
	pub.AssertExpectations(t)
}

func TestService_Upload_Duplicate(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	repo.On("ExistsByHash", mock.Anything, "user-a", "hash1").Return(true, nil)

	svc := document.NewService(repo, pub, new(MockChunkStore))
	_, err := svc.Upload(context.Background(), "user-a", "/p", "hash1", "offer.pdf", "")

	assert.EqualError(t, err, "Duplicate detected")
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestService_Upload_PublishFailureMarksFailed(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)

	repo.On("ExistsByHash", mock.Anything, "user-a", "hash1").Return(false, nil)
	repo.On("Save", mock.Anything, mock.Anything).Return(nil)
	pub.On("Publish", "document.ingest", mock.Anything).Return(errors.New("nsqd unreachable"))
	repo.On("UpdateStatus", mock.Anything, "doc-1", document.StatusFailed).Return(nil)

	svc := document.NewService(repo, pub, new(MockChunkStore))
	_, err := svc.Upload(context.Background(), "user-a", "/p", "hash1", "offer.pdf", "")

	assert.Error(t, err)
	repo.AssertCalled(t, "UpdateStatus", mock.Anything, "doc-1", document.StatusFailed)
}

func TestService_Delete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stored.pdf")
	assert.NoError(t, os.WriteFile(path, []byte("content"), 0o600))

	repo := new(MockRepo)
	chunks := new(MockChunkStore)

	repo.On("Get", mock.Anything, "user-a", "doc-1").
		Return(&document.Document{ID: "doc-1", UserID: "user-a", StoragePath: path}, nil)
	repo.On("SoftDelete", mock.Anything, "doc-1").Return(nil)
	chunks.On("DeleteChunksByDocument", mock.Anything, "user-a", "doc-1").Return(nil)

	svc := document.NewService(repo, new(MockPublisher), chunks)
	result, err := svc.Delete(context.Background(), "user-a", "doc-1")

	assert.NoError(t, err)
	assert.True(t, result.ChunksPurged)
	assert.True(t, result.FileRemoved)
	assert.Empty(t, result.Errors)
	assert.NoFileExists(t, path)
}

func TestService_Delete_ChunkPurgeFailureIsReported(t *testing.T) {
	repo := new(MockRepo)
	chunks := new(MockChunkStore)

	repo.On("Get", mock.Anything, "user-a", "doc-1").
		Return(&document.Document{ID: "doc-1", UserID: "user-a"}, nil)
	repo.On("SoftDelete", mock.Anything, "doc-1").Return(nil)
	chunks.On("DeleteChunksByDocument", mock.Anything, "user-a", "doc-1").Return(errors.New("weaviate down"))

	svc := document.NewService(repo, new(MockPublisher), chunks)
	result, err := svc.Delete(context.Background(), "user-a", "doc-1")

	assert.NoError(t, err) // delete succeeded, cleanup is reported
	assert.False(t, result.ChunksPurged)
	assert.True(t, result.FileRemoved)
	assert.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "chunk purge")
}

func TestService_Delete_RowDeleteFailureIsFatal(t *testing.T) {
	repo := new(MockRepo)
	chunks := new(MockChunkStore)

	repo.On("Get", mock.Anything, "user-a", "doc-1").
		Return(&document.Document{ID: "doc-1", UserID: "user-a"}, nil)
	repo.On("SoftDelete", mock.Anything, "doc-1").Return(errors.New("db down"))

	svc := document.NewService(repo, new(MockPublisher), chunks)
	result, err := svc.Delete(context.Background(), "user-a", "doc-1")

	assert.Error(t, err)
	assert.Nil(t, result)
	chunks.AssertNotCalled(t, "DeleteChunksByDocument", mock.Anything, mock.Anything, mock.Anything)
}
