package memstore

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"sojourn/backend/internal/rag"
	"sojourn/backend/internal/worker"
)

const collectionName = "document_chunks"

// Store is an embedded vector index backed by chromem-go. It serves
// local development and tests where running Weaviate is not worth it;
// the search contract matches the Weaviate adapter, including the
// in-query tenant filter.
type Store struct {
	collection *chromem.Collection

	mu sync.Mutex
	// chunk counts keyed by userID then documentID, chromem has no
	// filtered count
	counts map[string]map[string]int
}

func NewStore() (*Store, error) {
	db := chromem.NewDB()
	return newStore(db)
}

// NewPersistentStore keeps the index on disk across restarts. The
// per-tenant counts are rebuilt from the persisted documents so
// CountChunks stays accurate after a reopen.
func NewPersistentStore(path string) (*Store, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, err
	}
	s, err := newStore(db)
	if err != nil {
		return nil, err
	}
	if err := s.rebuildCounts(path); err != nil {
		return nil, err
	}
	return s, nil
}

func newStore(db *chromem.DB) (*Store, error) {
	// Vectors always arrive precomputed, the embedding func must never run.
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("memstore requires precomputed embeddings")
	}
	collection, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, err
	}
	return &Store{
		collection: collection,
		counts:     make(map[string]map[string]int),
	}, nil
}

// rebuildCounts replays the metadata of every document persisted in
// earlier runs. chromem exposes no enumeration API, but its on-disk
// layout is stable for a pinned version: one plain gob file per
// document under a directory named after the first four bytes of the
// collection name's sha256, plus a 00000000 collection metadata file.
func (s *Store) rebuildCounts(path string) error {
	sum := sha256.Sum256([]byte(collectionName))
	dir := filepath.Join(path, hex.EncodeToString(sum[:4]))

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".gob" {
			continue
		}
		if strings.TrimSuffix(name, ".gob") == "00000000" {
			continue
		}

		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		var doc chromem.Document
		decodeErr := gob.NewDecoder(f).Decode(&doc)
		f.Close()
		if decodeErr != nil {
			return fmt.Errorf("decoding persisted document %s: %w", name, decodeErr)
		}

		userID := doc.Metadata["userId"]
		documentID := doc.Metadata["documentId"]
		if userID == "" || documentID == "" {
			continue
		}
		if s.counts[userID] == nil {
			s.counts[userID] = make(map[string]int)
		}
		s.counts[userID][documentID]++
	}
	return nil
}

func (s *Store) StoreChunk(ctx context.Context, chunk worker.Chunk) error {
	doc := chromem.Document{
		ID:        fmt.Sprintf("%s-%d", chunk.DocumentID, chunk.ChunkIndex),
		Content:   chunk.Content,
		Embedding: chunk.Vector,
		Metadata: map[string]string{
			"userId":     chunk.UserID,
			"documentId": chunk.DocumentID,
			"docType":    chunk.DocType,
			"assetId":    chunk.AssetID,
			"chunkIndex": strconv.Itoa(chunk.ChunkIndex),
		},
	}
	if err := s.collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return err
	}

	s.mu.Lock()
	if s.counts[chunk.UserID] == nil {
		s.counts[chunk.UserID] = make(map[string]int)
	}
	s.counts[chunk.UserID][chunk.DocumentID]++
	s.mu.Unlock()
	return nil
}

func (s *Store) Search(ctx context.Context, queryVector []float32, userID string, limit int) ([]rag.RetrievedChunk, error) {
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	where := map[string]string{"userId": userID}
	hits, err := s.collection.QueryEmbedding(ctx, queryVector, limit, where, nil)
	if err != nil {
		return nil, err
	}

	results := make([]rag.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		results = append(results, rag.RetrievedChunk{
			Content:    hit.Content,
			DocumentID: hit.Metadata["documentId"],
			DocType:    hit.Metadata["docType"],
			AssetID:    hit.Metadata["assetId"],
			Similarity: float64(hit.Similarity),
		})
	}
	return results, nil
}

func (s *Store) DeleteChunksByDocument(ctx context.Context, userID, documentID string) error {
	where := map[string]string{
		"userId":     userID,
		"documentId": documentID,
	}
	if err := s.collection.Delete(ctx, where, nil); err != nil {
		return err
	}

	s.mu.Lock()
	if perDoc := s.counts[userID]; perDoc != nil {
		delete(perDoc, documentID)
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) CountChunks(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return s.collection.Count(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.counts[userID] {
		total += n
	}
	return total, nil
}
