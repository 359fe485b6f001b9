package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"sojourn/backend/internal/rag"
	"sojourn/backend/internal/vector"
	"sojourn/backend/internal/worker"
)

// maxSearchDistance bounds the nearVector query. Cosine distance 0.75
// corresponds to the similarity floor applied by the retriever.
const maxSearchDistance = 0.75

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) StoreChunk(ctx context.Context, chunk worker.Chunk) error {
	_, err := s.client.Data().Creator().
		WithClassName(vector.ClassDocumentChunk).
		WithProperties(map[string]interface{}{
			"content":    chunk.Content,
			"userId":     chunk.UserID,
			"documentId": chunk.DocumentID,
			"docType":    chunk.DocType,
			"assetId":    chunk.AssetID,
			"chunkIndex": chunk.ChunkIndex,
		}).
		WithVector(chunk.Vector).
		Do(ctx)
	return err
}

func (s *Store) DeleteChunksByDocument(ctx context.Context, userID, documentID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassDocumentChunk).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithOperator(filters.And).
			WithOperands([]*filters.WhereBuilder{
				filters.Where().
					WithPath([]string{"userId"}).
					WithOperator(filters.Equal).
					WithValueString(userID),
				filters.Where().
					WithPath([]string{"documentId"}).
					WithOperator(filters.Equal).
					WithValueString(documentID),
			})).
		Do(ctx)
	return err
}

// Search runs a tenant-filtered nearVector query. The userId filter is
// part of the query itself; results never cross tenants. Similarity is
// derived as 1 - cosine distance.
func (s *Store) Search(ctx context.Context, queryVector []float32, userID string, limit int) ([]rag.RetrievedChunk, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(queryVector).
		WithDistance(maxSearchDistance)

	where := filters.Where().
		WithPath([]string{"userId"}).
		WithOperator(filters.Equal).
		WithValueString(userID)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "documentId"},
		{Name: "docType"},
		{Name: "assetId"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassDocumentChunk).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var results []rag.RetrievedChunk
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if chunks, ok := data[vector.ClassDocumentChunk].([]interface{}); ok {
			for _, c := range chunks {
				props, ok := c.(map[string]interface{})
				if !ok {
					continue
				}

				result := rag.RetrievedChunk{}
				if content, ok := props["content"].(string); ok {
					result.Content = content
				}
				if documentID, ok := props["documentId"].(string); ok {
					result.DocumentID = documentID
				}
				if docType, ok := props["docType"].(string); ok {
					result.DocType = docType
				}
				if assetID, ok := props["assetId"].(string); ok {
					result.AssetID = assetID
				}
				if additional, ok := props["_additional"].(map[string]interface{}); ok {
					if distance, ok := additional["distance"].(float64); ok {
						result.Similarity = 1 - distance
					}
				}

				results = append(results, result)
			}
		}
	}

	return results, nil
}

// CountChunks returns the number of indexed chunks for a tenant, or
// across all tenants when userID is empty.
func (s *Store) CountChunks(ctx context.Context, userID string) (int, error) {
	agg := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassDocumentChunk).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}})

	if userID != "" {
		agg = agg.WithWhere(filters.Where().
			WithPath([]string{"userId"}).
			WithOperator(filters.Equal).
			WithValueString(userID))
	}

	res, err := agg.Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if rows, ok := data[vector.ClassDocumentChunk].([]interface{}); ok && len(rows) > 0 {
			if props, ok := rows[0].(map[string]interface{}); ok {
				if meta, ok := props["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}

	return 0, nil
}
