// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retriever

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/docchat/services/docchat/datatypes"
)

const chunkClassName = "DocChunk"

// WeaviateVectorStore persists embeddings in a Weaviate instance. Objects
// carry a collection_id property and every search filters on it, so
// collections never share retrieval candidates even inside one class.
type WeaviateVectorStore struct {
	client *weaviate.Client
	logger *slog.Logger
}

var _ VectorStore = (*WeaviateVectorStore)(nil)

// NewWeaviateVectorStore connects to the Weaviate instance at the given URL
// (scheme://host) and ensures the chunk class exists.
func NewWeaviateVectorStore(ctx context.Context, rawURL string, logger *slog.Logger) (*WeaviateVectorStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	scheme, host, ok := strings.Cut(rawURL, "://")
	if !ok {
		return nil, fmt.Errorf("invalid weaviate URL %q, expected scheme://host", rawURL)
	}
	client, err := weaviate.NewClient(weaviate.Config{Scheme: scheme, Host: host})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	s := &WeaviateVectorStore{client: client, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	logger.Info("Connected to Weaviate", "host", host)
	return s, nil
}

func (s *WeaviateVectorStore) ensureSchema(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(chunkClassName).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check weaviate schema: %w", err)
	}
	if exists {
		return nil
	}
	class := &models.Class{
		Class:      chunkClassName,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "content_hash", DataType: []string{"text"}},
			{Name: "collection_id", DataType: []string{"text"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create weaviate class %s: %w", chunkClassName, err)
	}
	return nil
}

// Index implements VectorStore. Existing objects for the collection are
// deleted first; object IDs are derived from (collection, content hash) so a
// re-index of unchanged content overwrites instead of duplicating.
func (s *WeaviateVectorStore) Index(ctx context.Context, collectionID string, chunks []datatypes.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}

	where := filters.Where().
		WithPath([]string{"collection_id"}).
		WithOperator(filters.Equal).
		WithValueString(collectionID)
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(chunkClassName).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear weaviate collection %s: %w", collectionID, err)
	}

	objects := make([]*models.Object, len(chunks))
	for i, chunk := range chunks {
		objects[i] = &models.Object{
			Class: chunkClassName,
			ID:    chunkObjectID(collectionID, chunk.ContentHash),
			Properties: map[string]any{
				"content":       chunk.Text,
				"content_hash":  chunk.ContentHash,
				"collection_id": collectionID,
			},
			Vector: toC11y(vectors[i]),
		}
	}
	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to index %d chunks into weaviate: %w", len(objects), err)
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("weaviate rejected object %s: %s", r.ID, r.Result.Errors.Error[0].Message)
		}
	}
	s.logger.Debug("Indexed chunks into Weaviate", "collection_id", collectionID, "count", len(objects))
	return nil
}

// Search implements VectorStore.
func (s *WeaviateVectorStore) Search(ctx context.Context, collectionID string, vector []float32, k int) ([]VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}
	where := filters.Where().
		WithPath([]string{"collection_id"}).
		WithOperator(filters.Equal).
		WithValueString(collectionID)
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	resp, err := s.client.GraphQL().Get().
		WithClassName(chunkClassName).
		WithFields(
			graphql.Field{Name: "content_hash"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
		).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate vector search failed: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate vector search failed: %s", resp.Errors[0].Message)
	}

	return parseWeaviateHits(resp.Data)
}

// parseWeaviateHits unpacks the untyped GraphQL response into VectorHits.
func parseWeaviateHits(data map[string]models.JSONObject) ([]VectorHit, error) {
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return nil, nil
	}
	rows, ok := get[chunkClassName].([]any)
	if !ok {
		return nil, nil
	}
	hits := make([]VectorHit, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			continue
		}
		hash, _ := obj["content_hash"].(string)
		var score float64
		if add, ok := obj["_additional"].(map[string]any); ok {
			switch v := add["certainty"].(type) {
			case float64:
				score = v
			case json.Number:
				score, _ = v.Float64()
			}
		}
		if hash != "" {
			hits = append(hits, VectorHit{ContentHash: hash, Score: score})
		}
	}
	return hits, nil
}

// chunkObjectID derives a stable object UUID from the collection and chunk
// identity, so re-indexing the same content is an overwrite.
func chunkObjectID(collectionID, contentHash string) strfmt.UUID {
	sum := sha256.Sum256([]byte(collectionID + "/" + contentHash))
	id, err := uuid.FromBytes(sum[:16])
	if err != nil {
		// 16 bytes always form a valid UUID; this path is unreachable.
		return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceOID, sum[:]).String())
	}
	return strfmt.UUID(id.String())
}

func toC11y(v []float32) models.C11yVector {
	out := make(models.C11yVector, len(v))
	copy(out, v)
	return out
}
