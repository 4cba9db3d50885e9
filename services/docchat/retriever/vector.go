// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/AleutianAI/docchat/services/docchat/datatypes"
)

// VectorHit is one vector-search result, identified by chunk content hash.
type VectorHit struct {
	ContentHash string
	Score       float64
}

// VectorStore persists chunk embeddings namespaced by collection identifier.
// Chunks from different collections must never appear in each other's
// search results.
type VectorStore interface {
	// Index replaces the stored vectors for collectionID with the given
	// chunk/vector pairs. chunks[i] corresponds to vectors[i].
	Index(ctx context.Context, collectionID string, chunks []datatypes.Chunk, vectors [][]float32) error

	// Search returns the k nearest chunks to the query vector within
	// collectionID, best first.
	Search(ctx context.Context, collectionID string, vector []float32, k int) ([]VectorHit, error)
}

// MemoryVectorStore is the in-process VectorStore used in lightweight mode,
// when no external vector database is configured. Exact cosine search over
// all stored vectors; fine at single-document scale.
type MemoryVectorStore struct {
	mu          sync.RWMutex
	collections map[string][]memoryEntry
}

type memoryEntry struct {
	contentHash string
	vector      []float32
}

var _ VectorStore = (*MemoryVectorStore)(nil)

func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{collections: make(map[string][]memoryEntry)}
}

// Index implements VectorStore. The whole collection namespace is replaced
// atomically under the write lock.
func (m *MemoryVectorStore) Index(_ context.Context, collectionID string, chunks []datatypes.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}
	entries := make([]memoryEntry, len(chunks))
	for i := range chunks {
		entries[i] = memoryEntry{contentHash: chunks[i].ContentHash, vector: vectors[i]}
	}
	m.mu.Lock()
	m.collections[collectionID] = entries
	m.mu.Unlock()
	return nil
}

// Search implements VectorStore.
func (m *MemoryVectorStore) Search(_ context.Context, collectionID string, vector []float32, k int) ([]VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	entries := m.collections[collectionID]
	m.mu.RUnlock()

	hits := make([]VectorHit, 0, len(entries))
	for _, e := range entries {
		hits = append(hits, VectorHit{
			ContentHash: e.contentHash,
			Score:       cosineSimilarity(vector, e.vector),
		})
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ContentHash < hits[b].ContentHash
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
