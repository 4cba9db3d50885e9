// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retriever

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/docchat/services/docchat/datatypes"
	"github.com/AleutianAI/docchat/services/docchat/ingest"
	"github.com/AleutianAI/docchat/services/llm"
)

// countingStore wraps MemoryVectorStore and counts Index calls, which is a
// reliable proxy for how many full builds ran.
type countingStore struct {
	*MemoryVectorStore
	indexCalls atomic.Int64
}

func (c *countingStore) Index(ctx context.Context, collectionID string, chunks []datatypes.Chunk, vectors [][]float32) error {
	c.indexCalls.Add(1)
	return c.MemoryVectorStore.Index(ctx, collectionID, chunks, vectors)
}

func newTestRegistry(t *testing.T, docsDir string) (*Registry, *countingStore) {
	t.Helper()
	cache, err := ingest.OpenCache(ingest.CacheConfig{InMemory: true, TTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	store := &countingStore{MemoryVectorStore: NewMemoryVectorStore()}
	reg := NewRegistry(docsDir, ingest.NewProcessor(cache, nil), llm.NewLocalEmbedder(64), store, HybridConfig{}, nil)
	return reg, store
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestResolve_FastPathReusesIndex verifies an unchanged file resolves to the
// same index without a rebuild.
func TestResolve_FastPathReusesIndex(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	writeDoc(t, dir, "policy.md", "# Refunds\n\nRefunds within 30 days.\n")
	reg, store := newTestRegistry(t, dir)

	// Act
	first, err := reg.Resolve(context.Background(), "policy.md")
	require.NoError(t, err)
	second, err := reg.Resolve(context.Background(), "policy.md")
	require.NoError(t, err)

	// Assert
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), store.indexCalls.Load())
}

// TestResolve_FingerprintInvalidation verifies changing the file's bytes
// forces a rebuild on the next resolve.
func TestResolve_FingerprintInvalidation(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	path := writeDoc(t, dir, "policy.md", "# Refunds\n\nRefunds within 30 days.\n")
	reg, store := newTestRegistry(t, dir)

	first, err := reg.Resolve(context.Background(), "policy.md")
	require.NoError(t, err)

	// Act: grow the file so size (and mtime) change.
	require.NoError(t, os.WriteFile(path, []byte("# Refunds\n\nRefunds within 14 days for sale items.\n"), 0o644))
	second, err := reg.Resolve(context.Background(), "policy.md")
	require.NoError(t, err)

	// Assert
	assert.NotSame(t, first, second)
	assert.Equal(t, int64(2), store.indexCalls.Load())
}

// TestResolve_ConcurrentSingleBuild verifies N simultaneous resolves of the
// same cold document trigger exactly one build and all callers share it.
func TestResolve_ConcurrentSingleBuild(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	writeDoc(t, dir, "policy.md", "# Refunds\n\nRefunds within 30 days.\n")
	reg, store := newTestRegistry(t, dir)

	const n = 16
	results := make([]*HybridIndex, n)
	var wg sync.WaitGroup

	// Act
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx, err := reg.Resolve(context.Background(), "policy.md")
			assert.NoError(t, err)
			results[i] = idx
		}(i)
	}
	wg.Wait()

	// Assert
	assert.Equal(t, int64(1), store.indexCalls.Load())
	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
}

// TestResolve_UnknownAndMissing covers the two not-found flavors: never-seen
// documents and documents whose file disappeared after a build.
func TestResolve_UnknownAndMissing(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	path := writeDoc(t, dir, "policy.md", "# Refunds\n\nRefunds within 30 days.\n")
	reg, _ := newTestRegistry(t, dir)

	// Never-seen doc.
	_, err := reg.Resolve(context.Background(), "nope.md")
	assert.ErrorIs(t, err, datatypes.ErrUnknownDocument)

	// Unsupported extension is not part of the catalog.
	_, err = reg.Resolve(context.Background(), "image.png")
	assert.ErrorIs(t, err, datatypes.ErrUnknownDocument)

	// Known doc whose file vanished.
	_, err = reg.Resolve(context.Background(), "policy.md")
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	_, err = reg.Resolve(context.Background(), "policy.md")
	assert.ErrorIs(t, err, datatypes.ErrSourceMissing)
}

// TestListCatalog verifies the catalog rescans on every call and filters
// unsupported files.
func TestListCatalog(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	writeDoc(t, dir, "b.md", "# B\n")
	writeDoc(t, dir, "a.txt", "plain text")
	writeDoc(t, dir, "skip.png", "binary-ish")
	reg, _ := newTestRegistry(t, dir)

	// Act
	ids, err := reg.ListCatalog()
	require.NoError(t, err)

	// Assert
	assert.Equal(t, []string{"a.txt", "b.md"}, ids)

	// A later addition shows up without any registry poke.
	writeDoc(t, dir, "c.md", "# C\n")
	ids, err = reg.ListCatalog()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.md", "c.md"}, ids)
}

// TestResolve_ResultsCarryDocMetadata verifies chunks are tagged with their
// doc_id and source path during the build.
func TestResolve_ResultsCarryDocMetadata(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	writeDoc(t, dir, "policy.md", "# Refunds\n\nRefunds within 30 days.\n")
	reg, _ := newTestRegistry(t, dir)

	// Act
	idx, err := reg.Resolve(context.Background(), "policy.md")
	require.NoError(t, err)
	results, err := idx.Query(context.Background(), "refund window", 1)
	require.NoError(t, err)

	// Assert
	require.NotEmpty(t, results)
	assert.Equal(t, "policy.md", results[0].Metadata["doc_id"])
	assert.Equal(t, filepath.Join(dir, "policy.md"), results[0].Metadata["source"])
}
