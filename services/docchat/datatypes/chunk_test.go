// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewChunk_HashIsDeterministic verifies that identical text always yields
// the same content hash regardless of metadata.
func TestNewChunk_HashIsDeterministic(t *testing.T) {
	// Arrange & Act
	a := NewChunk("refunds are issued within 30 days", map[string]any{"doc_id": "a.md"})
	b := NewChunk("refunds are issued within 30 days", map[string]any{"doc_id": "b.md"})
	c := NewChunk("refunds are issued within 31 days", nil)

	// Assert
	assert.Equal(t, a.ContentHash, b.ContentHash)
	assert.NotEqual(t, a.ContentHash, c.ContentHash)
	assert.Len(t, a.ContentHash, 64)
}

// TestNewChunk_NilMetadata verifies a nil metadata map is normalized.
func TestNewChunk_NilMetadata(t *testing.T) {
	c := NewChunk("text", nil)
	require.NotNil(t, c.Metadata)
	assert.Empty(t, c.Metadata)
}

// TestWithMetadata_DoesNotMutateReceiver verifies copy-on-write semantics.
func TestWithMetadata_DoesNotMutateReceiver(t *testing.T) {
	// Arrange
	orig := NewChunk("text", map[string]any{"Header 1": "Refunds"})

	// Act
	tagged := orig.WithMetadata(map[string]any{"doc_id": "policy.md"})

	// Assert
	assert.NotContains(t, orig.Metadata, "doc_id")
	assert.Equal(t, "policy.md", tagged.Metadata["doc_id"])
	assert.Equal(t, "Refunds", tagged.Metadata["Header 1"])
	assert.Equal(t, orig.ContentHash, tagged.ContentHash)
}

// TestDedupeChunks verifies duplicates collapse and first-seen order holds.
func TestDedupeChunks(t *testing.T) {
	// Arrange
	shared := NewChunk("shared paragraph", nil)
	unique := NewChunk("unique paragraph", nil)
	in := []Chunk{shared, unique, shared, shared}

	// Act
	out := DedupeChunks(in)

	// Assert
	require.Len(t, out, 2)
	assert.Equal(t, shared.ContentHash, out[0].ContentHash)
	assert.Equal(t, unique.ContentHash, out[1].ContentHash)
}

// TestAskRequest_TopK verifies default and explicit top_k_sources handling.
func TestAskRequest_TopK(t *testing.T) {
	zero := 0
	ten := 10
	tests := []struct {
		name string
		in   *int
		want int
	}{
		{"default when omitted", nil, DefaultTopKSources},
		{"explicit zero respected", &zero, 0},
		{"explicit value respected", &ten, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := AskRequest{Question: "q", DocID: "d.md", TopKSources: tt.in}
			assert.Equal(t, tt.want, req.TopK())
		})
	}
}
