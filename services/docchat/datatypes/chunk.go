// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared value types for the docchat service:
// the Chunk retrieval unit and the request/response shapes of the HTTP API.
package datatypes

import (
	"crypto/sha256"
	"encoding/hex"
)

// Chunk is the atomic retrieval item: a bounded unit of document text plus
// metadata describing where it came from (headers, source document).
//
// # Description
//
// Chunks are constructed via NewChunk and treated as immutable afterwards.
// ContentHash is the hex SHA-256 of the exact text bytes and is the identity
// used for cross-file deduplication: two files sharing an identical paragraph
// produce one chunk, not two.
//
// # Fields
//
//   - Text: The chunk text, exactly as split from the source markdown.
//   - Metadata: Header trail and provenance ("Header 1", "doc_id", "source").
//   - ContentHash: hex(sha256(Text)), set by NewChunk.
type Chunk struct {
	Text        string         `json:"text"`
	Metadata    map[string]any `json:"metadata"`
	ContentHash string         `json:"content_hash"`
}

// NewChunk builds a Chunk and computes its content hash.
//
// A nil metadata map is replaced with an empty one so callers can always
// tag chunks without a nil check.
func NewChunk(text string, metadata map[string]any) Chunk {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Chunk{
		Text:        text,
		Metadata:    metadata,
		ContentHash: HashBytes([]byte(text)),
	}
}

// WithMetadata returns a copy of the chunk with the given keys merged into
// its metadata. The receiver is not modified.
func (c Chunk) WithMetadata(extra map[string]any) Chunk {
	merged := make(map[string]any, len(c.Metadata)+len(extra))
	for k, v := range c.Metadata {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	c.Metadata = merged
	return c
}

// HashBytes returns the hex-encoded SHA-256 of the given bytes.
// Used both for chunk identity and for source-file cache keys.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DedupeChunks removes chunks whose ContentHash was already seen, keeping
// first-seen order. The input slice is not modified.
func DedupeChunks(chunks []Chunk) []Chunk {
	seen := make(map[string]bool, len(chunks))
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if seen[c.ContentHash] {
			continue
		}
		seen[c.ContentHash] = true
		out = append(out, c)
	}
	return out
}
