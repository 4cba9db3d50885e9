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
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/docchat/services/docchat/datatypes"
	"github.com/AleutianAI/docchat/services/llm"
)

var tracer = otel.Tracer("docchat.retriever")

// Default fusion weights. Vector similarity gets the larger share; the
// lexical ranker mostly anchors exact-term matches.
const (
	DefaultLexicalWeight = 0.4
	DefaultVectorWeight  = 0.6
)

// HybridConfig carries the tunable fusion parameters.
type HybridConfig struct {
	LexicalWeight float64
	VectorWeight  float64
}

func (c HybridConfig) withDefaults() HybridConfig {
	if c.LexicalWeight <= 0 && c.VectorWeight <= 0 {
		c.LexicalWeight = DefaultLexicalWeight
		c.VectorWeight = DefaultVectorWeight
	}
	return c
}

// HybridIndex fuses a BM25 lexical ranker and a vector-similarity ranker
// over one document collection's chunks.
//
// # Description
//
// Build embeds every chunk, stores the vectors namespaced by collection,
// and constructs the lexical index; a build either completes fully or
// returns an error, never a partially usable index. Query runs both
// rankers, min-max normalizes each ranker's scores into [0,1], and orders
// candidates by the weighted sum. Equal fused scores are broken by the
// lower lexical rank, then by content hash, so results are reproducible.
//
// # Thread Safety
//
// Immutable after Build; safe for concurrent queries.
type HybridIndex struct {
	collectionID string
	chunks       []datatypes.Chunk
	byHash       map[string]int
	lexical      *bm25Index
	store        VectorStore
	embedder     llm.Embedder
	cfg          HybridConfig
}

// BuildHybridIndex constructs a ready-to-query index over the given chunks.
// Chunks are deduplicated by content hash first. Embedding or storage
// failures surface as ErrIndexBuildError.
func BuildHybridIndex(ctx context.Context, collectionID string, chunks []datatypes.Chunk,
	embedder llm.Embedder, store VectorStore, cfg HybridConfig) (*HybridIndex, error) {

	ctx, span := tracer.Start(ctx, "BuildHybridIndex")
	defer span.End()
	span.SetAttributes(
		attribute.String("retriever.collection_id", collectionID),
		attribute.Int("retriever.num_chunks", len(chunks)),
	)

	chunks = datatypes.DedupeChunks(chunks)
	texts := make([]string, len(chunks))
	byHash := make(map[string]int, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		byHash[c.ContentHash] = i
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: embedding %d chunks: %v", datatypes.ErrIndexBuildError, len(chunks), err)
	}
	if err := store.Index(ctx, collectionID, chunks, vectors); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: storing vectors: %v", datatypes.ErrIndexBuildError, err)
	}

	return &HybridIndex{
		collectionID: collectionID,
		chunks:       chunks,
		byHash:       byHash,
		lexical:      newBM25Index(texts),
		store:        store,
		embedder:     embedder,
		cfg:          cfg.withDefaults(),
	}, nil
}

// Query returns up to k chunks ranked by fused score. An empty candidate
// set yields an empty result, not an error.
func (h *HybridIndex) Query(ctx context.Context, question string, k int) ([]datatypes.Chunk, error) {
	ctx, span := tracer.Start(ctx, "HybridIndex.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("retriever.collection_id", h.collectionID),
		attribute.Int("retriever.k", k),
	)

	if k <= 0 || len(h.chunks) == 0 {
		return nil, nil
	}

	// Each ranker over-fetches so the fused ordering has candidates that
	// only one side surfaced.
	candidateK := k * 4
	if candidateK < 20 {
		candidateK = 20
	}
	if candidateK > len(h.chunks) {
		candidateK = len(h.chunks)
	}

	var (
		lexHits []lexicalHit
		vecHits []VectorHit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexHits = h.lexical.search(question, candidateK)
		return nil
	})
	g.Go(func() error {
		qVecs, err := h.embedder.Embed(gctx, []string{question})
		if err != nil {
			return fmt.Errorf("embedding query: %w", err)
		}
		vecHits, err = h.store.Search(gctx, h.collectionID, qVecs[0], candidateK)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	fused := h.fuse(lexHits, vecHits)
	if len(fused) > k {
		fused = fused[:k]
	}
	out := make([]datatypes.Chunk, len(fused))
	for i, f := range fused {
		out[i] = h.chunks[h.byHash[f.contentHash]]
	}
	span.SetAttributes(attribute.Int("retriever.num_results", len(out)))
	return out, nil
}

type fusedHit struct {
	contentHash string
	score       float64
	lexicalRank int
}

// fuse merges the two candidate lists into one deterministic ordering.
// A candidate absent from one ranker contributes zero for that ranker's
// normalized score.
func (h *HybridIndex) fuse(lexHits []lexicalHit, vecHits []VectorHit) []fusedHit {
	lexNorm := make(map[string]float64, len(lexHits))
	lexRank := make(map[string]int, len(lexHits))
	{
		scores := make([]float64, len(lexHits))
		for i, hit := range lexHits {
			scores[i] = hit.score
		}
		norm := normalizeScores(scores)
		for i, hit := range lexHits {
			hash := h.chunks[hit.docIdx].ContentHash
			lexNorm[hash] = norm[i]
			lexRank[hash] = hit.rank
		}
	}

	vecNorm := make(map[string]float64, len(vecHits))
	{
		scores := make([]float64, len(vecHits))
		for i, hit := range vecHits {
			scores[i] = hit.Score
		}
		norm := normalizeScores(scores)
		for i, hit := range vecHits {
			// The vector store may hold rows from a previous build;
			// only hashes present in this index participate.
			if _, ok := h.byHash[hit.ContentHash]; ok {
				vecNorm[hit.ContentHash] = norm[i]
			}
		}
	}

	seen := make(map[string]bool, len(lexNorm)+len(vecNorm))
	fused := make([]fusedHit, 0, len(lexNorm)+len(vecNorm))
	add := func(hash string) {
		if seen[hash] {
			return
		}
		seen[hash] = true
		rank, ok := lexRank[hash]
		if !ok {
			rank = len(h.chunks) // sorts after every real lexical rank
		}
		fused = append(fused, fusedHit{
			contentHash: hash,
			score:       h.cfg.LexicalWeight*lexNorm[hash] + h.cfg.VectorWeight*vecNorm[hash],
			lexicalRank: rank,
		})
	}
	for _, hit := range lexHits {
		add(h.chunks[hit.docIdx].ContentHash)
	}
	for _, hit := range vecHits {
		if _, ok := h.byHash[hit.ContentHash]; ok {
			add(hit.ContentHash)
		}
	}

	sort.SliceStable(fused, func(a, b int) bool {
		if fused[a].score != fused[b].score {
			return fused[a].score > fused[b].score
		}
		if fused[a].lexicalRank != fused[b].lexicalRank {
			return fused[a].lexicalRank < fused[b].lexicalRank
		}
		return fused[a].contentHash < fused[b].contentHash
	})
	return fused
}

// normalizeScores min-max normalizes into [0,1]. When all scores are equal
// (including a single candidate) every score maps to 1.0 so the ranker
// still contributes its full weight.
func normalizeScores(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	minS, maxS := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minS {
			minS = s
		}
		if s > maxS {
			maxS = s
		}
	}
	out := make([]float64, len(scores))
	if maxS == minS {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - minS) / (maxS - minS)
	}
	return out
}
