// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultLocalEmbedderDim = 256

// LocalEmbedder is a deterministic in-process embedder built on hashed
// bag-of-words features. It exists so the service can run with no model
// host at all: vectors from it capture lexical overlap, not semantics,
// which is enough for the hybrid ranker to function in lightweight mode.
//
// # Thread Safety
//
// Stateless after construction; safe for concurrent use.
type LocalEmbedder struct {
	dim int
}

func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = defaultLocalEmbedderDim
	}
	return &LocalEmbedder{dim: dim}
}

// Embed implements the Embedder interface. Output vectors are L2-normalized
// so downstream cosine similarity reduces to a dot product.
func (l *LocalEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = l.embedOne(text)
	}
	return out, nil
}

func (l *LocalEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, l.dim)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		// Low bits pick the bucket, one high bit picks the sign so
		// unrelated tokens cancel rather than accumulate.
		idx := int(sum % uint32(l.dim))
		if sum&0x80000000 != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

// tokenize lowercases and splits on any non-letter, non-digit rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
