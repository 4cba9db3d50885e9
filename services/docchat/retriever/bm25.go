// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retriever builds and serves per-document hybrid indexes: a BM25
// lexical ranker fused with a vector-similarity ranker, plus the registry
// that keeps one fresh index per catalog document.
package retriever

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// bm25Index is an Okapi BM25 ranker over a fixed chunk set. Built once,
// read-only afterwards; safe for concurrent queries.
type bm25Index struct {
	docTokens [][]string
	docFreq   map[string]int
	termFreq  []map[string]int
	avgDocLen float64
}

// lexicalHit is one BM25 result: the chunk's position in the indexed set,
// its score, and its rank in the BM25 ordering (0 = best).
type lexicalHit struct {
	docIdx int
	score  float64
	rank   int
}

func newBM25Index(texts []string) *bm25Index {
	idx := &bm25Index{
		docTokens: make([][]string, len(texts)),
		docFreq:   make(map[string]int),
		termFreq:  make([]map[string]int, len(texts)),
	}
	var totalLen int
	for i, text := range texts {
		tokens := tokenize(text)
		idx.docTokens[i] = tokens
		totalLen += len(tokens)

		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		idx.termFreq[i] = tf
		for tok := range tf {
			idx.docFreq[tok]++
		}
	}
	if len(texts) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(texts))
	}
	return idx
}

// search scores every document against the query and returns the top k with
// positive scores, best first. Ties in score are broken by document index so
// the ordering is reproducible.
func (idx *bm25Index) search(query string, k int) []lexicalHit {
	if k <= 0 || len(idx.docTokens) == 0 {
		return nil
	}
	queryTokens := tokenize(query)
	n := float64(len(idx.docTokens))

	hits := make([]lexicalHit, 0, len(idx.docTokens))
	for i := range idx.docTokens {
		var score float64
		docLen := float64(len(idx.docTokens[i]))
		for _, tok := range queryTokens {
			tf := float64(idx.termFreq[i][tok])
			if tf == 0 {
				continue
			}
			df := float64(idx.docFreq[tok])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1)
			score += idf * (tf * (bm25K1 + 1)) /
				(tf + bm25K1*(1-bm25B+bm25B*docLen/idx.avgDocLen))
		}
		if score > 0 {
			hits = append(hits, lexicalHit{docIdx: i, score: score})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].docIdx < hits[b].docIdx
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	for i := range hits {
		hits[i].rank = i
	}
	return hits
}

// tokenize lowercases and splits on any non-letter, non-digit rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
