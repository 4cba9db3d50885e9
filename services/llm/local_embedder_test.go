// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLocalEmbedder_Deterministic verifies identical input yields identical
// vectors across calls.
func TestLocalEmbedder_Deterministic(t *testing.T) {
	// Arrange
	e := NewLocalEmbedder(64)

	// Act
	a, err := e.Embed(context.Background(), []string{"refund policy window"})
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), []string{"refund policy window"})
	require.NoError(t, err)

	// Assert
	assert.Equal(t, a, b)
	assert.Len(t, a[0], 64)
}

// TestLocalEmbedder_Normalized verifies non-empty vectors have unit length.
func TestLocalEmbedder_Normalized(t *testing.T) {
	e := NewLocalEmbedder(128)
	vecs, err := e.Embed(context.Background(), []string{"the refund window is thirty days"})
	require.NoError(t, err)

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

// TestLocalEmbedder_SimilarTextCloser verifies overlapping text scores higher
// cosine than unrelated text.
func TestLocalEmbedder_SimilarTextCloser(t *testing.T) {
	// Arrange
	e := NewLocalEmbedder(256)
	vecs, err := e.Embed(context.Background(), []string{
		"what is the refund window",
		"the refund window is 30 days",
		"shipping rates for international orders",
	})
	require.NoError(t, err)

	dot := func(a, b []float32) float64 {
		var s float64
		for i := range a {
			s += float64(a[i]) * float64(b[i])
		}
		return s
	}

	// Assert
	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
}

// TestLocalEmbedder_EmptyInputs covers the empty batch and the all-symbol
// string, which must produce a zero vector without NaN.
func TestLocalEmbedder_EmptyInputs(t *testing.T) {
	e := NewLocalEmbedder(32)

	vecs, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)

	vecs, err = e.Embed(context.Background(), []string{"!!! ???"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	for _, v := range vecs[0] {
		assert.False(t, math.IsNaN(float64(v)))
		assert.Zero(t, v)
	}
}
