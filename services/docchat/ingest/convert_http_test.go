// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/docchat/services/docchat/datatypes"
)

func TestHTTPConverter_Supports(t *testing.T) {
	conv := NewHTTPConverter("http://localhost:9100")

	assert.True(t, conv.Supports(".pdf"))
	assert.True(t, conv.Supports(".docx"))
	assert.False(t, conv.Supports(".md"))
	assert.False(t, conv.Supports(".exe"))
}

// TestHTTPConverter_ToMarkdown round-trips a file through a stub
// conversion service and checks the multipart upload shape.
func TestHTTPConverter_ToMarkdown(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	path := writeFile(t, dir, "manual.pdf", "%PDF-1.4 fake bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/convert", r.URL.Path)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "manual.pdf", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"markdown":"# Manual\n\nConverted content."}`))
	}))
	defer srv.Close()
	conv := NewHTTPConverter(srv.URL)

	// Act
	md, err := conv.ToMarkdown(context.Background(), path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "# Manual\n\nConverted content.", md)
}

func TestHTTPConverter_ServiceError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.docx", "not really a docx")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unsupported encoding", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()
	conv := NewHTTPConverter(srv.URL)

	_, err := conv.ToMarkdown(context.Background(), path)

	require.Error(t, err)
	assert.ErrorIs(t, err, datatypes.ErrConversionError)
}

func TestHTTPConverter_ServiceUnreachable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.pdf", "bytes")
	conv := NewHTTPConverter("http://127.0.0.1:1")

	_, err := conv.ToMarkdown(context.Background(), path)

	require.Error(t, err)
	assert.ErrorIs(t, err, datatypes.ErrConversionError)
}
