// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package docchat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestApplyConfigDefaults verifies every zero-value field gets a sensible
// default while explicit values survive untouched.
func TestApplyConfigDefaults(t *testing.T) {
	// Act
	cfg := applyConfigDefaults(Config{})

	// Assert
	assert.Equal(t, 12230, cfg.Port)
	assert.Equal(t, "./docs", cfg.DocsDir)
	assert.Equal(t, "./cache", cfg.CacheDir)
	assert.Equal(t, 7*24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "ollama", cfg.LLMBackend)
	assert.Equal(t, "local", cfg.EmbedderBackend)
	assert.InDelta(t, 0.4, cfg.LexicalWeight, 1e-9)
	assert.InDelta(t, 0.6, cfg.VectorWeight, 1e-9)
	assert.Equal(t, 3, cfg.RelevanceK)
	assert.Equal(t, 60*time.Second, cfg.ModelCallTimeout)
	assert.Equal(t, int64(50<<20), cfg.MaxIngestBytes)
	assert.InDelta(t, 2.0, cfg.RateLimitRPS, 1e-9)
	assert.Equal(t, 5, cfg.RateLimitBurst)
}

// TestApplyConfigDefaults_KeepsExplicitValues confirms defaults never
// override explicit configuration.
func TestApplyConfigDefaults_KeepsExplicitValues(t *testing.T) {
	// Arrange
	in := Config{
		Port:          9001,
		DocsDir:       "/srv/docs",
		LLMBackend:    "openai",
		LexicalWeight: 0.7,
		VectorWeight:  0.3,
		RelevanceK:    5,
	}

	// Act
	cfg := applyConfigDefaults(in)

	// Assert
	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, "/srv/docs", cfg.DocsDir)
	assert.Equal(t, "openai", cfg.LLMBackend)
	assert.InDelta(t, 0.7, cfg.LexicalWeight, 1e-9)
	assert.InDelta(t, 0.3, cfg.VectorWeight, 1e-9)
	assert.Equal(t, 5, cfg.RelevanceK)
}

// newTestService constructs a fully in-memory service over a temp docs
// directory. No external backends are contacted during construction: the
// ollama client only records its base URL, so a placeholder keeps the
// default backend constructible without a server.
func newTestService(t *testing.T) Service {
	t.Helper()

	t.Setenv("OLLAMA_BASE_URL", "http://127.0.0.1:11434")
	docsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docsDir, "guide.md"),
		[]byte("# Guide\n\nSome text.\n"), 0o644))

	svc, err := New(Config{
		DocsDir:       docsDir,
		CacheInMemory: true,
		WatchDocs:     false,
		GinMode:       gin.TestMode,
		RateLimitRPS:  -1,
	})
	require.NoError(t, err)
	return svc
}

// TestNew_RouterServesHealth smoke-tests the assembled router.
func TestNew_RouterServesHealth(t *testing.T) {
	// Arrange
	svc := newTestService(t)

	// Act
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status    string `json:"status"`
		DocsCount int    `json:"docs_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.DocsCount)
}

// TestNew_RouterRegistersAllRoutes checks the complete endpoint surface.
func TestNew_RouterRegistersAllRoutes(t *testing.T) {
	// Arrange
	svc := newTestService(t)

	type route struct{ method, path string }
	want := []route{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/metrics"},
		{http.MethodGet, "/api/docs"},
		{http.MethodPost, "/api/ask"},
		{http.MethodGet, "/api/ask/stream"},
	}

	// Act
	registered := make(map[route]bool)
	for _, r := range svc.Router().Routes() {
		registered[route{r.Method, r.Path}] = true
	}

	// Assert
	for _, r := range want {
		assert.True(t, registered[r], "missing route %s %s", r.method, r.path)
	}
}

// TestNew_InvalidBackendFails surfaces a config error instead of a
// half-built service.
func TestNew_InvalidBackendFails(t *testing.T) {
	// Act
	_, err := New(Config{
		DocsDir:       t.TempDir(),
		CacheInMemory: true,
		WatchDocs:     false,
		GinMode:       gin.TestMode,
		LLMBackend:    "mainframe",
	})

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mainframe")
}
