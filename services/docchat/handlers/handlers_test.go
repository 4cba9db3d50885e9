// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/docchat/services/docchat/agents"
	"github.com/AleutianAI/docchat/services/docchat/datatypes"
	"github.com/AleutianAI/docchat/services/docchat/handlers"
	"github.com/AleutianAI/docchat/services/docchat/ingest"
	"github.com/AleutianAI/docchat/services/docchat/retriever"
	"github.com/AleutianAI/docchat/services/docchat/routes"
	"github.com/AleutianAI/docchat/services/llm"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	datatypes.RegisterValidations()
	os.Exit(m.Run())
}

const policyDoc = `# Store Policy

## Refunds

Customers may request a refund within 30 days of purchase.

## Shipping

Orders ship within two business days.
`

// scriptedClient answers each pipeline stage from its prompt wording so
// tests control the whole conversation without a model backend.
type scriptedClient struct {
	classifyReply string
	draftReply    string
	verifyReply   string
	draftErr      error
}

func (s *scriptedClient) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	switch {
	case strings.Contains(prompt, "strict classifier"):
		return s.classifyReply, nil
	case strings.Contains(prompt, "fact checker"):
		return s.verifyReply, nil
	default:
		if s.draftErr != nil {
			return "", s.draftErr
		}
		return s.draftReply, nil
	}
}

// newTestRouter wires a full router over a temp docs directory containing
// policy.md, an in-memory cache, and the scripted model client.
func newTestRouter(t *testing.T, client llm.LLMClient) *gin.Engine {
	t.Helper()

	docsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docsDir, "policy.md"), []byte(policyDoc), 0o644))

	cache, err := ingest.OpenCache(ingest.CacheConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	processor := ingest.NewProcessor(cache, nil)
	embedder := llm.NewLocalEmbedder(128)
	registry := retriever.NewRegistry(docsDir, processor, embedder,
		retriever.NewMemoryVectorStore(), retriever.HybridConfig{}, nil)
	pipeline := agents.NewPipeline(client, agents.PipelineConfig{}, nil)

	router := gin.New()
	routes.RegisterRoutes(router, handlers.New(registry, pipeline, nil), handlers.NewRateLimiter(1000, 1000))
	return router
}

func okClient() *scriptedClient {
	return &scriptedClient{
		classifyReply: "CAN_ANSWER",
		draftReply:    "Refunds are accepted within 30 days of purchase.",
		verifyReply:   "VERIFIED: the draft matches the context.",
	}
}

func askBody(t *testing.T, question, docID string) *strings.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]any{"question": question, "doc_id": docID})
	require.NoError(t, err)
	return strings.NewReader(string(body))
}

// TestHealthHandler verifies liveness output includes the catalog size.
func TestHealthHandler(t *testing.T) {
	// Arrange
	router := newTestRouter(t, okClient())

	// Act
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status    string `json:"status"`
		UptimeSec int64  `json:"uptime_sec"`
		DocsCount int    `json:"docs_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.DocsCount)
	assert.GreaterOrEqual(t, resp.UptimeSec, int64(0))
}

// TestListDocsHandler verifies the catalog endpoint lists supported files.
func TestListDocsHandler(t *testing.T) {
	// Arrange
	router := newTestRouter(t, okClient())

	// Act
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/docs", nil))

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Docs []string `json:"docs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"policy.md"}, resp.Docs)
}

// TestAskHandler_Success runs the full ask path against a real index.
func TestAskHandler_Success(t *testing.T) {
	// Arrange
	router := newTestRouter(t, okClient())
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		askBody(t, "What is the refund window?", "policy.md"))
	req.Header.Set("Content-Type", "application/json")

	// Act
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Assert
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp datatypes.AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "What is the refund window?", resp.Question)
	assert.True(t, resp.IsRelevant)
	assert.Contains(t, resp.DraftAnswer, "30 days")
	assert.NotEmpty(t, resp.VerificationReport)
	assert.NotEmpty(t, resp.Sources)
	for _, src := range resp.Sources {
		assert.Equal(t, "policy.md", src.Metadata["doc_id"])
	}
}

// TestAskHandler_Validation rejects malformed requests before any work.
func TestAskHandler_Validation(t *testing.T) {
	router := newTestRouter(t, okClient())

	tests := []struct {
		name string
		body string
	}{
		{name: "missing question", body: `{"doc_id":"policy.md"}`},
		{name: "missing doc_id", body: `{"question":"hi"}`},
		{name: "whitespace-only question", body: `{"question":"   \t ","doc_id":"policy.md"}`},
		{name: "doc_id with path separator", body: `{"question":"hi","doc_id":"../../etc/passwd"}`},
		{name: "doc_id dot", body: `{"question":"hi","doc_id":"."}`},
		{name: "top_k above cap", body: `{"question":"hi","doc_id":"policy.md","top_k_sources":51}`},
		{name: "question too long", body: fmt.Sprintf(`{"question":%q,"doc_id":"policy.md"}`, strings.Repeat("a", 4001))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

// TestAskHandler_ExplicitZeroTopK confirms top_k_sources=0 is accepted and
// returns an empty source list with a NO_MATCH short-circuit.
func TestAskHandler_ExplicitZeroTopK(t *testing.T) {
	// Arrange
	router := newTestRouter(t, okClient())
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question":"What is the refund window?","doc_id":"policy.md","top_k_sources":0}`))
	req.Header.Set("Content-Type", "application/json")

	// Act
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Assert
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp datatypes.AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.IsRelevant)
	assert.Empty(t, resp.Sources)
	assert.Empty(t, resp.DraftAnswer)
}

// TestAskHandler_UnknownDocument maps an out-of-catalog ID to 400, the same
// status the validation layer uses for malformed identifiers.
func TestAskHandler_UnknownDocument(t *testing.T) {
	// Arrange
	router := newTestRouter(t, okClient())
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		askBody(t, "What is the refund window?", "nope.md"))
	req.Header.Set("Content-Type", "application/json")

	// Act
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Assert
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

// TestAskHandler_ModelError maps a backend failure to 502.
func TestAskHandler_ModelError(t *testing.T) {
	// Arrange
	client := okClient()
	client.draftErr = errors.New("backend unavailable")
	router := newTestRouter(t, client)
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		askBody(t, "What is the refund window?", "policy.md"))
	req.Header.Set("Content-Type", "application/json")

	// Act
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Assert
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

// parseSSE splits a recorded event-stream body into (event, data) pairs.
func parseSSE(t *testing.T, body string) [][2]string {
	t.Helper()
	var events [][2]string
	var current [2]string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current[0] != "" {
				events = append(events, current)
			}
			current = [2]string{}
		case strings.HasPrefix(line, "event: "):
			current[0] = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current[1] = strings.TrimPrefix(line, "data: ")
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

// TestAskStreamHandler_Success checks the event flow ends with a final
// payload matching the non-streaming response shape.
func TestAskStreamHandler_Success(t *testing.T) {
	// Arrange
	router := newTestRouter(t, okClient())
	req := httptest.NewRequest(http.MethodGet,
		"/api/ask/stream?question=What+is+the+refund+window%3F&doc_id=policy.md", nil)

	// Act
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	require.Equal(t, "final", last[0])
	var resp datatypes.AskResponse
	require.NoError(t, json.Unmarshal([]byte(last[1]), &resp))
	assert.Contains(t, resp.DraftAnswer, "30 days")

	var sawRunning, sawDone bool
	for _, ev := range events[:len(events)-1] {
		require.Equal(t, "agent", ev[0])
		var agent datatypes.AgentEvent
		require.NoError(t, json.Unmarshal([]byte(ev[1]), &agent))
		switch agent.Status {
		case datatypes.AgentRunning:
			sawRunning = true
		case datatypes.AgentDone:
			sawDone = true
		}
	}
	assert.True(t, sawRunning)
	assert.True(t, sawDone)
}

// TestAskStreamHandler_ModelError ends the stream with a final error
// payload instead of a result.
func TestAskStreamHandler_ModelError(t *testing.T) {
	// Arrange
	client := okClient()
	client.draftErr = errors.New("backend unavailable")
	router := newTestRouter(t, client)
	req := httptest.NewRequest(http.MethodGet,
		"/api/ask/stream?question=What+is+the+refund+window%3F&doc_id=policy.md", nil)

	// Act
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, "final", last[0])
	var failure datatypes.FinalError
	require.NoError(t, json.Unmarshal([]byte(last[1]), &failure))
	assert.NotEmpty(t, failure.Error)
}

// TestAskStreamHandler_UnknownDocument fails with plain JSON before any
// stream is opened.
func TestAskStreamHandler_UnknownDocument(t *testing.T) {
	// Arrange
	router := newTestRouter(t, okClient())
	req := httptest.NewRequest(http.MethodGet,
		"/api/ask/stream?question=hi&doc_id=nope.md", nil)

	// Act
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Assert
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEqual(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

// TestRateLimiter_Middleware rejects requests past the burst with 429.
func TestRateLimiter_Middleware(t *testing.T) {
	// Arrange
	limiter := handlers.NewRateLimiter(0.0001, 2)
	router := gin.New()
	router.GET("/ping", limiter.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Act / Assert
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
