// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/docchat/services/docchat/datatypes"
)

// apiClient is a thin HTTP wrapper over the docchat service API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// healthStatus matches the GET /health response body.
type healthStatus struct {
	Status    string `json:"status"`
	UptimeSec int64  `json:"uptime_sec"`
	DocsCount int    `json:"docs_count"`
}

func (c *apiClient) Health(ctx context.Context) (healthStatus, error) {
	var out healthStatus
	err := c.getJSON(ctx, "/health", &out)
	return out, err
}

func (c *apiClient) Docs(ctx context.Context) ([]string, error) {
	var out struct {
		Docs []string `json:"docs"`
	}
	if err := c.getJSON(ctx, "/api/docs", &out); err != nil {
		return nil, err
	}
	return out.Docs, nil
}

func (c *apiClient) Ask(ctx context.Context, req datatypes.AskRequest) (datatypes.AskResponse, error) {
	var out datatypes.AskResponse

	body, err := json.Marshal(req)
	if err != nil {
		return out, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ask", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return out, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// sseEvent is one server-sent event from GET /api/ask/stream.
type sseEvent struct {
	Event string
	Data  string
}

// AskStream opens the streaming endpoint and invokes onEvent for each
// event until the server closes the connection.
func (c *apiClient) AskStream(ctx context.Context, req datatypes.AskRequest, onEvent func(sseEvent)) error {
	q := url.Values{}
	q.Set("question", req.Question)
	q.Set("doc_id", req.DocID)
	if req.TopKSources != nil {
		q.Set("top_k_sources", strconv.Itoa(*req.TopKSources))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/ask/stream?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var current sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current.Event != "" || current.Data != "" {
				onEvent(current)
			}
			current = sseEvent{}
		case strings.HasPrefix(line, "event: "):
			current.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.Data = strings.TrimPrefix(line, "data: ")
		}
	}
	return scanner.Err()
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiError extracts the {"error": "..."} body the service returns on
// failures, falling back to the raw status line.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("server returned %s: %s", resp.Status, payload.Error)
	}
	return fmt.Errorf("server returned %s", resp.Status)
}
