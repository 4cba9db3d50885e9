// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package e2e

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"
)

const askTimeout = 3 * time.Minute

func httpClient() *http.Client {
	return &http.Client{Timeout: askTimeout}
}

// TestHealth verifies the server is up and serving at least one document.
func TestHealth(t *testing.T) {
	resp, err := httpClient().Get(serverURL + "/health")
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Health returned %d", resp.StatusCode)
	}

	var body struct {
		Status    string `json:"status"`
		DocsCount int    `json:"docs_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Health decode failed: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("Expected status ok, got %q", body.Status)
	}
	if body.DocsCount < 1 {
		t.Errorf("Expected at least one document, got %d", body.DocsCount)
	}
}

// TestAskRefundWindow runs the full loop: resolve policy.md, retrieve,
// draft, verify. The canonical fixture promises a 30-day refund window
// and the answer must repeat it.
func TestAskRefundWindow(t *testing.T) {
	payload := `{"question":"What is the refund window?","doc_id":"policy.md"}`
	resp, err := httpClient().Post(serverURL+"/api/ask", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("Ask request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Ask returned %d", resp.StatusCode)
	}

	var body struct {
		IsRelevant  bool   `json:"is_relevant"`
		DraftAnswer string `json:"draft_answer"`
		Sources     []any  `json:"sources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Ask decode failed: %v", err)
	}

	if !body.IsRelevant {
		t.Errorf("Expected the refund question to be answerable from policy.md")
	}
	if !strings.Contains(body.DraftAnswer, "30") {
		t.Errorf("Answer does not mention the 30-day window.\nGot: %s", body.DraftAnswer)
	}
	if len(body.Sources) == 0 {
		t.Errorf("Answer carries no sources")
	}
}

// TestAskUnknownDocument expects a 400 for an out-of-catalog identifier.
func TestAskUnknownDocument(t *testing.T) {
	payload := `{"question":"Anything?","doc_id":"no_such_file.md"}`
	resp, err := httpClient().Post(serverURL+"/api/ask", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("Ask request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

// TestAskStream walks the SSE endpoint and checks the event flow ends
// with a final payload.
func TestAskStream(t *testing.T) {
	q := url.Values{}
	q.Set("question", "What is the refund window?")
	q.Set("doc_id", "policy.md")

	resp, err := httpClient().Get(serverURL + "/api/ask/stream?" + q.Encode())
	if err != nil {
		t.Fatalf("Stream request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Stream returned %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Expected text/event-stream, got %q", ct)
	}

	var agentEvents int
	var sawFinal bool
	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case line == "":
			switch event {
			case "agent":
				agentEvents++
			case "final":
				sawFinal = true
			}
			event = ""
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Stream read failed: %v", err)
	}

	if agentEvents < 2 {
		t.Errorf("Expected multiple agent events, got %d", agentEvents)
	}
	if !sawFinal {
		t.Errorf("Stream ended without a final event")
	}
}
