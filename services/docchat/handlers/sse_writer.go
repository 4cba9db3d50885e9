// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP endpoints of the docchat service.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SSEWriter serializes server-sent events onto one HTTP response.
//
// # Description
//
// Wraps the gin response writer with named-event framing: each call writes
// an `event:` line, a `data:` line holding the JSON payload, a blank line,
// and flushes so the client sees the event immediately. All writes for one
// response must come from a single goroutine; the writer does no locking.
//
// # Limitations
//
//   - Payloads are single-line JSON; multi-line data framing is not needed
//     here and not implemented.
//   - Write errors after the client disconnects are reported but cannot be
//     recovered; the caller should stop streaming.
type SSEWriter struct {
	ctx     *gin.Context
	flusher http.Flusher
}

// NewSSEWriter prepares the response for event streaming and returns the
// writer. Returns an error when the underlying connection cannot flush,
// which means streaming is impossible on this transport.
func NewSSEWriter(c *gin.Context) (*SSEWriter, error) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{ctx: c, flusher: flusher}, nil
}

// WriteEvent sends one named event with a JSON payload and flushes.
func (w *SSEWriter) WriteEvent(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w.ctx.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	w.flusher.Flush()
	return nil
}
