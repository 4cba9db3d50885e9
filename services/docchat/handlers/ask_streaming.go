// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/docchat/services/docchat/agents"
	"github.com/AleutianAI/docchat/services/docchat/datatypes"
	"github.com/AleutianAI/docchat/services/docchat/observability"
)

// AskStreamHandler answers a question while streaming per-stage progress as
// named SSE events.
//
// # Description
//
// Every pipeline stage is announced with an `agent` event (running, then
// done or error). The stream ends with a single `final` event carrying
// either the same payload shape as POST /api/ask or `{error}` when the
// pipeline failed after streaming began. A retrieval failure terminates the
// stream after its error event without a final payload. Failures before the
// stream starts (validation, unknown document) are plain JSON errors.
//
// A client disconnect does not cancel the in-flight pipeline run; the run
// finishes on a detached context and its result is discarded.
func (h *Handlers) AskStreamHandler(c *gin.Context) {
	var req datatypes.AskRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Normalize(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.Logger.Info("Received streaming ask request", "doc_id", req.DocID, "top_k", req.TopK())

	index, err := h.Registry.Resolve(c.Request.Context(), req.DocID)
	if err != nil {
		h.Logger.Warn("Failed to resolve document", "doc_id", req.DocID, "error", err)
		observability.PipelineRuns.WithLabelValues(observability.OutcomeError).Inc()
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	writer, err := NewSSEWriter(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	observability.ActiveStreams.Inc()
	defer observability.ActiveStreams.Dec()

	type runResult struct {
		state *agents.PipelineState
		err   error
	}
	events := make(chan datatypes.AgentEvent, 32)
	done := make(chan runResult, 1)

	// Detached context: the run outlives a client disconnect and its
	// result is simply thrown away.
	runCtx := context.WithoutCancel(c.Request.Context())
	go func() {
		defer close(events)
		state, runErr := h.Pipeline.RunStream(runCtx, req.Question, index, req.TopK(),
			func(ev datatypes.AgentEvent) { events <- ev })
		done <- runResult{state: state, err: runErr}
	}()

	// drain keeps the pipeline goroutine from blocking on its event
	// channel once we stop reading.
	drain := func() {
		go func() {
			for range events {
			}
		}()
	}

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			h.Logger.Info("Client disconnected mid-stream", "doc_id", req.DocID)
			drain()
			return
		case ev, ok := <-events:
			if !ok {
				res := <-done
				h.finishStream(writer, req.DocID, res.state, res.err)
				return
			}
			if err := writer.WriteEvent("agent", ev); err != nil {
				h.Logger.Warn("Failed to write stream event", "doc_id", req.DocID, "error", err)
				drain()
				return
			}
		}
	}
}

func (h *Handlers) finishStream(writer *SSEWriter, docID string, state *agents.PipelineState, runErr error) {
	switch {
	case runErr == nil:
		if state.Relevance == agents.NoMatch {
			observability.PipelineRuns.WithLabelValues(observability.OutcomeNoMatch).Inc()
		} else {
			observability.PipelineRuns.WithLabelValues(observability.OutcomeOK).Inc()
		}
		if err := writer.WriteEvent("final", responseFrom(state)); err != nil {
			h.Logger.Warn("Failed to write final stream event", "doc_id", docID, "error", err)
		}
	case errors.Is(runErr, datatypes.ErrModelError):
		// The stream already carried the stage error; the final event
		// tells the client no result is coming.
		observability.PipelineRuns.WithLabelValues(observability.OutcomeError).Inc()
		if err := writer.WriteEvent("final", datatypes.FinalError{Error: runErr.Error()}); err != nil {
			h.Logger.Warn("Failed to write final stream event", "doc_id", docID, "error", err)
		}
	default:
		// Retrieval failure: its error event was the last thing sent and
		// the stream ends without a final payload.
		observability.PipelineRuns.WithLabelValues(observability.OutcomeError).Inc()
		h.Logger.Error("Streaming pipeline failed", "doc_id", docID, "error", runErr)
	}
}
