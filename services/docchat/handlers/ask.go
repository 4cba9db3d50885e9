// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/docchat/services/docchat/agents"
	"github.com/AleutianAI/docchat/services/docchat/datatypes"
	"github.com/AleutianAI/docchat/services/docchat/observability"
)

var tracer = otel.Tracer("docchat.handlers")

// AskHandler answers a question against one catalog document.
//
// Resolves (or builds) the document's index, runs the answer pipeline, and
// returns the terminal result. Validation failures are 400; unknown or
// vanished documents are 400; model failures surface as 502.
func (h *Handlers) AskHandler(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "AskHandler")
	defer span.End()

	var req datatypes.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Normalize(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(
		attribute.String("ask.doc_id", req.DocID),
		attribute.Int("ask.top_k", req.TopK()),
	)
	h.Logger.Info("Received ask request", "doc_id", req.DocID, "top_k", req.TopK())

	index, err := h.Registry.Resolve(ctx, req.DocID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.Logger.Warn("Failed to resolve document", "doc_id", req.DocID, "error", err)
		observability.PipelineRuns.WithLabelValues(observability.OutcomeError).Inc()
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	state, err := h.Pipeline.Run(ctx, req.Question, index, req.TopK())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.Logger.Error("Answer pipeline failed", "doc_id", req.DocID, "error", err)
		observability.PipelineRuns.WithLabelValues(observability.OutcomeError).Inc()
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	if state.Relevance == agents.NoMatch {
		observability.PipelineRuns.WithLabelValues(observability.OutcomeNoMatch).Inc()
	} else {
		observability.PipelineRuns.WithLabelValues(observability.OutcomeOK).Inc()
	}
	c.JSON(http.StatusOK, responseFrom(state))
}
