// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/docchat/services/docchat/agents"
	"github.com/AleutianAI/docchat/services/docchat/datatypes"
	"github.com/AleutianAI/docchat/services/docchat/retriever"
)

// Handlers bundles the dependencies the HTTP endpoints need.
type Handlers struct {
	Registry  *retriever.Registry
	Pipeline  *agents.Pipeline
	Logger    *slog.Logger
	StartTime time.Time
}

func New(registry *retriever.Registry, pipeline *agents.Pipeline, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		Registry:  registry,
		Pipeline:  pipeline,
		Logger:    logger,
		StartTime: time.Now(),
	}
}

// statusOf maps pipeline and registry errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, datatypes.ErrUnknownDocument), errors.Is(err, datatypes.ErrSourceMissing):
		return http.StatusBadRequest
	case errors.Is(err, datatypes.ErrSizeLimitExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, datatypes.ErrModelError):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// responseFrom converts a terminal pipeline state into the API result shape.
func responseFrom(state *agents.PipelineState) datatypes.AskResponse {
	sources := make([]datatypes.SourceItem, len(state.Documents))
	for i, c := range state.Documents {
		sources[i] = datatypes.SourceItem{Content: c.Text, Metadata: c.Metadata}
	}
	return datatypes.AskResponse{
		Question:           state.Question,
		IsRelevant:         state.Relevance.IsRelevant(),
		DraftAnswer:        state.DraftAnswer,
		VerificationReport: state.VerificationReport,
		Sources:            sources,
	}
}
