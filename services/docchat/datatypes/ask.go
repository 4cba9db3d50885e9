// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/docchat/pkg/validation"
)

// DefaultTopKSources is the number of source chunks returned with an answer
// when the request does not specify top_k_sources.
const DefaultTopKSources = 5

// AskRequest is the payload for POST /api/ask and the query parameters of
// GET /api/ask/stream.
type AskRequest struct {
	Question    string `json:"question" form:"question" binding:"required,min=1,max=4000"`
	DocID       string `json:"doc_id" form:"doc_id" binding:"required,docid"`
	TopKSources *int   `json:"top_k_sources" form:"top_k_sources" binding:"omitempty,min=0,max=50"`
}

// ErrBlankQuestion is returned by Normalize when the question contains only
// whitespace.
var ErrBlankQuestion = errors.New("question must not be blank")

// Normalize strips surrounding whitespace from the free-text fields after
// binding. The min-length binding check runs before trimming, so a question
// of pure whitespace slips past it; Normalize catches that case.
func (r *AskRequest) Normalize() error {
	r.Question = strings.TrimSpace(r.Question)
	r.DocID = strings.TrimSpace(r.DocID)
	if r.Question == "" {
		return ErrBlankQuestion
	}
	return nil
}

// TopK resolves the effective source count, applying the default when the
// field was omitted.
func (r AskRequest) TopK() int {
	if r.TopKSources == nil {
		return DefaultTopKSources
	}
	return *r.TopKSources
}

// SourceItem is one retrieved chunk attached to an answer.
type SourceItem struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// AskResponse is the terminal result of the answer pipeline, returned as the
// POST /api/ask body and as the "final" SSE event payload.
//
// IsRelevant is false only when the relevance classifier returned NO_MATCH;
// partial coverage still counts as relevant.
type AskResponse struct {
	Question           string       `json:"question"`
	IsRelevant         bool         `json:"is_relevant"`
	DraftAnswer        string       `json:"draft_answer"`
	VerificationReport string       `json:"verification_report"`
	Sources            []SourceItem `json:"sources"`
}

// AgentEvent is the payload of the SSE "agent" event emitted while the
// pipeline runs. Status is one of "running", "done", "error".
//
//   - running: Summary describes the step being started. Ms and Preview unset.
//   - done: Ms holds the wall-clock step duration in milliseconds; Preview,
//     when present, holds a truncated draft of the step output.
//   - error: Summary carries the failure description, Ms the elapsed time.
type AgentEvent struct {
	Agent   string `json:"agent"`
	Status  string `json:"status"`
	Summary string `json:"summary,omitempty"`
	Ms      int64  `json:"ms,omitempty"`
	Preview string `json:"preview,omitempty"`
}

// Agent event statuses.
const (
	AgentRunning = "running"
	AgentDone    = "done"
	AgentError   = "error"
)

// FinalError is the payload of the terminal "final" SSE event when the
// pipeline failed after streaming had begun.
type FinalError struct {
	Error string `json:"error"`
}

// validDocID rejects identifiers that could escape the docs directory.
// Doc IDs are bare file names; anything with a path separator or a
// parent-directory reference is refused before it reaches the filesystem.
func validDocID(fl validator.FieldLevel) bool {
	return validation.ValidateDocID(fl.Field().String()) == nil
}

// RegisterValidations installs the custom binding validators used by the
// request types above. Call once at router construction.
func RegisterValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("docid", validDocID)
	}
}
