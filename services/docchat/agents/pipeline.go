// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/docchat/services/docchat/datatypes"
	"github.com/AleutianAI/docchat/services/docchat/observability"
	"github.com/AleutianAI/docchat/services/llm"
)

var tracer = otel.Tracer("docchat.agents")

// RelevanceLabel describes how well retrieved context covers a question.
type RelevanceLabel string

const (
	CanAnswer RelevanceLabel = "CAN_ANSWER"
	Partial   RelevanceLabel = "PARTIAL"
	NoMatch   RelevanceLabel = "NO_MATCH"
)

// IsRelevant reports whether the label counts as a topical match. PARTIAL
// coverage is still a match.
func (l RelevanceLabel) IsRelevant() bool {
	return l == CanAnswer || l == Partial
}

// PipelineState is the pipeline's result record. Each stage writes only its
// own fields; the record is terminal once verification completes or a stage
// fails.
type PipelineState struct {
	Question           string
	Relevance          RelevanceLabel
	Documents          []datatypes.Chunk
	DraftAnswer        string
	VerificationReport string
}

// Retriever is the slice of the hybrid index the pipeline needs.
type Retriever interface {
	Query(ctx context.Context, question string, k int) ([]datatypes.Chunk, error)
}

// PipelineConfig carries the pipeline's tunables.
type PipelineConfig struct {
	// RelevanceK bounds how many retrieved chunks feed the relevance
	// classifier. Defaults to 3.
	RelevanceK int
	// ModelCallTimeout bounds each individual model call. Defaults to 60s.
	ModelCallTimeout time.Duration
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.RelevanceK <= 0 {
		c.RelevanceK = 3
	}
	if c.ModelCallTimeout <= 0 {
		c.ModelCallTimeout = 60 * time.Second
	}
	return c
}

// Pipeline sequences relevance classification, answer drafting, and
// verification over retrieved chunks.
//
// # Description
//
// Stages run in a strict linear order with no cycles. An empty retrieval
// result short-circuits the whole run: relevance is forced to NO_MATCH and
// no model call is made. A classification failure (model error or a label
// outside the three known values) degrades to NO_MATCH rather than failing
// the run; drafting runs regardless of the relevance label, and a drafting
// or verification failure is fatal for the request.
//
// # Thread Safety
//
// Safe for concurrent use; each run owns its own state.
type Pipeline struct {
	client llm.LLMClient
	cfg    PipelineConfig
	logger *slog.Logger
}

// NewPipeline builds a Pipeline over the given model client.
func NewPipeline(client llm.LLMClient, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{client: client, cfg: cfg.withDefaults(), logger: logger}
}

// Run executes the full pipeline and returns the terminal state.
func (p *Pipeline) Run(ctx context.Context, question string, index Retriever, topK int) (*PipelineState, error) {
	return p.run(ctx, question, index, topK, nil)
}

// RunStream executes the pipeline, announcing each stage through emit.
// Emit is called from the pipeline goroutine; the caller serializes writes.
func (p *Pipeline) RunStream(ctx context.Context, question string, index Retriever, topK int,
	emit func(datatypes.AgentEvent)) (*PipelineState, error) {
	return p.run(ctx, question, index, topK, emit)
}

func (p *Pipeline) run(ctx context.Context, question string, index Retriever, topK int,
	emit func(datatypes.AgentEvent)) (*PipelineState, error) {

	ctx, span := tracer.Start(ctx, "Pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.Int("pipeline.top_k", topK))

	notify := func(ev datatypes.AgentEvent) {
		if emit != nil {
			emit(ev)
		}
	}

	state := &PipelineState{Question: question}

	// Retrieval feeds classification, so the relevance stage opens first
	// even though the index query happens inside it. Every stage that
	// opens with a running event is closed with a done or error event.
	relevanceStart := time.Now()
	notify(datatypes.AgentEvent{Agent: "relevance", Status: datatypes.AgentRunning, Summary: "Classifying question relevance"})
	notify(datatypes.AgentEvent{Agent: "retrieval", Status: datatypes.AgentRunning, Summary: "Gathering sources"})

	retrievalStart := time.Now()
	docs, err := index.Query(ctx, question, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		notify(datatypes.AgentEvent{
			Agent:   "relevance",
			Status:  datatypes.AgentError,
			Summary: "Classification skipped",
			Ms:      time.Since(relevanceStart).Milliseconds(),
		})
		notify(datatypes.AgentEvent{
			Agent:   "retrieval",
			Status:  datatypes.AgentError,
			Summary: "Retrieval failed",
			Ms:      time.Since(retrievalStart).Milliseconds(),
		})
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	state.Documents = docs

	if len(docs) == 0 {
		// Nothing retrieved: no model call is worth making.
		state.Relevance = NoMatch
		p.logger.Info("Empty retrieval, short-circuiting to NO_MATCH", "question_len", len(question))
		notify(datatypes.AgentEvent{
			Agent:   "relevance",
			Status:  datatypes.AgentDone,
			Summary: string(NoMatch),
			Ms:      time.Since(relevanceStart).Milliseconds(),
		})
		notify(datatypes.AgentEvent{
			Agent:   "retrieval",
			Status:  datatypes.AgentDone,
			Summary: "Retrieved 0 sources",
			Ms:      time.Since(retrievalStart).Milliseconds(),
		})
		return state, nil
	}

	observability.PipelineStageDuration.WithLabelValues("retrieval").Observe(time.Since(retrievalStart).Seconds())

	state.Relevance = p.classify(ctx, question, docs)
	span.SetAttributes(attribute.String("pipeline.relevance", string(state.Relevance)))
	observability.PipelineStageDuration.WithLabelValues("relevance").Observe(time.Since(relevanceStart).Seconds())
	notify(datatypes.AgentEvent{
		Agent:   "relevance",
		Status:  datatypes.AgentDone,
		Summary: string(state.Relevance),
		Ms:      time.Since(relevanceStart).Milliseconds(),
	})
	notify(datatypes.AgentEvent{
		Agent:   "retrieval",
		Status:  datatypes.AgentDone,
		Summary: fmt.Sprintf("Retrieved %d sources", len(docs)),
		Ms:      time.Since(retrievalStart).Milliseconds(),
	})

	// Drafting runs regardless of the relevance label; partial matches
	// still get an answer attempt.
	researchStart := time.Now()
	notify(datatypes.AgentEvent{Agent: "research", Status: datatypes.AgentRunning, Summary: "Drafting answer from sources"})
	draft, err := p.draft(ctx, question, docs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		notify(datatypes.AgentEvent{
			Agent:   "research",
			Status:  datatypes.AgentError,
			Summary: "Drafting failed",
			Ms:      time.Since(researchStart).Milliseconds(),
		})
		return nil, err
	}
	state.DraftAnswer = draft
	observability.PipelineStageDuration.WithLabelValues("research").Observe(time.Since(researchStart).Seconds())

	verifyStart := time.Now()
	notify(datatypes.AgentEvent{Agent: "verify", Status: datatypes.AgentRunning, Summary: "Verifying draft against sources"})
	report, err := p.verify(ctx, draft, docs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		notify(datatypes.AgentEvent{
			Agent:   "research",
			Status:  datatypes.AgentDone,
			Summary: "Draft complete",
			Ms:      time.Since(researchStart).Milliseconds(),
			Preview: previewOf(draft),
		})
		notify(datatypes.AgentEvent{
			Agent:   "verify",
			Status:  datatypes.AgentError,
			Summary: "Verification failed",
			Ms:      time.Since(verifyStart).Milliseconds(),
		})
		return nil, err
	}
	state.VerificationReport = report
	observability.PipelineStageDuration.WithLabelValues("verify").Observe(time.Since(verifyStart).Seconds())

	notify(datatypes.AgentEvent{
		Agent:   "research",
		Status:  datatypes.AgentDone,
		Summary: "Draft complete",
		Ms:      time.Since(researchStart).Milliseconds(),
		Preview: previewOf(draft),
	})
	notify(datatypes.AgentEvent{
		Agent:   "verify",
		Status:  datatypes.AgentDone,
		Summary: "Verification complete",
		Ms:      time.Since(verifyStart).Milliseconds(),
	})
	return state, nil
}

// classify maps any failure, and any response outside the three labels, to
// NO_MATCH. Malformed model output must never abort the pipeline.
func (p *Pipeline) classify(ctx context.Context, question string, docs []datatypes.Chunk) RelevanceLabel {
	k := p.cfg.RelevanceK
	if k > len(docs) {
		k = len(docs)
	}
	resp, err := p.generate(ctx, relevancePrompt(question, docs[:k]))
	if err != nil {
		p.logger.Warn("Relevance classification failed, defaulting to NO_MATCH", "error", err)
		return NoMatch
	}
	label := RelevanceLabel(strings.ToUpper(strings.Trim(strings.TrimSpace(resp), ".\"'`")))
	switch label {
	case CanAnswer, Partial, NoMatch:
		return label
	default:
		p.logger.Warn("Relevance classifier returned unknown label, defaulting to NO_MATCH", "label", string(label))
		return NoMatch
	}
}

func (p *Pipeline) draft(ctx context.Context, question string, docs []datatypes.Chunk) (string, error) {
	resp, err := p.generate(ctx, draftPrompt(question, docs))
	if err != nil {
		return "", fmt.Errorf("%w: drafting: %v", datatypes.ErrModelError, err)
	}
	return strings.TrimSpace(resp), nil
}

func (p *Pipeline) verify(ctx context.Context, draft string, docs []datatypes.Chunk) (string, error) {
	resp, err := p.generate(ctx, verifyPrompt(draft, docs))
	if err != nil {
		return "", fmt.Errorf("%w: verification: %v", datatypes.ErrModelError, err)
	}
	return strings.TrimSpace(resp), nil
}

// generate wraps every model call in the configured timeout.
func (p *Pipeline) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ModelCallTimeout)
	defer cancel()
	return p.client.Generate(ctx, prompt, llm.GenerationParams{})
}

const previewLimit = 220

// previewOf truncates a draft for the streaming preview field.
func previewOf(text string) string {
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLimit]) + "…"
}
