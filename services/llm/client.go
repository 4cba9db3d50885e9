// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides backend-agnostic clients for text generation and
// embedding. Backends are selected by name ("openai", "ollama", "anthropic",
// "llamacpp") and share the GenerationParams knob set.
package llm

import (
	"context"
	"fmt"
	"strings"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Embedder converts text into dense vectors for similarity search.
// Implementations must return vectors of a fixed dimension for a given model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NewClient constructs an LLMClient for the given backend name.
// Unknown names are an error rather than a silent default so that a typo in
// configuration fails at startup, not on the first request.
func NewClient(backendType string) (LLMClient, error) {
	switch strings.ToLower(backendType) {
	case "openai":
		return NewOpenAIClient()
	case "ollama":
		return NewOllamaClient()
	case "anthropic":
		return NewAnthropicClient()
	case "llamacpp":
		return NewLlamaCppClient()
	default:
		return nil, fmt.Errorf("unsupported LLM backend type: %q", backendType)
	}
}

// NewEmbedderClient constructs an Embedder for the given backend name.
// The "local" backend is a deterministic in-process embedder that needs no
// external service; it is the fallback when no model host is configured.
func NewEmbedderClient(backendType string) (Embedder, error) {
	switch strings.ToLower(backendType) {
	case "openai":
		return NewOpenAIEmbedder()
	case "ollama":
		return NewOllamaEmbedder()
	case "local":
		return NewLocalEmbedder(defaultLocalEmbedderDim), nil
	default:
		return nil, fmt.Errorf("unsupported embedder backend type: %q", backendType)
	}
}
