// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command docchat starts the document question-answering HTTP server.
//
// This is the main entry point for the containerized docchat service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - DOCCHAT_PORT: HTTP server port (default: 12230)
//   - DOCCHAT_DOCS_DIR: directory of answerable documents (default: ./docs)
//   - DOCCHAT_CACHE_DIR: chunk cache directory (default: ./cache)
//   - DOCCHAT_CACHE_TTL_DAYS: chunk cache record lifetime (default: 7)
//   - LLM_BACKEND_TYPE: LLM provider - openai, ollama, anthropic, llamacpp (default: ollama)
//   - EMBEDDER_BACKEND_TYPE: embedding provider - openai, ollama, local (default: local)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional; in-memory store when unset)
//   - DOCCHAT_CONVERTER_URL: document conversion service for PDF/DOCX (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//
// # Usage
//
//	# Build
//	go build -o docchat ./cmd/docchat
//
//	# Run
//	./docchat
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/docchat/services/docchat"
)

func main() {
	// JSON logs for collectors, text when a human is watching.
	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, nil)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(handler))

	// Build configuration from environment variables
	cfg := docchat.Config{
		Port:            getEnvInt("DOCCHAT_PORT", 12230),
		DocsDir:         getEnvString("DOCCHAT_DOCS_DIR", "./docs"),
		CacheDir:        getEnvString("DOCCHAT_CACHE_DIR", "./cache"),
		CacheTTL:        time.Duration(getEnvInt("DOCCHAT_CACHE_TTL_DAYS", 7)) * 24 * time.Hour,
		LLMBackend:      getEnvString("LLM_BACKEND_TYPE", "ollama"),
		EmbedderBackend: getEnvString("EMBEDDER_BACKEND_TYPE", "local"),
		ConverterURL:    os.Getenv("DOCCHAT_CONVERTER_URL"),
		WeaviateURL:     os.Getenv("WEAVIATE_SERVICE_URL"),
		OTelEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		WatchDocs:       true,
	}

	slog.Info("Starting docchat",
		"port", cfg.Port,
		"docs_dir", cfg.DocsDir,
		"llm_backend", cfg.LLMBackend,
		"embedder_backend", cfg.EmbedderBackend,
		"weaviate_url", cfg.WeaviateURL,
	)

	svc, err := docchat.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create docchat service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Docchat error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
