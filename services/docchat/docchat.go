// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package docchat provides the document question-answering service.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the chunk cache, the collection registry with
// its hybrid indexes, the answer pipeline, LLM and embedding clients, and
// observability infrastructure.
//
// # Usage
//
//	cfg := docchat.Config{Port: 12230, DocsDir: "./docs"}
//	svc, err := docchat.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package docchat

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/docchat/services/docchat/agents"
	"github.com/AleutianAI/docchat/services/docchat/datatypes"
	"github.com/AleutianAI/docchat/services/docchat/handlers"
	"github.com/AleutianAI/docchat/services/docchat/ingest"
	"github.com/AleutianAI/docchat/services/docchat/observability"
	"github.com/AleutianAI/docchat/services/docchat/retriever"
	"github.com/AleutianAI/docchat/services/docchat/routes"
	"github.com/AleutianAI/docchat/services/llm"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the docchat service.
//
// # Description
//
// Service abstracts the service lifecycle, enabling testing and alternative
// implementations. Only essential lifecycle methods are exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// Callers must not modify the router after construction.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds docchat configuration options.
//
// # Description
//
// Config centralizes all configuration for the service. Values can be
// populated from environment variables, config files, or programmatically
// for testing. All fields have sensible defaults applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 12230
	Port int

	// DocsDir is the directory holding answerable documents.
	// Default: "./docs"
	DocsDir string

	// CacheDir is the chunk cache directory. Default: "./cache"
	CacheDir string

	// CacheInMemory runs the chunk cache without touching disk.
	// Used in tests and throwaway deployments.
	CacheInMemory bool

	// CacheTTL bounds how long a cached ingestion record is served.
	// Default: 7 days.
	CacheTTL time.Duration

	// LLMBackend specifies the LLM provider.
	// Valid values: "openai", "ollama", "anthropic", "llamacpp"
	// Default: "ollama"
	LLMBackend string

	// EmbedderBackend specifies the embedding provider.
	// Valid values: "openai", "ollama", "local"
	// Default: "local"
	EmbedderBackend string

	// ConverterURL is the document conversion service URL used for
	// binary formats such as PDF and DOCX. If empty, only plain-text
	// and markdown sources are ingestible.
	// Example: "http://localhost:9100"
	ConverterURL string

	// WeaviateURL is the Weaviate vector database URL.
	// If empty, an in-memory vector store is used instead.
	// Example: "http://localhost:8080"
	WeaviateURL string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// If empty, tracing is left on the global no-op provider.
	OTelEndpoint string

	// LexicalWeight and VectorWeight control the retrieval fusion.
	// Defaults: 0.4 and 0.6.
	LexicalWeight float64
	VectorWeight  float64

	// RelevanceK bounds how many chunks feed the relevance classifier.
	// Default: 3.
	RelevanceK int

	// ModelCallTimeout bounds each individual model call. Default: 60s.
	ModelCallTimeout time.Duration

	// MaxIngestBytes caps the total size of one ingestion batch.
	// Default: 50 MiB.
	MaxIngestBytes int64

	// RateLimitRPS and RateLimitBurst throttle the answering endpoints
	// per client IP. Defaults: 2 rps, burst 5. A negative RPS disables
	// the limiter.
	RateLimitRPS   float64
	RateLimitBurst int

	// WatchDocs rebuilds collections when source files change on disk.
	// Default: true.
	WatchDocs bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	GinMode string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	cache         *ingest.ChunkCache
	registry      *retriever.Registry
	pipeline      *agents.Pipeline
	llmClient     llm.LLMClient
	embedder      llm.Embedder
	vectorStore   retriever.VectorStore
	tracerCleanup func(context.Context)
	watchCancel   context.CancelFunc
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a docchat Service with the given configuration.
//
// # Description
//
// New initializes all components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing (optional)
//  3. Opens the chunk cache
//  4. Creates LLM and embedding clients
//  5. Connects the vector store (Weaviate, or in-memory fallback)
//  6. Builds the registry and answer pipeline
//  7. Sets up HTTP routes
//
// # Outputs
//
//   - Service: Ready-to-run service
//   - error: Non-nil if initialization fails
//
// # Assumptions
//
//   - Environment variables are set for the chosen LLM provider
//   - DocsDir exists and is readable
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if err := s.initCache(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize chunk cache: %w", err)
	}

	if err := s.initModelClients(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize model clients: %w", err)
	}

	if err := s.initVectorStore(); err != nil {
		slog.Warn("Vector store initialization failed, running in lightweight mode", "error", err)
		s.vectorStore = retriever.NewMemoryVectorStore()
	}

	if err := os.MkdirAll(s.config.DocsDir, 0o755); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to create docs directory: %w", err)
	}

	s.initPipeline()
	s.initRouter()

	if docs, err := s.registry.ListCatalog(); err != nil {
		slog.Warn("Docs catalog scan failed", "error", err)
	} else {
		slog.Info("Docs catalog loaded", "count", len(docs))
	}

	if s.config.WatchDocs {
		s.startWatcher()
	}
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting docchat server", "port", s.config.Port, "docs_dir", s.config.DocsDir)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12230
	}
	if cfg.DocsDir == "" {
		cfg.DocsDir = "./docs"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "./cache"
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 7 * 24 * time.Hour
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.EmbedderBackend == "" {
		cfg.EmbedderBackend = "local"
	}
	if cfg.LexicalWeight <= 0 && cfg.VectorWeight <= 0 {
		cfg.LexicalWeight = retriever.DefaultLexicalWeight
		cfg.VectorWeight = retriever.DefaultVectorWeight
	}
	if cfg.RelevanceK <= 0 {
		cfg.RelevanceK = 3
	}
	if cfg.ModelCallTimeout == 0 {
		cfg.ModelCallTimeout = 60 * time.Second
	}
	if cfg.MaxIngestBytes == 0 {
		cfg.MaxIngestBytes = ingest.DefaultMaxTotalBytes
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 2
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 5
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Limitations
//
//   - Uses an insecure gRPC connection (appropriate for internal networks)
//   - With no endpoint configured, spans go to the global no-op provider
func (s *service) initTracer() (func(context.Context), error) {
	if s.config.OTelEndpoint == "" {
		slog.Info("OTel endpoint not configured, tracing disabled")
		return func(context.Context) {}, nil
	}

	ctx := context.Background()
	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("docchat-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}
	return cleanup, nil
}

// initCache opens the persistent chunk cache.
func (s *service) initCache() error {
	cache, err := ingest.OpenCache(ingest.CacheConfig{
		Path:       s.config.CacheDir,
		InMemory:   s.config.CacheInMemory,
		TTL:        s.config.CacheTTL,
		GCInterval: time.Hour,
	})
	if err != nil {
		return err
	}
	s.cache = cache
	return nil
}

// initModelClients creates the generation and embedding clients.
func (s *service) initModelClients() error {
	client, err := llm.NewClient(s.config.LLMBackend)
	if err != nil {
		return err
	}
	s.llmClient = client
	slog.Info("Using LLM backend", "backend", s.config.LLMBackend)

	embedder, err := llm.NewEmbedderClient(s.config.EmbedderBackend)
	if err != nil {
		return err
	}
	s.embedder = embedder
	slog.Info("Using embedder backend", "backend", s.config.EmbedderBackend)
	return nil
}

// initVectorStore connects Weaviate when configured; the caller falls back
// to the in-memory store on failure.
func (s *service) initVectorStore() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("Weaviate URL not configured, using in-memory vector store")
		s.vectorStore = retriever.NewMemoryVectorStore()
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	store, err := retriever.NewWeaviateVectorStore(context.Background(), weaviateURL, nil)
	if err != nil {
		return err
	}
	s.vectorStore = store
	return nil
}

// initPipeline builds the registry and the answer pipeline over the
// initialized components.
func (s *service) initPipeline() {
	opts := []ingest.ProcessorOption{
		ingest.WithMaxTotalBytes(s.config.MaxIngestBytes),
	}
	if s.config.ConverterURL != "" {
		opts = append(opts, ingest.WithConverters(
			ingest.MarkdownConverter{},
			ingest.NewHTTPConverter(s.config.ConverterURL)))
		slog.Info("Using conversion service for binary documents", "url", s.config.ConverterURL)
	}
	processor := ingest.NewProcessor(s.cache, nil, opts...)
	s.registry = retriever.NewRegistry(s.config.DocsDir, processor, s.embedder, s.vectorStore,
		retriever.HybridConfig{
			LexicalWeight: s.config.LexicalWeight,
			VectorWeight:  s.config.VectorWeight,
		}, nil)
	s.pipeline = agents.NewPipeline(s.llmClient, agents.PipelineConfig{
		RelevanceK:       s.config.RelevanceK,
		ModelCallTimeout: s.config.ModelCallTimeout,
	}, nil)
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	datatypes.RegisterValidations()

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("docchat-service"))
	s.router.Use(observability.Middleware())

	var limiter *handlers.RateLimiter
	if s.config.RateLimitRPS > 0 {
		limiter = handlers.NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)
	}
	h := handlers.New(s.registry, s.pipeline, nil)
	routes.RegisterRoutes(s.router, h, limiter)
}

// startWatcher runs the docs-directory watcher until cleanup.
func (s *service) startWatcher() {
	ctx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	go func() {
		if err := s.registry.Watch(ctx); err != nil {
			slog.Warn("Docs watcher stopped", "error", err)
		}
	}()
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.watchCancel != nil {
		s.watchCancel()
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			slog.Warn("Chunk cache close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
