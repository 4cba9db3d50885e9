// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/docchat/services/docchat/datatypes"
	"github.com/AleutianAI/docchat/services/docchat/observability"
)

var tracer = otel.Tracer("docchat.ingest")

// DefaultMaxTotalBytes caps one ingestion batch at 50 MiB.
const DefaultMaxTotalBytes = 50 << 20

// Processor drives the file-to-chunks pipeline: validate sizes, serve from
// the content-hash cache when possible, otherwise convert, split, persist.
//
// # Thread Safety
//
// Safe for concurrent use. The cache handles write isolation; concurrent
// ingestion of the same bytes at worst writes the same record twice.
type Processor struct {
	cache         *ChunkCache
	converters    []Converter
	splitter      *HeaderSplitter
	maxTotalBytes int64
	logger        *slog.Logger
}

// ProcessorOption mutates a Processor during construction.
type ProcessorOption func(*Processor)

// WithConverters replaces the default converter set.
func WithConverters(cs ...Converter) ProcessorOption {
	return func(p *Processor) { p.converters = cs }
}

// WithMaxTotalBytes overrides the batch size cap.
func WithMaxTotalBytes(n int64) ProcessorOption {
	return func(p *Processor) { p.maxTotalBytes = n }
}

// WithSplitter replaces the default chunk splitter.
func WithSplitter(s *HeaderSplitter) ProcessorOption {
	return func(p *Processor) { p.splitter = s }
}

// NewProcessor builds a Processor over the given cache.
func NewProcessor(cache *ChunkCache, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		cache:         cache,
		converters:    []Converter{MarkdownConverter{}},
		splitter:      NewHeaderSplitter(defaultChunkSize, defaultChunkOverlap),
		maxTotalBytes: DefaultMaxTotalBytes,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate sums the sizes of the given files and fails with
// ErrSizeLimitExceeded when the batch exceeds the configured cap.
// Runs before any conversion work so oversized batches are rejected cheaply.
func (p *Processor) Validate(paths []string) error {
	var total int64
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			// Unreadable files are a per-file concern handled during
			// ingestion; they contribute nothing to the batch size.
			continue
		}
		total += info.Size()
	}
	if total > p.maxTotalBytes {
		return fmt.Errorf("%w: batch is %d bytes, limit is %d", datatypes.ErrSizeLimitExceeded, total, p.maxTotalBytes)
	}
	return nil
}

// Ingest converts each file into chunks, serving from cache when the exact
// bytes were seen before.
//
// Per-file failures (unreadable file, conversion error, unsupported
// extension) are logged and that file is skipped; the batch never aborts
// for one bad file. The returned chunks are deduplicated across the whole
// batch by content hash, preserving first-seen order.
func (p *Processor) Ingest(ctx context.Context, paths []string) ([]datatypes.Chunk, error) {
	ctx, span := tracer.Start(ctx, "Processor.Ingest")
	defer span.End()
	span.SetAttributes(attribute.Int("ingest.num_files", len(paths)))

	if err := p.Validate(paths); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var all []datatypes.Chunk
	for _, path := range paths {
		chunks, err := p.ingestOne(ctx, path)
		if err != nil {
			p.logger.Warn("Skipping file", "path", path, "error", err)
			continue
		}
		all = append(all, chunks...)
	}

	deduped := datatypes.DedupeChunks(all)
	span.SetAttributes(attribute.Int("ingest.num_chunks", len(deduped)))
	return deduped, nil
}

func (p *Processor) ingestOne(ctx context.Context, path string) ([]datatypes.Chunk, error) {
	converter := p.converterFor(ExtOf(path))
	if converter == nil {
		return nil, fmt.Errorf("unsupported file extension %q", ExtOf(path))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", datatypes.ErrConversionError, filepath.Base(path), err)
	}
	sourceHash := datatypes.HashBytes(raw)

	if doc, ok := p.cache.Get(sourceHash); ok {
		observability.CacheHits.Inc()
		p.logger.Debug("Chunk cache hit", "path", path, "source_hash", sourceHash)
		return doc.Chunks, nil
	}
	observability.CacheMisses.Inc()

	markdown, err := converter.ToMarkdown(ctx, path)
	if err != nil {
		return nil, err
	}
	chunks, err := p.splitter.Split(markdown)
	if err != nil {
		return nil, fmt.Errorf("%w: splitting %s: %v", datatypes.ErrConversionError, filepath.Base(path), err)
	}

	if err := p.cache.Put(sourceHash, chunks); err != nil {
		// A failed cache write costs a re-conversion later, nothing more.
		p.logger.Warn("Failed to persist chunk cache record", "path", path, "error", err)
	}
	p.logger.Info("Ingested file", "path", path, "chunks", len(chunks), "source_hash", sourceHash)
	return chunks, nil
}

// SupportsExt reports whether any configured converter handles the given
// extension. The catalog scanner uses this to decide what counts as a
// document.
func (p *Processor) SupportsExt(ext string) bool {
	return p.converterFor(ext) != nil
}

func (p *Processor) converterFor(ext string) Converter {
	for _, c := range p.converters {
		if c.Supports(ext) {
			return c
		}
	}
	return nil
}
