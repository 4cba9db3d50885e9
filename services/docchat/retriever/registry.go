// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/docchat/pkg/validation"
	"github.com/AleutianAI/docchat/services/docchat/datatypes"
	"github.com/AleutianAI/docchat/services/docchat/ingest"
	"github.com/AleutianAI/docchat/services/docchat/observability"
	"github.com/AleutianAI/docchat/services/llm"
)

// Collection binds one catalog document to its built index and the
// fingerprint the index was built from.
type Collection struct {
	ID            string
	CanonicalPath string
	Fingerprint   string
	Index         *HybridIndex
}

// Registry maps document identifiers to Collections and guarantees
// at-most-one concurrent index build per identifier.
//
// # Description
//
// Collections are created lazily on first resolve. The fast path (fresh
// fingerprint, index present) takes only a read lock. The slow path runs
// under a per-doc singleflight so N concurrent callers of the same stale
// document share one build and one result. Index and fingerprint are
// published together under the write lock; readers never observe one
// without the other.
//
// # Thread Safety
//
// Safe for concurrent use. Builds for different documents proceed fully in
// parallel.
type Registry struct {
	docsDir   string
	processor *ingest.Processor
	embedder  llm.Embedder
	store     VectorStore
	hybridCfg HybridConfig
	logger    *slog.Logger

	mu          sync.RWMutex
	collections map[string]*Collection
	flight      singleflight.Group
}

// NewRegistry builds a Registry serving documents from docsDir.
func NewRegistry(docsDir string, processor *ingest.Processor, embedder llm.Embedder,
	store VectorStore, hybridCfg HybridConfig, logger *slog.Logger) *Registry {

	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		docsDir:     docsDir,
		processor:   processor,
		embedder:    embedder,
		store:       store,
		hybridCfg:   hybridCfg,
		logger:      logger,
		collections: make(map[string]*Collection),
	}
}

// ListCatalog rescans the document directory and returns the current set of
// known identifiers, sorted. Never touches indexes.
func (r *Registry) ListCatalog() ([]string, error) {
	entries, err := os.ReadDir(r.docsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan docs directory %s: %w", r.docsDir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if r.processor.SupportsExt(ingest.ExtOf(e.Name())) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Resolve returns a fresh index for docID, building or rebuilding as needed.
//
// Fails with ErrUnknownDocument when docID is not in the catalog, and with
// ErrSourceMissing when a previously resolved document's file has since
// disappeared.
func (r *Registry) Resolve(ctx context.Context, docID string) (*HybridIndex, error) {
	// HTTP binding already enforces this; callers inside the process get
	// the same path-traversal guard.
	if err := validation.ValidateDocID(docID); err != nil {
		return nil, fmt.Errorf("%w: %v", datatypes.ErrUnknownDocument, err)
	}

	path := filepath.Join(r.docsDir, docID)
	if !r.processor.SupportsExt(ingest.ExtOf(docID)) {
		return nil, fmt.Errorf("%w: %s", datatypes.ErrUnknownDocument, docID)
	}

	fp, err := r.fingerprint(path)
	if err != nil {
		r.mu.RLock()
		_, known := r.collections[docID]
		r.mu.RUnlock()
		if known {
			return nil, fmt.Errorf("%w: %s", datatypes.ErrSourceMissing, docID)
		}
		return nil, fmt.Errorf("%w: %s", datatypes.ErrUnknownDocument, docID)
	}

	// Fast path: fingerprint unchanged and index already built.
	r.mu.RLock()
	if c, ok := r.collections[docID]; ok && c.Fingerprint == fp && c.Index != nil {
		r.mu.RUnlock()
		return c.Index, nil
	}
	r.mu.RUnlock()

	// Slow path: at most one build per docID; concurrent callers share
	// the same result.
	result, err, _ := r.flight.Do(docID, func() (any, error) {
		return r.build(ctx, docID, path, fp)
	})
	if err != nil {
		return nil, err
	}
	return result.(*HybridIndex), nil
}

// build is only ever entered by one goroutine per docID at a time.
func (r *Registry) build(ctx context.Context, docID, path, fp string) (*HybridIndex, error) {
	// Re-check under the lock: a caller queued behind a finished build
	// must not trigger a second one.
	r.mu.RLock()
	if c, ok := r.collections[docID]; ok && c.Fingerprint == fp && c.Index != nil {
		r.mu.RUnlock()
		return c.Index, nil
	}
	r.mu.RUnlock()

	r.logger.Info("Building collection index", "doc_id", docID, "path", path)
	chunks, err := r.processor.Ingest(ctx, []string{path})
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i] = chunks[i].WithMetadata(map[string]any{
			"doc_id": docID,
			"source": path,
		})
	}

	index, err := BuildHybridIndex(ctx, docID, chunks, r.embedder, r.store, r.hybridCfg)
	if err != nil {
		return nil, err
	}

	// Publish index and fingerprint together.
	r.mu.Lock()
	r.collections[docID] = &Collection{
		ID:            docID,
		CanonicalPath: path,
		Fingerprint:   fp,
		Index:         index,
	}
	r.mu.Unlock()
	observability.IndexBuilds.Inc()
	r.logger.Info("Collection index built", "doc_id", docID, "chunks", len(chunks))
	return index, nil
}

// fingerprint hashes the canonical path, modification time, and size of the
// live file, detecting change without reading contents.
func (r *Registry) fingerprint(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	return datatypes.HashBytes([]byte(fmt.Sprintf("%s|%d|%d", abs, info.ModTime().UnixNano(), info.Size()))), nil
}

// Watch invalidates collections when their source files change on disk, so
// the next resolve rebuilds without waiting for a fingerprint mismatch to
// be noticed. Blocks until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create docs watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.docsDir); err != nil {
		return fmt.Errorf("failed to watch docs directory %s: %w", r.docsDir, err)
	}
	r.logger.Info("Watching docs directory", "path", r.docsDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			r.invalidate(filepath.Base(event.Name))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("Docs watcher error", "error", err)
		}
	}
}

// invalidate clears the stored fingerprint for docID, forcing the next
// resolve onto the slow path. Resolving is left to the next request; the
// watcher never builds indexes itself.
func (r *Registry) invalidate(docID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.collections[docID]; ok {
		r.logger.Info("Invalidating collection after file change", "doc_id", docID)
		c.Fingerprint = ""
	}
}
