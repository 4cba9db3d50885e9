// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ingest turns raw source files into deduplicated, header-aware
// text chunks and caches the result keyed by content hash.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/docchat/services/docchat/datatypes"
)

// chunkKeyPrefix namespaces cache records inside the shared badger store.
const chunkKeyPrefix = "chunks/"

// CachedDocument is one persisted ingestion result: all chunks derived from
// a single file content, stamped with its creation time.
//
// Records are keyed by the SHA-256 of the raw file bytes, so identical bytes
// always map to the same record regardless of file name or location. A write
// replaces the whole record; records are never merged.
type CachedDocument struct {
	SourceHash string            `json:"source_hash"`
	CreatedAt  time.Time         `json:"created_at"`
	Chunks     []datatypes.Chunk `json:"chunks"`
}

// CacheConfig controls the on-disk chunk cache.
type CacheConfig struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path string
	// InMemory runs the cache without touching disk. Used in tests and
	// lightweight mode.
	InMemory bool
	// TTL bounds how long a record is served before being treated as
	// absent. Content-hash keys never go stale for correctness; the TTL is
	// storage hygiene that keeps orphaned records from accumulating.
	// Zero means records never expire.
	TTL time.Duration
	// SyncWrites forces an fsync per write. Slower, safer.
	SyncWrites bool
	// GCInterval is how often the value log garbage collector runs.
	// Zero disables background GC.
	GCInterval time.Duration
	// Logger receives badger's internal log lines. Defaults to slog.Default.
	Logger *slog.Logger
}

// ChunkCache is the persistent chunk store. Safe for concurrent use; badger
// provides transactional isolation and whole-record replacement, so readers
// never observe a half-written record.
type ChunkCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
	stopGC chan struct{}
}

// badgerLogger adapts badger's printf-style logger onto slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

// OpenCache opens (or creates) the chunk cache described by cfg.
func OpenCache(cfg CacheConfig) (*ChunkCache, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("chunk cache path must not be empty")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk cache: %w", err)
	}

	c := &ChunkCache{
		db:     db,
		ttl:    cfg.TTL,
		logger: logger,
		stopGC: make(chan struct{}),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		go c.runGC(cfg.GCInterval)
	}
	return c, nil
}

// Get returns the cached record for sourceHash, or ok=false when the record
// is absent, expired, or unreadable. A corrupt record is deleted and logged,
// never surfaced as an error; the caller falls back to rebuilding.
func (c *ChunkCache) Get(sourceHash string) (CachedDocument, bool) {
	var doc CachedDocument
	key := []byte(chunkKeyPrefix + sourceHash)

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return CachedDocument{}, false
	case err != nil:
		c.logger.Warn("Dropping unreadable chunk cache record", "source_hash", sourceHash, "error", err)
		_ = c.Delete(sourceHash)
		return CachedDocument{}, false
	}

	if c.ttl > 0 && time.Since(doc.CreatedAt) > c.ttl {
		c.logger.Debug("Chunk cache record expired", "source_hash", sourceHash, "created_at", doc.CreatedAt)
		return CachedDocument{}, false
	}
	return doc, true
}

// Put stores a new record for sourceHash, replacing any existing one.
func (c *ChunkCache) Put(sourceHash string, chunks []datatypes.Chunk) error {
	doc := CachedDocument{
		SourceHash: sourceHash,
		CreatedAt:  time.Now().UTC(),
		Chunks:     chunks,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk cache record: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(chunkKeyPrefix+sourceHash), data)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Delete removes the record for sourceHash, if present.
func (c *ChunkCache) Delete(sourceHash string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(chunkKeyPrefix + sourceHash))
	})
}

// Close stops background GC and closes the underlying store.
func (c *ChunkCache) Close() error {
	close(c.stopGC)
	return c.db.Close()
}

func (c *ChunkCache) runGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopGC:
			return
		case <-ticker.C:
			// Badger asks callers to loop until GC reports nothing to do.
			for {
				if err := c.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
		}
	}
}
