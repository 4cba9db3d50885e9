// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "errors"

// Sentinel errors for the ingest and answer pipelines. Callers wrap these
// with %w and context; handlers match with errors.Is to pick status codes.
var (
	// ErrSizeLimitExceeded means a source file is larger than the configured
	// ingest byte limit. Maps to HTTP 413.
	ErrSizeLimitExceeded = errors.New("document exceeds size limit")

	// ErrUnknownDocument means the requested doc_id is not registered in the
	// collection catalog. Maps to HTTP 400.
	ErrUnknownDocument = errors.New("unknown document")

	// ErrSourceMissing means a registered document's backing file is absent
	// on disk. Maps to HTTP 400.
	ErrSourceMissing = errors.New("source file missing")

	// ErrConversionError means the source file could not be converted to
	// markdown. Maps to HTTP 500.
	ErrConversionError = errors.New("document conversion failed")

	// ErrIndexBuildError means embedding or index construction failed while
	// building a collection. Maps to HTTP 500.
	ErrIndexBuildError = errors.New("index build failed")

	// ErrModelError means a language model call failed during the pipeline.
	// Maps to HTTP 502.
	ErrModelError = errors.New("model call failed")
)
