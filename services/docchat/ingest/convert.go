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
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/docchat/services/docchat/datatypes"
)

// Converter turns one source file into normalized markdown text.
// Implementations report failure by wrapping datatypes.ErrConversionError;
// the processor then skips the file and continues the batch.
type Converter interface {
	// Supports reports whether the converter can handle the given file
	// extension (lowercase, with leading dot).
	Supports(ext string) bool

	// ToMarkdown reads and converts the file at path.
	ToMarkdown(ctx context.Context, path string) (string, error)
}

// MarkdownConverter handles files that are already text: markdown and plain
// text pass through unchanged.
type MarkdownConverter struct{}

var _ Converter = (*MarkdownConverter)(nil)

var textExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

func (MarkdownConverter) Supports(ext string) bool {
	return textExtensions[ext]
}

func (MarkdownConverter) ToMarkdown(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", datatypes.ErrConversionError, filepath.Base(path), err)
	}
	return string(data), nil
}

// ExtOf returns the lowercase extension of path, with leading dot.
func ExtOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
