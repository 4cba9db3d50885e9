// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// file paths. Using these validators prevents path traversal: a document
// identifier must stay a bare file name inside the docs directory.
package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// maxDocIDLength bounds identifiers to a conventional file name length.
const maxDocIDLength = 255

// ValidateDocID validates a document identifier before it is joined onto
// the docs directory path.
//
// Valid identifiers:
//   - 1-255 characters
//   - no path separators ("/" or "\")
//   - not "." or ".."
//   - no NUL or other control characters
//
// Returns an error describing the first violation found.
//
// Example:
//
//	if err := validation.ValidateDocID(docID); err != nil {
//	    return nil, fmt.Errorf("invalid document id: %w", err)
//	}
//	path := filepath.Join(docsDir, docID)
func ValidateDocID(id string) error {
	if id == "" {
		return fmt.Errorf("document id cannot be empty")
	}
	if len(id) > maxDocIDLength {
		return fmt.Errorf("document id exceeds %d characters", maxDocIDLength)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("document id %q is a directory reference", id)
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("document id %q contains a path separator", id)
	}
	for _, r := range id {
		if r == 0 || unicode.IsControl(r) {
			return fmt.Errorf("document id contains a control character")
		}
	}
	return nil
}
