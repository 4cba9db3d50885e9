// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDocID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid identifiers
		{"simple", "policy.md", false},
		{"with spaces", "employee handbook.md", false},
		{"unicode", "håndbok.md", false},
		{"no extension", "README", false},
		{"leading dot", ".hidden.md", false},
		{"max length", strings.Repeat("a", 255), false},

		// Invalid identifiers
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"forward slash", "docs/policy.md", true},
		{"backslash", `docs\policy.md`, true},
		{"traversal", "../../etc/passwd", true},
		{"nul byte", "policy\x00.md", true},
		{"newline", "policy\n.md", true},
		{"too long", strings.Repeat("a", 256), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDocID(tc.id)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
