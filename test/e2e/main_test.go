// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package e2e exercises a running docchat server over its real HTTP
// surface. The tests are skipped unless DOCCHAT_E2E_SERVER points at a
// live instance, e.g.:
//
//	DOCCHAT_E2E_SERVER=http://localhost:12230 go test ./test/e2e/
//
// The server's docs directory must contain the policy.md fixture from
// testdata/ for the question tests to pass.
package e2e

import (
	"fmt"
	"os"
	"strings"
	"testing"
)

var serverURL string

func TestMain(m *testing.M) {
	serverURL = strings.TrimRight(os.Getenv("DOCCHAT_E2E_SERVER"), "/")
	if serverURL == "" {
		fmt.Println("DOCCHAT_E2E_SERVER not set, skipping e2e tests")
		os.Exit(0)
	}
	os.Exit(m.Run())
}
