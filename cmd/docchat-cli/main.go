// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command docchat-cli is the terminal client for a running docchat server.
//
// # Usage
//
//	docchat-cli health
//	docchat-cli docs
//	docchat-cli ask "What is the refund window?" --doc policy.md
//	docchat-cli ask "What is the refund window?" --doc policy.md --stream
//
// Configuration is read from ~/.docchat/config.yaml when present; flags
// override file values.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
