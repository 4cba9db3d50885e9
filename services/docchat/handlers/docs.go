// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListDocsHandler returns the catalog of answerable documents. The docs
// directory is rescanned on every call so new files show up without a
// restart.
func (h *Handlers) ListDocsHandler(c *gin.Context) {
	docs, err := h.Registry.ListCatalog()
	if err != nil {
		h.Logger.Error("Failed to scan document catalog", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to scan document catalog"})
		return
	}
	if docs == nil {
		docs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"docs": docs})
}
