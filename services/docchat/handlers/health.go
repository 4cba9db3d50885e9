// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports liveness, uptime, and the current catalog size.
func (h *Handlers) HealthHandler(c *gin.Context) {
	docs, err := h.Registry.ListCatalog()
	if err != nil {
		h.Logger.Warn("Health check could not scan catalog", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime_sec": int64(time.Since(h.StartTime).Seconds()),
		"docs_count": len(docs),
	})
}
