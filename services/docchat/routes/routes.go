// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the docchat HTTP endpoints onto a gin engine.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/docchat/services/docchat/handlers"
)

// RegisterRoutes attaches all service endpoints. The rate limiter guards
// only the answering endpoints; health, docs listing, and metrics stay
// cheap and unthrottled.
func RegisterRoutes(router *gin.Engine, h *handlers.Handlers, limiter *handlers.RateLimiter) {
	router.GET("/health", h.HealthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/docs", h.ListDocsHandler)

		ask := api.Group("/")
		if limiter != nil {
			ask.Use(limiter.Middleware())
		}
		ask.POST("/ask", h.AskHandler)
		ask.GET("/ask/stream", h.AskStreamHandler)
	}
}
