// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes binds the assistant's HTTP surface to its handlers.
package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/assembler"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/cache"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/grounding"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/handlers"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/monitor"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/snapshot"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/telemetry"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Store     *cache.Store
	Builder   *snapshot.Builder
	Assembler *assembler.Assembler
	Validator *grounding.Validator
	Monitor   *monitor.Monitor
	Logger    *slog.Logger
}

// SetupRoutes registers every endpoint on the router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)

	if metricsHandler := telemetry.MetricsHandler(); metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/context", handlers.BuildContext(deps.Builder, deps.Assembler, deps.Logger))
		v1.POST("/validate", handlers.ValidateResponse(deps.Validator))
		v1.POST("/snapshot/refresh", handlers.RefreshSnapshot(deps.Builder, deps.Logger))

		cacheGroup := v1.Group("/cache")
		{
			cacheGroup.GET("/stats", handlers.CacheStats(deps.Store))
			cacheGroup.DELETE("", handlers.InvalidateCache(deps.Store, deps.Logger))
		}

		monitorGroup := v1.Group("/monitor")
		{
			monitorGroup.POST("", handlers.StartMonitor(deps.Monitor))
			monitorGroup.DELETE("/:actorId", handlers.StopMonitor(deps.Monitor))
			monitorGroup.PUT("/:actorId/watch", handlers.ReplaceWatchSet(deps.Monitor))
		}
	}
}
