// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the assistant's HTTP endpoints.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/assembler"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/cache"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/datatypes"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/grounding"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/monitor"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/snapshot"
)

// ContextRequest asks for a grounding digest for one turn.
type ContextRequest struct {
	Actor datatypes.Actor `json:"actor" binding:"required"`
	Query string          `json:"query"`
}

// ContextResponse carries the digest and the facts it disclosed.
type ContextResponse struct {
	Digest string                     `json:"digest"`
	Facts  *datatypes.GroundedFactSet `json:"facts"`
}

// ValidateRequest asks for grounding validation of a model response.
type ValidateRequest struct {
	Response string                     `json:"response" binding:"required"`
	Facts    *datatypes.GroundedFactSet `json:"facts"`
}

// RefreshRequest forces a snapshot rebuild for an actor.
type RefreshRequest struct {
	Actor datatypes.Actor `json:"actor" binding:"required"`
}

// InvalidateRequest scopes a cache invalidation.
type InvalidateRequest struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

// WatchRequest replaces an actor's watched record set.
type WatchRequest struct {
	IDs []string `json:"ids"`
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// BuildContext returns the grounding digest for one conversational
// turn. A stale or absent snapshot is rebuilt inline.
func BuildContext(builder *snapshot.Builder, asm *assembler.Assembler, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ContextRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Actor.ID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "actor.id is required"})
			return
		}

		snap, err := builder.Current(c.Request.Context(), req.Actor, nil)
		if err != nil {
			logger.Error("snapshot unavailable", "actor", req.Actor.ID, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot unavailable"})
			return
		}

		digest, facts := asm.Assemble(snap, assembler.Request{
			Actor: req.Actor,
			Query: req.Query,
		})
		c.JSON(http.StatusOK, ContextResponse{Digest: digest, Facts: facts})
	}
}

// ValidateResponse runs the grounding checker pipeline over a model
// response. Validation never fails the request; violations are data.
func ValidateResponse(validator *grounding.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ValidateRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		result := validator.Validate(c.Request.Context(), req.Response, req.Facts)
		c.JSON(http.StatusOK, result)
	}
}

// RefreshSnapshot forces a rebuild and returns section counts.
func RefreshSnapshot(builder *snapshot.Builder, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefreshRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Actor.ID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "actor.id is required"})
			return
		}

		snap, err := builder.Rebuild(c.Request.Context(), req.Actor, nil)
		if err != nil {
			logger.Error("snapshot rebuild failed", "actor", req.Actor.ID, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rebuild failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"last_updated":     snap.LastUpdated,
			"schema_version":   snap.SchemaVersion,
			"employees":        len(snap.Employees),
			"incidents":        len(snap.Incidents),
			"service_requests": len(snap.ServiceRequests),
			"own_tickets":      len(snap.OwnRequesterTickets),
		})
	}
}

// CacheStats returns entry counts and hit/miss counters.
func CacheStats(store *cache.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, store.Stats())
	}
}

// InvalidateCache removes cached entries at entry, type, or global
// scope depending on the request body. An empty body clears all
// entries.
func InvalidateCache(store *cache.Store, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InvalidateRequest
		if c.Request.ContentLength > 0 {
			if err := c.BindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
		}

		if err := store.Invalidate(req.Type, req.Params); err != nil {
			logger.Error("cache invalidation failed", "type", req.Type, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "invalidation failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"invalidated": true})
	}
}

// StartMonitor begins change polling for an actor.
func StartMonitor(m *monitor.Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefreshRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Actor.ID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "actor.id is required"})
			return
		}

		m.Start(req.Actor)
		c.JSON(http.StatusOK, gin.H{"monitoring": req.Actor.ID})
	}
}

// StopMonitor ends change polling for an actor.
func StopMonitor(m *monitor.Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.Param("actorId")
		if !m.Stop(actorID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no watch running for actor"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"stopped": actorID})
	}
}

// ReplaceWatchSet swaps an actor's watched records wholesale.
func ReplaceWatchSet(m *monitor.Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.Param("actorId")

		var req WatchRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if err := m.Watch(actorID, req.IDs); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no watch running for actor"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"watching": len(req.IDs)})
	}
}
