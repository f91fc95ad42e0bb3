// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/assembler"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/cache"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/datatypes"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/events"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/grounding"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/handlers"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/monitor"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/remote"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/routes"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/snapshot"
)

// cannedSource serves a single own ticket for actor-1.
type cannedSource struct{}

func (cannedSource) ListEmployees(context.Context, remote.ListOptions) ([]datatypes.Employee, error) {
	return nil, nil
}
func (cannedSource) ListIncidents(context.Context, remote.ListOptions) ([]datatypes.Ticket, error) {
	return nil, nil
}
func (cannedSource) ListServiceRequests(context.Context, remote.ListOptions) ([]datatypes.Ticket, error) {
	return nil, nil
}
func (cannedSource) ListCategories(context.Context, remote.ListOptions) ([]datatypes.Category, error) {
	return []datatypes.Category{{ID: strings.Repeat("c", 32), Name: "Hardware"}}, nil
}
func (cannedSource) ListServices(context.Context, remote.ListOptions) ([]datatypes.Service, error) {
	return nil, nil
}
func (cannedSource) ListTeams(context.Context, remote.ListOptions) ([]datatypes.Team, error) {
	return nil, nil
}
func (cannedSource) ListDepartments(context.Context, remote.ListOptions) ([]datatypes.Department, error) {
	return nil, nil
}
func (cannedSource) ListRoles(context.Context, remote.ListOptions) ([]datatypes.Role, error) {
	return nil, nil
}
func (cannedSource) ListTicketsForRequester(_ context.Context, requesterID string, opts remote.ListOptions) ([]datatypes.Ticket, error) {
	if requesterID != "actor-1" || opts.Offset > 0 {
		return nil, nil
	}
	return []datatypes.Ticket{{
		ID:          strings.Repeat("a", 32),
		Number:      7,
		Kind:        datatypes.KindServiceRequest,
		Title:       "laptop replacement",
		Status:      datatypes.StatusOpen,
		Priority:    datatypes.PriorityMedium,
		RequesterID: "actor-1",
		CreatedAt:   time.Now().Add(-2 * time.Hour),
		UpdatedAt:   time.Now().Add(-time.Hour),
	}}, nil
}
func (cannedSource) GetTicket(_ context.Context, id string) (*datatypes.Ticket, error) {
	return &datatypes.Ticket{ID: id}, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := cache.NewStore(cache.InMemoryDBConfig(), cache.Options{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	builder, err := snapshot.NewBuilder(cannedSource{}, store, snapshot.Config{}, logger)
	require.NoError(t, err)

	mon := monitor.NewMonitor(cannedSource{}, events.NewEmitter(), monitor.Config{}, logger)
	t.Cleanup(mon.StopAll)

	router := gin.New()
	routes.SetupRoutes(router, routes.Deps{
		Store:     store,
		Builder:   builder,
		Assembler: assembler.New(assembler.Config{}, logger),
		Validator: grounding.NewValidator(grounding.Config{Mode: grounding.ModeCorrective}, logger),
		Monitor:   mon,
		Logger:    logger,
	})
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	w := doJSON(t, newTestRouter(t), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestContextEndpointReturnsDigestAndFacts(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/context", handlers.ContextRequest{
		Actor: datatypes.Actor{ID: "actor-1", DisplayName: "Alex", Email: "alex@corp.example"},
		Query: "what is open?",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.ContextResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Digest, "request #7")
	assert.Contains(t, resp.Digest, "GROUNDING RULES:")
	require.NotNil(t, resp.Facts)
	assert.Equal(t, "actor-1", resp.Facts.Facts["actor_id"])
}

func TestContextEndpointRejectsMissingActor(t *testing.T) {
	w := doJSON(t, newTestRouter(t), http.MethodPost, "/v1/context", map[string]any{"query": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateEndpointCorrectsResponse(t *testing.T) {
	router := newTestRouter(t)

	facts := datatypes.NewGroundedFactSet()
	facts.Facts["ticket_refs"] = []string{"request #7"}

	w := doJSON(t, router, http.MethodPost, "/v1/validate", handlers.ValidateRequest{
		Response: "I have closed request #7 and incident #99.",
		Facts:    facts,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result grounding.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Grounded)
	assert.True(t, result.Modified)
	assert.Contains(t, result.Output, "I can help you close")
	assert.NotContains(t, result.Output, "incident #99")
}

func TestSnapshotRefreshEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/snapshot/refresh", handlers.RefreshRequest{
		Actor: datatypes.Actor{ID: "actor-1"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp["own_tickets"])
	assert.EqualValues(t, datatypes.CurrentSchemaVersion, resp["schema_version"])
}

func TestCacheStatsAndInvalidateEndpoints(t *testing.T) {
	router := newTestRouter(t)

	// Populate the cache through a context build (ticket detail prefetch).
	doJSON(t, router, http.MethodPost, "/v1/snapshot/refresh", handlers.RefreshRequest{
		Actor: datatypes.Actor{ID: "actor-1"},
	})

	w := doJSON(t, router, http.MethodGet, "/v1/cache/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.EntriesByType["ticket_detail"])

	w = doJSON(t, router, http.MethodDelete, "/v1/cache", handlers.InvalidateRequest{Type: "ticket_detail"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/cache/stats", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.Entries)
}

func TestMonitorLifecycleEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/monitor", handlers.RefreshRequest{
		Actor: datatypes.Actor{ID: "actor-1"},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPut, "/v1/monitor/actor-1/watch", handlers.WatchRequest{
		IDs: []string{strings.Repeat("a", 32)},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/v1/monitor/actor-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/v1/monitor/actor-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPut, "/v1/monitor/ghost/watch", handlers.WatchRequest{IDs: nil})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
