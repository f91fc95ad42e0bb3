// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/assembler"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/events"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/grounding"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/monitor"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/routes"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/snapshot"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/telemetry"
)

const serverVersion = "0.1.0"

// shutdownGrace bounds how long in-flight requests may finish after a
// termination signal.
const shutdownGrace = 10 * time.Second

// runServe wires the full service graph and blocks until shutdown.
func runServe(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()

	appLogger := newLogger(cfg, "assistant")
	defer appLogger.Close()
	logger := appLogger.Slog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.ServiceVersion = serverVersion
	telemetryCfg.MetricExporter = cfg.Telemetry.MetricExporter
	telemetryCfg.TraceExporter = cfg.Telemetry.TraceExporter
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	store, err := openStore(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer store.Close()

	client, err := newRemoteClient(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create platform client: %v", err)
	}

	builder, err := snapshot.NewBuilder(client, store, snapshot.Config{
		PageSize:          cfg.Snapshot.PageSize,
		MaxPages:          cfg.Snapshot.MaxPages,
		MaxPagesPerProbe:  cfg.Snapshot.MaxPagesPerProbe,
		DetailConcurrency: cfg.Snapshot.DetailConcurrency,
		Freshness:         cfg.Snapshot.Freshness.Std(),
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create snapshot builder: %v", err)
	}

	asm := assembler.New(assembler.Config{
		MaxTicketLines:   cfg.Digest.MaxTicketLines,
		MaxEmployeeLines: cfg.Digest.MaxEmployeeLines,
		MaxCatalogLines:  cfg.Digest.MaxCatalogLines,
	}, logger)

	validator := grounding.NewValidator(grounding.Config{
		Mode: grounding.Mode(cfg.Grounding.Mode),
	}, logger)

	emitter := events.NewEmitter()
	mon := monitor.NewMonitor(client, emitter, monitor.Config{
		WatchedInterval: cfg.Monitor.WatchedInterval.Std(),
		OwnSetInterval:  cfg.Monitor.OwnSetInterval.Std(),
		WatchTTL:        cfg.Monitor.WatchTTL.Std(),
		PageSize:        cfg.Snapshot.PageSize,
		MaxPages:        cfg.Snapshot.MaxPages,
	}, logger)
	defer mon.StopAll()

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(telemetryCfg.ServiceName))
	routes.SetupRoutes(router, routes.Deps{
		Store:     store,
		Builder:   builder,
		Assembler: asm,
		Validator: validator,
		Monitor:   mon,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("assistant server starting",
			"addr", server.Addr,
			"remote", cfg.Remote.BaseURL,
			"grounding_mode", cfg.Grounding.Mode,
			"version", serverVersion)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("assistant server stopped")
}
