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
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/datatypes"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/snapshot"
)

// runSnapshotRefresh rebuilds the local snapshot once and reports
// section counts. Stage progress is printed as it arrives.
func runSnapshotRefresh(cmd *cobra.Command, args []string) {
	if actorID == "" {
		log.Fatal("--actor-id is required")
	}

	cfg := mustLoadConfig()
	appLogger := newLogger(cfg, "cli")
	defer appLogger.Close()
	logger := appLogger.Slog()

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

	actor := datatypes.Actor{
		ID:    actorID,
		Email: actorEmail,
		Capabilities: datatypes.Capabilities{
			CanViewAllTickets: allTickets,
			CanViewAllUsers:   allUsers,
		},
	}

	snap, err := builder.Rebuild(context.Background(), actor, func(stage string, percent int, message string) {
		fmt.Printf("  [%3d%%] %-12s %s\n", percent, stage, message)
	})
	if err != nil {
		log.Fatalf("Snapshot rebuild failed: %v", err)
	}

	fmt.Printf("Snapshot rebuilt (schema v%d)\n", snap.SchemaVersion)
	fmt.Printf("  employees:        %d\n", len(snap.Employees))
	fmt.Printf("  incidents:        %d\n", len(snap.Incidents))
	fmt.Printf("  service requests: %d\n", len(snap.ServiceRequests))
	fmt.Printf("  own tickets:      %d\n", len(snap.OwnRequesterTickets))
	fmt.Printf("  categories:       %d\n", len(snap.Categories))
	fmt.Printf("  services:         %d\n", len(snap.Services))
	fmt.Printf("  teams:            %d\n", len(snap.Teams))
	fmt.Printf("  departments:      %d\n", len(snap.Departments))
	fmt.Printf("  roles:            %d\n", len(snap.Roles))
}
