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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath    string
	actorID       string
	actorEmail    string
	allTickets    bool
	allUsers      bool
	factsPath     string
	responseIn    string
	groundingMode string

	rootCmd = &cobra.Command{
		Use:   "serviceit",
		Short: "A grounded conversational assistant layer for ITSM platforms",
		Long: `ServiceIT maintains a local snapshot of a remote ticketing
platform, assembles capability-gated context digests for a language
model, and validates model responses against disclosed facts.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the assistant HTTP server",
		Run:   runServe,
	}

	// --- Snapshot ---
	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Operate on the local platform snapshot",
	}
	snapshotRefreshCmd = &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the snapshot from the remote platform",
		Run:   runSnapshotRefresh,
	}

	// --- Cache ---
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the persistent cache",
	}
	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print cache entry counts and hit statistics",
		Run:   runCacheStats,
	}
	cacheClearCmd = &cobra.Command{
		Use:   "clear [type]",
		Short: "Drop cached entries, optionally scoped to one cache type",
		Args:  cobra.MaximumNArgs(1),
		Run:   runCacheClear,
	}

	// --- Grounding ---
	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Check a response against a grounded fact set",
		Long: `Reads a candidate response (from --response or stdin) and a
JSON fact set file, runs the grounding checkers, and prints the result.`,
		Run: runValidate,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults apply when empty)")

	snapshotRefreshCmd.Flags().StringVar(&actorID, "actor-id", "", "acting user record id (required)")
	snapshotRefreshCmd.Flags().StringVar(&actorEmail, "actor-email", "", "acting user email")
	snapshotRefreshCmd.Flags().BoolVar(&allTickets, "all-tickets", false, "actor may list tickets across all requesters")
	snapshotRefreshCmd.Flags().BoolVar(&allUsers, "all-users", false, "actor may list the employee directory")

	validateCmd.Flags().StringVar(&responseIn, "response", "", "candidate response text (stdin when empty)")
	validateCmd.Flags().StringVar(&factsPath, "facts", "", "path to a JSON grounded fact set")
	validateCmd.Flags().StringVar(&groundingMode, "mode", "", "override grounding mode (advisory or corrective)")

	snapshotCmd.AddCommand(snapshotRefreshCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(serveCmd, snapshotCmd, cacheCmd, validateCmd)
}
