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
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// runCacheStats prints cache statistics as indented JSON.
func runCacheStats(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()
	appLogger := newLogger(cfg, "cli")
	defer appLogger.Close()

	store, err := openStore(cfg, appLogger.Slog())
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer store.Close()

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(store.Stats()); err != nil {
		log.Fatalf("Failed to encode stats: %v", err)
	}
}

// runCacheClear drops all entries, or only one cache type when a
// positional argument is given. Blobs and sync stamps survive.
func runCacheClear(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()
	appLogger := newLogger(cfg, "cli")
	defer appLogger.Close()

	store, err := openStore(cfg, appLogger.Slog())
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer store.Close()

	cacheType := ""
	if len(args) > 0 {
		cacheType = args[0]
	}

	if err := store.Invalidate(cacheType, nil); err != nil {
		log.Fatalf("Failed to clear cache: %v", err)
	}

	if cacheType == "" {
		fmt.Println("Cleared all cached entries")
	} else {
		fmt.Printf("Cleared cached %q entries\n", cacheType)
	}
}
