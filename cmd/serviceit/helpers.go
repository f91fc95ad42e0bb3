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
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/pkg/logging"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/cache"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/config"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/remote"
)

// mustLoadConfig loads and validates configuration, exiting on failure.
// Subcommands share one config path flag and one failure mode.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	return cfg
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg *config.Config, service string) *logging.Logger {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: service,
		JSON:    cfg.Logging.JSON,
	})
}

// openStore opens the persistent cache described by the config.
func openStore(cfg *config.Config, logger *slog.Logger) (*cache.Store, error) {
	var dbCfg cache.DBConfig
	if cfg.Cache.InMemory {
		dbCfg = cache.InMemoryDBConfig()
	} else {
		dbCfg = cache.DefaultDBConfig(expandPath(cfg.Cache.Path))
		dbCfg.GCInterval = cfg.Cache.GCInterval.Std()
	}
	dbCfg.Logger = logger

	return cache.NewStore(dbCfg, cache.Options{
		MaxEntriesPerType: cfg.Cache.MaxEntriesPerType,
		DefaultTTL:        cfg.Cache.DefaultTTL.Std(),
	}, logger)
}

// newRemoteClient builds the platform client from the remote section.
func newRemoteClient(cfg *config.Config, logger *slog.Logger) (*remote.Client, error) {
	retry := remote.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Remote.MaxRetryAttempts

	return remote.NewClient(remote.Config{
		BaseURL:           cfg.Remote.BaseURL,
		APIToken:          cfg.Remote.APIToken,
		RequestTimeout:    cfg.Remote.RequestTimeout.Std(),
		RequestsPerSecond: cfg.Remote.RequestsPerSecond,
		Retry:             retry,
	}, logger)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
