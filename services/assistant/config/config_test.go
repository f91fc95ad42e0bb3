// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8870, cfg.Server.Port)
	assert.Equal(t, "advisory", cfg.Grounding.Mode)
	assert.Equal(t, 30*time.Second, cfg.Monitor.WatchedInterval.Std())
	assert.Equal(t, 1000, cfg.Cache.MaxEntriesPerType)
	assert.Equal(t, "prometheus", cfg.Telemetry.MetricExporter)
	assert.Equal(t, "none", cfg.Telemetry.TraceExporter)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9000
  mode: debug
remote:
  base_url: https://itsm.corp.example/api
  request_timeout: 30s
  requests_per_second: 2
  max_retry_attempts: 5
grounding:
  mode: corrective
monitor:
  watched_interval: 15s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "https://itsm.corp.example/api", cfg.Remote.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Remote.RequestTimeout.Std())
	assert.Equal(t, "corrective", cfg.Grounding.Mode)
	assert.Equal(t, 15*time.Second, cfg.Monitor.WatchedInterval.Std())

	// Untouched sections keep defaults.
	assert.Equal(t, 100, cfg.Snapshot.PageSize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad port":           "server:\n  host: x\n  port: 99999\n  mode: release\n",
		"bad mode":           "server:\n  host: x\n  port: 80\n  mode: loud\n",
		"bad grounding mode": "grounding:\n  mode: strict\n",
		"bad url":            "remote:\n  base_url: not-a-url\n",
		"bad duration":       "monitor:\n  watched_interval: soon\n",
		"zero ttl":           "cache:\n  default_ttl: 0s\n",
		"bad digest bound":   "digest:\n  max_ticket_lines: 5\n",
		"bad trace exporter": "telemetry:\n  trace_exporter: jaeger\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
