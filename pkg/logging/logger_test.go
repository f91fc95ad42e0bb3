// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}

func TestFileLoggingWritesJSON(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelDebug,
		LogDir:  dir,
		Service: "assistant",
		Quiet:   true,
	})
	defer logger.Close()

	logger.Info("snapshot refreshed", "entities", 8)

	filename := "assistant_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, filename))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "snapshot refreshed", entry["msg"])
	assert.Equal(t, "assistant", entry["service"])
	assert.EqualValues(t, 8, entry["entities"])
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "monitor",
		Quiet:   true,
	})
	defer logger.Close()

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")

	filename := "monitor_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, filename))
	require.NoError(t, err)
	assert.Contains(t, string(data), "kept")
	assert.NotContains(t, string(data), "dropped")
}

func TestWithAttachesAttributes(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		LogDir:  dir,
		Service: "assistant",
		Quiet:   true,
	})
	defer logger.Close()

	child := logger.With("actor_id", "actor-1")
	child.Info("monitor started")

	filename := "assistant_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, filename))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "actor-1", entry["actor_id"])
}

func TestCloseIsIdempotent(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Quiet: true})
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
}

func TestDefaultHasNoFileHandle(t *testing.T) {
	logger := Default()
	assert.Nil(t, logger.file)
	require.NoError(t, logger.Close())
}
