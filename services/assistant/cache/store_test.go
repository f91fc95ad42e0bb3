// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewStore(InMemoryDBConfig(), opts, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type ticketStub struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestStoreSetGetRoundtrip(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	params := map[string]any{"requester": "u1", "status": "open"}

	s.Set(ctx, "tickets", params, ticketStub{ID: "abc", Title: "printer down"})

	got, ok := Get[ticketStub](ctx, s, "tickets", params)
	require.True(t, ok)
	assert.Equal(t, "abc", got.ID)
	assert.Equal(t, "printer down", got.Title)

	_, ok = Get[ticketStub](ctx, s, "tickets", map[string]any{"requester": "u2"})
	assert.False(t, ok)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.EntriesByType["tickets"])
}

func TestStoreExpiryIsLazyAndDeletes(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	params := map[string]any{"id": "x"}

	s.SetTTL(ctx, "tickets", params, ticketStub{ID: "x"}, 50*time.Millisecond)

	_, ok := Get[ticketStub](ctx, s, "tickets", params)
	require.True(t, ok, "entry should be readable inside its ttl")

	time.Sleep(80 * time.Millisecond)

	_, ok = Get[ticketStub](ctx, s, "tickets", params)
	assert.False(t, ok, "entry should expire after its ttl")

	stats := s.Stats()
	assert.Equal(t, 0, stats.Entries, "expired entry should be physically removed")
	assert.Equal(t, uint64(1), stats.Expired)
}

func TestStoreRejectsNonPositiveTTL(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	s.SetTTL(ctx, "tickets", nil, ticketStub{ID: "x"}, 0)
	s.SetTTL(ctx, "tickets", nil, ticketStub{ID: "x"}, -time.Second)

	assert.Equal(t, 0, s.Stats().Entries)
}

func TestStoreMalformedEntryPurgedOnRead(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	key := []byte(entryPrefix + DeriveKey("tickets", map[string]any{"id": "bad"}))
	broken := Entry{Key: "", Timestamp: 0, TTLMillis: 0, Data: json.RawMessage(`{}`)}
	encoded, err := json.Marshal(&broken)
	require.NoError(t, err)
	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, encoded)
	}))

	_, ok := Get[ticketStub](ctx, s, "tickets", map[string]any{"id": "bad"})
	assert.False(t, ok)
	assert.Equal(t, 0, s.Stats().Entries, "malformed entry should be deleted by the read")
}

func TestStoreEvictionAtTypeCapacity(t *testing.T) {
	s := newTestStore(t, Options{MaxEntriesPerType: 10})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		s.Set(ctx, "tickets", map[string]any{"id": fmt.Sprintf("t%02d", i)}, ticketStub{ID: fmt.Sprintf("t%02d", i)})
		time.Sleep(2 * time.Millisecond) // distinct timestamps
	}
	require.Equal(t, 10, s.Stats().EntriesByType["tickets"])

	// The write that finds the type full evicts the oldest 20% first.
	s.Set(ctx, "tickets", map[string]any{"id": "t10"}, ticketStub{ID: "t10"})

	stats := s.Stats()
	assert.Equal(t, 9, stats.EntriesByType["tickets"])
	assert.Equal(t, uint64(2), stats.Evicted)

	_, ok := Get[ticketStub](ctx, s, "tickets", map[string]any{"id": "t00"})
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = Get[ticketStub](ctx, s, "tickets", map[string]any{"id": "t10"})
	assert.True(t, ok, "newest entry should survive")
}

func TestStoreEvictionIsPerType(t *testing.T) {
	s := newTestStore(t, Options{MaxEntriesPerType: 5})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		s.Set(ctx, "tickets", map[string]any{"id": fmt.Sprintf("%d", i)}, ticketStub{})
		s.Set(ctx, "employees", map[string]any{"id": fmt.Sprintf("%d", i)}, ticketStub{})
	}
	// Fill tickets to capacity; employees stays under it.
	s.Set(ctx, "tickets", map[string]any{"id": "4"}, ticketStub{})
	s.Set(ctx, "tickets", map[string]any{"id": "5"}, ticketStub{})

	stats := s.Stats()
	assert.Equal(t, 4, stats.EntriesByType["employees"], "other types must be untouched")
	assert.Less(t, stats.EntriesByType["tickets"], 6)
}

func TestStoreInvalidateScopes(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	s.Set(ctx, "tickets", map[string]any{"id": "a"}, ticketStub{})
	s.Set(ctx, "tickets", map[string]any{"id": "b"}, ticketStub{})
	s.Set(ctx, "employees", map[string]any{"id": "c"}, ticketStub{})

	require.NoError(t, s.Invalidate("tickets", map[string]any{"id": "a"}))
	stats := s.Stats()
	assert.Equal(t, 1, stats.EntriesByType["tickets"])
	assert.Equal(t, 1, stats.EntriesByType["employees"])

	require.NoError(t, s.Invalidate("tickets", nil))
	stats = s.Stats()
	assert.Equal(t, 0, stats.EntriesByType["tickets"])
	assert.Equal(t, 1, stats.EntriesByType["employees"])

	require.NoError(t, s.Invalidate("", nil))
	assert.Equal(t, 0, s.Stats().Entries)
}

func TestStoreInvalidateSparesBlobsAndSyncStamps(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	s.Set(ctx, "tickets", map[string]any{"id": "a"}, ticketStub{})
	require.NoError(t, s.SetBlob("snapshot", []byte(`{"v":4}`)))
	require.NoError(t, s.SetLastSync("actor1", "tickets", time.Now()))

	require.NoError(t, s.Invalidate("", nil))

	_, ok := s.GetBlob("snapshot")
	assert.True(t, ok)
	_, ok = s.LastSync("actor1", "tickets")
	assert.True(t, ok)
}

func TestStorePurgeExpired(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	s.SetTTL(ctx, "tickets", map[string]any{"id": "a"}, ticketStub{}, 30*time.Millisecond)
	s.SetTTL(ctx, "tickets", map[string]any{"id": "b"}, ticketStub{}, time.Hour)
	time.Sleep(60 * time.Millisecond)

	purged := s.PurgeExpired()
	assert.Equal(t, 1, purged)
	assert.Equal(t, 1, s.Stats().Entries)
}

func TestStoreBlobRoundtrip(t *testing.T) {
	s := newTestStore(t, Options{})

	_, ok := s.GetBlob("snapshot")
	assert.False(t, ok)

	require.NoError(t, s.SetBlob("snapshot", []byte("first")))
	require.NoError(t, s.SetBlob("snapshot", []byte("second")))

	got, ok := s.GetBlob("snapshot")
	require.True(t, ok)
	assert.Equal(t, "second", string(got))

	require.NoError(t, s.DeleteBlob("snapshot"))
	_, ok = s.GetBlob("snapshot")
	assert.False(t, ok)
}

func TestStoreLastSyncRoundtrip(t *testing.T) {
	s := newTestStore(t, Options{})

	_, ok := s.LastSync("actor1", "tickets")
	assert.False(t, ok)

	stamp := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetLastSync("actor1", "tickets", stamp))

	got, ok := s.LastSync("actor1", "tickets")
	require.True(t, ok)
	assert.True(t, got.Equal(stamp))

	_, ok = s.LastSync("actor1", "employees")
	assert.False(t, ok, "stamps are scoped per resource")
}
