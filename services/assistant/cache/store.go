// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the persistent TTL cache backing the
// assistant's grounding pipeline.
//
// Entries are stored in an embedded BadgerDB instance, one key per
// entry, wrapped in a validated envelope (key, timestamp, ttl, data).
// Expiry is lazy: an expired entry is deleted by the read that
// discovers it. Capacity is enforced per cache type: before a write,
// if a type already holds the configured maximum, the oldest 20% of
// its entries are evicted.
//
// Caching is strictly best-effort. Writes never propagate errors to
// the caller: a rejected write triggers one global purge of expired
// entries and a single retry, after which the value is simply not
// cached.
//
// The same store also holds the versioned snapshot blob and the
// per-(actor, resource) last-sync stamps used for incremental fetches.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes partition the store's key space.
const (
	entryPrefix = "e/"
	blobPrefix  = "b/"
	syncPrefix  = "s/"
)

// Entry is the persisted envelope around one cached value.
//
// An entry is valid only if it has a positive timestamp, a positive
// TTL and a non-empty key; anything else is treated as absent and
// purged on read.
type Entry struct {
	// Key is the derived storage key, repeated inside the envelope so
	// a corrupted record is detectable.
	Key string `json:"key"`

	// Timestamp is the write time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// TTLMillis is the entry's time to live in milliseconds.
	TTLMillis int64 `json:"ttl_ms"`

	// Data is the sanitized cached value.
	Data json.RawMessage `json:"data"`
}

// valid reports whether the envelope passes read-time validation.
func (e *Entry) valid() bool {
	return e.Timestamp > 0 && e.TTLMillis > 0 && e.Key != ""
}

// expiredAt reports whether the entry has outlived its TTL.
func (e *Entry) expiredAt(now time.Time) bool {
	age := now.UnixMilli() - e.Timestamp
	return age >= e.TTLMillis
}

// Options configure cache behavior.
type Options struct {
	// MaxEntriesPerType caps how many entries one cache type may hold
	// before the oldest 20% are evicted. Default: 1000.
	MaxEntriesPerType int

	// DefaultTTL applies when Set is called without an override.
	// Default: 5 minutes.
	DefaultTTL time.Duration
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		MaxEntriesPerType: 1000,
		DefaultTTL:        5 * time.Minute,
	}
}

// evictFraction is the share of a full type evicted before a write.
const evictFraction = 0.2

// Stats summarizes cache state and activity since process start.
type Stats struct {
	Entries       int            `json:"entries"`
	EntriesByType map[string]int `json:"entries_by_type"`
	Hits          uint64         `json:"hits"`
	Misses        uint64         `json:"misses"`
	Expired       uint64         `json:"expired"`
	Evicted       uint64         `json:"evicted"`
	DroppedWrites uint64         `json:"dropped_writes"`
}

// Store is the persistent TTL cache.
//
// Thread Safety: Safe for concurrent use. Writers to the same key race
// last-write-wins, which is acceptable for a best-effort cache.
type Store struct {
	db     *badger.DB
	opts   Options
	logger *slog.Logger
	gc     *gcRunner

	hits    atomic.Uint64
	misses  atomic.Uint64
	expired atomic.Uint64
	evicted atomic.Uint64
	dropped atomic.Uint64
}

// NewStore opens the backing database and returns the cache store.
//
// Inputs:
//
//	dbCfg - BadgerDB configuration (use InMemoryDBConfig for tests).
//	opts - Cache options; zero values take defaults.
//	logger - Structured logger. Must not be nil.
//
// Outputs:
//
//	*Store - The opened store. Caller must Close() it.
//	error - Non-nil if the database cannot be opened.
func NewStore(dbCfg DBConfig, opts Options, logger *slog.Logger) (*Store, error) {
	if opts.MaxEntriesPerType <= 0 {
		opts.MaxEntriesPerType = DefaultOptions().MaxEntriesPerType
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultOptions().DefaultTTL
	}

	db, err := openDB(dbCfg)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:     db,
		opts:   opts,
		logger: logger,
	}

	if dbCfg.GCInterval > 0 && !dbCfg.InMemory {
		s.gc = newGCRunner(db, dbCfg.GCInterval, dbCfg.GCDiscardRatio, logger)
		s.gc.start()
	}

	return s, nil
}

// Close stops background GC and closes the database.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// GetRaw returns the cached value for (cacheType, params), or false on
// a miss. An entry that fails validation or has expired is deleted as
// a side effect and reported as a miss.
func (s *Store) GetRaw(ctx context.Context, cacheType string, params map[string]any) (json.RawMessage, bool) {
	if err := ctx.Err(); err != nil {
		return nil, false
	}

	storageKey := []byte(entryPrefix + DeriveKey(cacheType, params))

	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storageKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		s.misses.Add(1)
		return nil, false
	}

	if !entry.valid() {
		s.deleteKey(storageKey)
		s.logger.Warn("purged malformed cache entry", "key", string(storageKey))
		s.misses.Add(1)
		return nil, false
	}

	if entry.expiredAt(time.Now()) {
		s.deleteKey(storageKey)
		s.expired.Add(1)
		s.misses.Add(1)
		return nil, false
	}

	s.hits.Add(1)
	return entry.Data, true
}

// Get retrieves and decodes a cached value.
//
// Outputs:
//
//	T - The decoded value (zero value on miss).
//	bool - True on a hit with a decodable value.
func Get[T any](ctx context.Context, s *Store, cacheType string, params map[string]any) (T, bool) {
	var out T
	raw, ok := s.GetRaw(ctx, cacheType, params)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		s.logger.Warn("cache entry failed decode", "type", cacheType, "error", err)
		return out, false
	}
	return out, true
}

// Set caches data under (cacheType, params) with the default TTL.
//
// Set never fails: caching problems are logged and the value is
// dropped so the caller's primary operation is unaffected.
func (s *Store) Set(ctx context.Context, cacheType string, params map[string]any, data any) {
	s.SetTTL(ctx, cacheType, params, data, s.opts.DefaultTTL)
}

// SetTTL caches data with an explicit TTL. Non-positive TTLs are
// rejected (the entry would be unreadable anyway).
func (s *Store) SetTTL(ctx context.Context, cacheType string, params map[string]any, data any, ttl time.Duration) {
	if ttl <= 0 {
		s.logger.Warn("refusing cache write with non-positive ttl", "type", cacheType)
		return
	}
	if err := ctx.Err(); err != nil {
		return
	}

	rawData, err := json.Marshal(data)
	if err != nil {
		s.logger.Warn("cache value failed encode", "type", cacheType, "error", err)
		return
	}

	key := DeriveKey(cacheType, params)
	entry := Entry{
		Key:       key,
		Timestamp: time.Now().UnixMilli(),
		TTLMillis: ttl.Milliseconds(),
		Data:      sanitizeJSON(rawData),
	}
	encoded, err := json.Marshal(&entry)
	if err != nil {
		s.logger.Warn("cache entry failed encode", "type", cacheType, "error", err)
		return
	}

	s.evictIfFull(cacheType)

	storageKey := []byte(entryPrefix + key)
	writeErr := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storageKey, encoded)
	})
	if writeErr == nil {
		return
	}

	// Quota recovery: purge everything expired, then retry exactly once.
	purged := s.PurgeExpired()
	s.logger.Warn("cache write rejected, purged expired entries and retrying",
		"type", cacheType, "purged", purged, "error", writeErr)

	writeErr = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storageKey, encoded)
	})
	if writeErr != nil {
		s.dropped.Add(1)
		s.logger.Error("cache write dropped after retry", "type", cacheType, "error", writeErr)
	}
}

// Invalidate removes cached entries.
//
// Description:
//
//	With both arguments zero, every cache entry is removed. With only
//	cacheType, all entries of that type are removed. With params as
//	well, only the single derived key is removed. Snapshot blobs and
//	last-sync stamps are never touched.
func (s *Store) Invalidate(cacheType string, params map[string]any) error {
	switch {
	case cacheType == "":
		return s.deletePrefix([]byte(entryPrefix))
	case params == nil:
		return s.deletePrefix([]byte(entryPrefix + cacheType + "::"))
	default:
		return s.deleteKey([]byte(entryPrefix + DeriveKey(cacheType, params)))
	}
}

// Stats returns entry counts and activity counters.
func (s *Store) Stats() Stats {
	stats := Stats{
		EntriesByType: make(map[string]int),
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Expired:       s.expired.Load(),
		Evicted:       s.evicted.Load(),
		DroppedWrites: s.dropped.Load(),
	}

	s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			stats.Entries++
			key := string(it.Item().Key())
			if typeName, ok := typeFromStorageKey(key); ok {
				stats.EntriesByType[typeName]++
			}
		}
		return nil
	})

	return stats
}

// PurgeExpired deletes every expired entry across all types and
// returns how many were removed.
func (s *Store) PurgeExpired() int {
	now := time.Now()
	var doomed [][]byte

	s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var entry Entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil || !entry.valid() || entry.expiredAt(now) {
				doomed = append(doomed, item.KeyCopy(nil))
			}
		}
		return nil
	})

	for _, key := range doomed {
		s.deleteKey(key)
	}
	if len(doomed) > 0 {
		s.expired.Add(uint64(len(doomed)))
	}
	return len(doomed)
}

// evictIfFull enforces the per-type capacity before a write.
func (s *Store) evictIfFull(cacheType string) {
	prefix := []byte(entryPrefix + cacheType + "::")

	type aged struct {
		key       []byte
		timestamp int64
	}
	var entries []aged

	s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var entry Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				entry.Timestamp = 0 // malformed sorts first
			}
			entries = append(entries, aged{key: item.KeyCopy(nil), timestamp: entry.Timestamp})
		}
		return nil
	})

	if len(entries) < s.opts.MaxEntriesPerType {
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].timestamp < entries[j].timestamp
	})

	evictCount := int(float64(s.opts.MaxEntriesPerType) * evictFraction)
	if evictCount < 1 {
		evictCount = 1
	}
	if evictCount > len(entries) {
		evictCount = len(entries)
	}

	for _, victim := range entries[:evictCount] {
		s.deleteKey(victim.key)
	}
	s.evicted.Add(uint64(evictCount))
	s.logger.Debug("evicted oldest cache entries", "type", cacheType, "count", evictCount)
}

// deleteKey removes one key, ignoring not-found.
func (s *Store) deleteKey(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// deletePrefix removes every key under a prefix in batches.
func (s *Store) deletePrefix(prefix []byte) error {
	var doomed [][]byte
	s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			doomed = append(doomed, it.Item().KeyCopy(nil))
		}
		return nil
	})

	for _, key := range doomed {
		if err := s.deleteKey(key); err != nil {
			return err
		}
	}
	return nil
}

// typeFromStorageKey extracts the cache type from "e/type::rest".
func typeFromStorageKey(key string) (string, bool) {
	trimmed := strings.TrimPrefix(key, entryPrefix)
	idx := strings.Index(trimmed, "::")
	if idx <= 0 {
		return "", false
	}
	return trimmed[:idx], true
}

// SetBlob stores an opaque document (the versioned snapshot) under a
// single well-known key, replacing any previous value.
func (s *Store) SetBlob(name string, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(blobPrefix+name), data)
	})
}

// GetBlob returns a stored document, or false if absent.
func (s *Store) GetBlob(name string) ([]byte, bool) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(blobPrefix + name))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false
	}
	return out, true
}

// DeleteBlob discards a stored document.
func (s *Store) DeleteBlob(name string) error {
	return s.deleteKey([]byte(blobPrefix + name))
}

// SetLastSync records the last successful fetch time for an
// (actor, resource) pair, enabling incremental fetches.
func (s *Store) SetLastSync(actorID, resource string, t time.Time) error {
	key := []byte(syncPrefix + actorID + "/" + resource)
	value := []byte(strconv.FormatInt(t.UnixMilli(), 10))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// LastSync returns the recorded fetch time for an (actor, resource)
// pair, or false if none is recorded.
func (s *Store) LastSync(actorID, resource string) (time.Time, bool) {
	key := []byte(syncPrefix + actorID + "/" + resource)
	var millis int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var parseErr error
			millis, parseErr = strconv.ParseInt(string(val), 10, 64)
			return parseErr
		})
	})
	if err != nil || millis <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}
