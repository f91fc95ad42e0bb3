// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package monitor polls the remote platform for record changes on
// behalf of active actors and publishes what it finds on the event
// bus.
//
// Polling is tiered per actor: explicitly watched records are checked
// on a fast cadence, the actor's own ticket set on a slower one. Each
// actor's watch runs in its own goroutines and is torn down through
// the handle Start returns, or Stop. Watched records that have not
// been refreshed within the watch TTL are pruned so abandoned watches
// do not poll forever.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/datatypes"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/events"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/remote"
)

// ErrNotStarted is returned when an operation names an actor with no
// running watch.
var ErrNotStarted = errors.New("monitor: no watch running for actor")

// Source is the slice of the remote client the monitor consumes.
type Source interface {
	GetTicket(ctx context.Context, id string) (*datatypes.Ticket, error)
	ListTicketsForRequester(ctx context.Context, requesterID string, opts remote.ListOptions) ([]datatypes.Ticket, error)
}

// Config tunes polling cadence and retention.
type Config struct {
	// WatchedInterval is the cadence for explicitly watched records.
	// Default: 30s.
	WatchedInterval time.Duration

	// OwnSetInterval is the cadence for the actor's own ticket set.
	// Default: 60s.
	OwnSetInterval time.Duration

	// WatchTTL is how long an unrefreshed watched record survives.
	// Default: 7 days.
	WatchTTL time.Duration

	// PageSize is the page size for own-set listings. Default: 100.
	PageSize int

	// MaxPages caps pages per own-set poll, so a remote that keeps
	// serving full pages cannot pin a poll tick forever. Default: 50.
	MaxPages int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		WatchedInterval: 30 * time.Second,
		OwnSetInterval:  60 * time.Second,
		WatchTTL:        7 * 24 * time.Hour,
		PageSize:        100,
		MaxPages:        50,
	}
}

// WatchedRecord tracks one explicitly watched record.
type WatchedRecord struct {
	// ID is the watched record's identifier.
	ID string `json:"id"`

	// LastKnownModifiedStamp is the newest modification time observed.
	LastKnownModifiedStamp time.Time `json:"last_known_modified_stamp"`

	// LastCheckedAt is when the record was last polled.
	LastCheckedAt time.Time `json:"last_checked_at"`

	// WatchedSince is when the record entered the watch set; the
	// prune TTL counts from here.
	WatchedSince time.Time `json:"watched_since"`
}

// Handle controls one actor's running watch.
type Handle struct {
	// ActorID names the actor this handle controls.
	ActorID string

	stop func()
	once sync.Once
}

// Stop tears down the watch. Safe to call more than once.
func (h *Handle) Stop() {
	h.once.Do(h.stop)
}

// actorWatch is the per-actor polling state.
type actorWatch struct {
	actor  datatypes.Actor
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	watched map[string]*WatchedRecord
	ownSeen map[string]time.Time
}

// Monitor owns every actor watch.
//
// Thread Safety: Safe for concurrent use.
type Monitor struct {
	source  Source
	emitter *events.Emitter
	cfg     Config
	logger  *slog.Logger

	mu      sync.Mutex
	watches map[string]*actorWatch
}

// NewMonitor constructs a Monitor publishing to emitter.
func NewMonitor(source Source, emitter *events.Emitter, cfg Config, logger *slog.Logger) *Monitor {
	def := DefaultConfig()
	if cfg.WatchedInterval <= 0 {
		cfg.WatchedInterval = def.WatchedInterval
	}
	if cfg.OwnSetInterval <= 0 {
		cfg.OwnSetInterval = def.OwnSetInterval
	}
	if cfg.WatchTTL <= 0 {
		cfg.WatchTTL = def.WatchTTL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}

	return &Monitor{
		source:  source,
		emitter: emitter,
		cfg:     cfg,
		logger:  logger,
		watches: make(map[string]*actorWatch),
	}
}

// Start begins polling for an actor and returns the stop handle.
// Starting an actor that is already watched replaces the previous
// watch wholesale.
func (m *Monitor) Start(actor datatypes.Actor) *Handle {
	m.mu.Lock()
	if existing, ok := m.watches[actor.ID]; ok {
		m.mu.Unlock()
		m.teardown(actor.ID, existing)
		m.mu.Lock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &actorWatch{
		actor:   actor,
		cancel:  cancel,
		watched: make(map[string]*WatchedRecord),
		ownSeen: make(map[string]time.Time),
	}
	m.watches[actor.ID] = w
	m.mu.Unlock()

	w.wg.Add(2)
	go m.runWatchedLoop(ctx, w)
	go m.runOwnSetLoop(ctx, w)

	m.emitter.Emit(events.TypeMonitorStarted, actor.ID, nil)
	m.logger.Info("monitor started", "actor", actor.ID)

	return &Handle{
		ActorID: actor.ID,
		stop:    func() { m.Stop(actor.ID) },
	}
}

// Stop tears down an actor's watch.
//
// Outputs:
//
//	bool - True if a watch was running.
func (m *Monitor) Stop(actorID string) bool {
	m.mu.Lock()
	w, ok := m.watches[actorID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.teardown(actorID, w)
	return true
}

// StopAll tears down every watch, for process shutdown.
func (m *Monitor) StopAll() {
	m.mu.Lock()
	watches := make(map[string]*actorWatch, len(m.watches))
	for id, w := range m.watches {
		watches[id] = w
	}
	m.mu.Unlock()

	for id, w := range watches {
		m.teardown(id, w)
	}
}

func (m *Monitor) teardown(actorID string, w *actorWatch) {
	w.cancel()
	w.wg.Wait()

	m.mu.Lock()
	if m.watches[actorID] == w {
		delete(m.watches, actorID)
	}
	m.mu.Unlock()

	m.emitter.Emit(events.TypeMonitorStopped, actorID, nil)
	m.logger.Info("monitor stopped", "actor", actorID)
}

// Watch replaces the actor's watched record set wholesale. Stamps and
// check times carry over for IDs present in both the old and new set,
// and re-watching an ID restarts its prune TTL; a watch the caller
// keeps asking for is not abandoned.
func (m *Monitor) Watch(actorID string, ids []string) error {
	m.mu.Lock()
	w, ok := m.watches[actorID]
	m.mu.Unlock()
	if !ok {
		return ErrNotStarted
	}

	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	next := make(map[string]*WatchedRecord, len(ids))
	for _, id := range ids {
		if prev, kept := w.watched[id]; kept {
			prev.WatchedSince = now
			next[id] = prev
			continue
		}
		next[id] = &WatchedRecord{ID: id, WatchedSince: now}
	}
	w.watched = next
	return nil
}

// Watched returns a copy of the actor's watched set.
func (m *Monitor) Watched(actorID string) ([]WatchedRecord, error) {
	m.mu.Lock()
	w, ok := m.watches[actorID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotStarted
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]WatchedRecord, 0, len(w.watched))
	for _, rec := range w.watched {
		out = append(out, *rec)
	}
	return out, nil
}

// OnChange subscribes a listener to record change events and returns
// its unsubscribe function. Each delivery is the batch of changes one
// poll pass found.
func (m *Monitor) OnChange(listener func(actorID string, changes []datatypes.ChangeEvent)) func() {
	id := m.emitter.Subscribe(func(ev *events.Event) {
		changes, ok := ev.Data.([]datatypes.ChangeEvent)
		if !ok || len(changes) == 0 {
			return
		}
		listener(ev.ActorID, changes)
	}, events.TypeRecordCreated, events.TypeRecordUpdated)

	return func() { m.emitter.Unsubscribe(id) }
}

// runWatchedLoop is the fast tier: explicitly watched records.
func (m *Monitor) runWatchedLoop(ctx context.Context, w *actorWatch) {
	defer w.wg.Done()

	ticker := time.NewTicker(m.cfg.WatchedInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollWatched(ctx, w)
		}
	}
}

// runOwnSetLoop is the slow tier: the actor's own ticket set.
func (m *Monitor) runOwnSetLoop(ctx context.Context, w *actorWatch) {
	defer w.wg.Done()

	// Prime the seen set so a fresh watch does not report the entire
	// existing backlog as created.
	m.pollOwnSet(ctx, w, true)

	ticker := time.NewTicker(m.cfg.OwnSetInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOwnSet(ctx, w, false)
		}
	}
}

// pollWatched checks each watched record's modification stamp and
// prunes entries past the watch TTL.
func (m *Monitor) pollWatched(ctx context.Context, w *actorWatch) {
	now := time.Now()

	w.mu.Lock()
	batch := make([]*WatchedRecord, 0, len(w.watched))
	for id, rec := range w.watched {
		if now.Sub(rec.WatchedSince) > m.cfg.WatchTTL {
			delete(w.watched, id)
			m.logger.Debug("pruned expired watch", "actor", w.actor.ID, "id", id)
			continue
		}
		batch = append(batch, rec)
	}
	w.mu.Unlock()

	var changes []datatypes.ChangeEvent
	for _, rec := range batch {
		if ctx.Err() != nil {
			return
		}
		ticket, err := m.source.GetTicket(ctx, rec.ID)
		if err != nil {
			m.logger.Debug("watched record poll failed", "actor", w.actor.ID, "id", rec.ID, "error", err)
			continue
		}

		w.mu.Lock()
		current, still := w.watched[rec.ID]
		if !still {
			w.mu.Unlock()
			continue
		}
		changed := !current.LastKnownModifiedStamp.IsZero() && ticket.UpdatedAt.After(current.LastKnownModifiedStamp)
		current.LastKnownModifiedStamp = ticket.UpdatedAt
		current.LastCheckedAt = now
		w.mu.Unlock()

		if changed {
			changes = append(changes, datatypes.ChangeEvent{
				Type:      datatypes.ChangeUpdated,
				ID:        ticket.ID,
				Timestamp: ticket.UpdatedAt,
			})
		}
	}

	if len(changes) > 0 {
		m.emitter.Emit(events.TypeRecordUpdated, w.actor.ID, changes)
	}
}

// pollOwnSet lists the actor's own tickets and diffs against the last
// observation. When prime is true the observation is recorded without
// emitting, so startup does not replay history.
func (m *Monitor) pollOwnSet(ctx context.Context, w *actorWatch, prime bool) {
	seen := make(map[string]time.Time)
	var created, updated []datatypes.ChangeEvent
	for page := 0; page < m.cfg.MaxPages; page++ {
		if ctx.Err() != nil {
			return
		}
		batch, err := m.source.ListTicketsForRequester(ctx, w.actor.ID, remote.ListOptions{
			Offset: page * m.cfg.PageSize,
			Limit:  m.cfg.PageSize,
		})
		if err != nil {
			m.logger.Debug("own set poll failed", "actor", w.actor.ID, "error", err)
			return
		}
		for _, t := range batch {
			seen[t.ID] = t.UpdatedAt

			if prime {
				continue
			}
			w.mu.Lock()
			prev, known := w.ownSeen[t.ID]
			w.mu.Unlock()

			switch {
			case !known:
				created = append(created, datatypes.ChangeEvent{
					Type:      datatypes.ChangeCreated,
					ID:        t.ID,
					Timestamp: t.CreatedAt,
				})
			case t.UpdatedAt.After(prev):
				updated = append(updated, datatypes.ChangeEvent{
					Type:      datatypes.ChangeUpdated,
					ID:        t.ID,
					Timestamp: t.UpdatedAt,
				})
			}
		}
		if len(batch) < m.cfg.PageSize {
			break
		}
	}

	if len(created) > 0 {
		m.emitter.Emit(events.TypeRecordCreated, w.actor.ID, created)
	}
	if len(updated) > 0 {
		m.emitter.Emit(events.TypeRecordUpdated, w.actor.ID, updated)
	}

	// Wholesale replacement: tickets that vanished from the listing
	// drop out of the observation instead of lingering.
	w.mu.Lock()
	w.ownSeen = seen
	w.mu.Unlock()
}
