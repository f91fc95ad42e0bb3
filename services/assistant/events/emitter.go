// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events is the in-process pub/sub bus connecting the change
// monitor to its consumers.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies bus events.
type Type string

const (
	// TypeRecordCreated carries a batch of remote records seen for the
	// first time.
	TypeRecordCreated Type = "record_created"

	// TypeRecordUpdated carries a batch of remote records whose
	// modification stamps moved.
	TypeRecordUpdated Type = "record_updated"

	// TypeSnapshotRebuilt signals a completed snapshot rebuild.
	TypeSnapshotRebuilt Type = "snapshot_rebuilt"

	// TypeMonitorStarted signals polling began for an actor.
	TypeMonitorStarted Type = "monitor_started"

	// TypeMonitorStopped signals polling ended for an actor.
	TypeMonitorStopped Type = "monitor_stopped"
)

// Event is one bus message.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Type classifies the event.
	Type Type `json:"type"`

	// ActorID is the actor whose watch produced the event, when one did.
	ActorID string `json:"actor_id,omitempty"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// Data is event-specific payload, typically a datatypes.ChangeEvent.
	Data any `json:"data,omitempty"`
}

// Handler processes one event.
type Handler func(event *Event)

// Filter decides whether a subscription handles an event.
type Filter func(event *Event) bool

// Subscription is one registered handler.
type Subscription struct {
	// ID uniquely identifies this subscription.
	ID string

	// Handler processes matching events.
	Handler Handler

	// Filter limits delivery (nil = all events).
	Filter Filter

	// Types limits which event types to handle (nil = all types).
	Types []Type
}

// Emitter broadcasts events to subscribers and keeps a bounded replay
// buffer.
//
// Thread Safety: Emitter is safe for concurrent use.
type Emitter struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	buffer        []Event
	bufferSize    int
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithBufferSize sets the replay buffer size.
func WithBufferSize(size int) EmitterOption {
	return func(e *Emitter) {
		e.bufferSize = size
	}
}

// NewEmitter creates a new event emitter.
func NewEmitter(opts ...EmitterOption) *Emitter {
	e := &Emitter{
		subscriptions: make(map[string]*Subscription),
		bufferSize:    1000,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.buffer = make([]Event, 0, e.bufferSize)
	return e
}

// Subscribe registers a handler for events.
//
// Inputs:
//
//	handler - Function to call for each event.
//	types - Event types to subscribe to (nil = all types).
//
// Outputs:
//
//	string - Subscription ID for unsubscribing.
func (e *Emitter) Subscribe(handler Handler, types ...Type) string {
	return e.SubscribeWithFilter(handler, nil, types...)
}

// SubscribeWithFilter registers a handler with a custom filter, most
// commonly a per-actor filter on Event.ActorID.
func (e *Emitter) SubscribeWithFilter(handler Handler, filter Filter, types ...Type) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub := &Subscription{
		ID:      uuid.NewString(),
		Handler: handler,
		Filter:  filter,
		Types:   types,
	}
	e.subscriptions[sub.ID] = sub
	return sub.ID
}

// Unsubscribe removes a subscription.
//
// Outputs:
//
//	bool - True if the subscription was found and removed.
func (e *Emitter) Unsubscribe(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subscriptions[id]; ok {
		delete(e.subscriptions, id)
		return true
	}
	return false
}

// Emit broadcasts an event to all matching subscribers.
//
// Description:
//
//	The event is stamped, buffered, then delivered synchronously to
//	every matching subscriber. Handler panics are recovered so one
//	misbehaving consumer cannot take down the monitor's poll loop.
//
// Thread Safety: Safe for concurrent use.
func (e *Emitter) Emit(eventType Type, actorID string, data any) {
	e.mu.RLock()
	subs := make([]*Subscription, 0, len(e.subscriptions))
	for _, sub := range e.subscriptions {
		subs = append(subs, sub)
	}
	e.mu.RUnlock()

	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		ActorID:   actorID,
		Timestamp: time.Now(),
		Data:      data,
	}

	e.mu.Lock()
	if len(e.buffer) >= e.bufferSize {
		e.buffer = e.buffer[1:]
	}
	e.buffer = append(e.buffer, event)
	e.mu.Unlock()

	for _, sub := range subs {
		if e.shouldHandle(sub, &event) {
			e.safeInvokeHandler(sub.Handler, &event)
		}
	}
}

// safeInvokeHandler invokes a handler with panic recovery.
func (e *Emitter) safeInvokeHandler(handler Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked",
				"event_type", event.Type,
				"event_id", event.ID,
				"panic", r,
			)
		}
	}()
	handler(event)
}

// shouldHandle determines if a subscription should handle an event.
func (e *Emitter) shouldHandle(sub *Subscription, event *Event) bool {
	if len(sub.Types) > 0 {
		typeMatch := false
		for _, t := range sub.Types {
			if t == event.Type {
				typeMatch = true
				break
			}
		}
		if !typeMatch {
			return false
		}
	}
	if sub.Filter != nil && !sub.Filter(event) {
		return false
	}
	return true
}

// Buffer returns a copy of buffered events.
func (e *Emitter) Buffer() []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	events := make([]Event, len(e.buffer))
	copy(events, e.buffer)
	return events
}

// BufferSince returns buffered events newer than a timestamp.
func (e *Emitter) BufferSince(since time.Time) []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var events []Event
	for _, event := range e.buffer {
		if event.Timestamp.After(since) {
			events = append(events, event)
		}
	}
	return events
}

// SubscriptionCount returns the number of active subscriptions.
func (e *Emitter) SubscriptionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscriptions)
}

// Reset clears all subscriptions and the buffer.
func (e *Emitter) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.subscriptions = make(map[string]*Subscription)
	e.buffer = make([]Event, 0, e.bufferSize)
}
