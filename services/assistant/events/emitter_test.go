// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterDeliversToTypeSubscribers(t *testing.T) {
	e := NewEmitter()

	var got []*Event
	e.Subscribe(func(ev *Event) { got = append(got, ev) }, TypeRecordCreated)

	e.Emit(TypeRecordCreated, "actor-1", "payload")
	e.Emit(TypeRecordUpdated, "actor-1", "other")

	require.Len(t, got, 1)
	assert.Equal(t, TypeRecordCreated, got[0].Type)
	assert.Equal(t, "actor-1", got[0].ActorID)
	assert.Equal(t, "payload", got[0].Data)
	assert.NotEmpty(t, got[0].ID)
}

func TestEmitterActorFilter(t *testing.T) {
	e := NewEmitter()

	var got []*Event
	e.SubscribeWithFilter(
		func(ev *Event) { got = append(got, ev) },
		func(ev *Event) bool { return ev.ActorID == "actor-1" },
	)

	e.Emit(TypeRecordUpdated, "actor-1", nil)
	e.Emit(TypeRecordUpdated, "actor-2", nil)

	require.Len(t, got, 1)
	assert.Equal(t, "actor-1", got[0].ActorID)
}

func TestEmitterUnsubscribeStopsDelivery(t *testing.T) {
	e := NewEmitter()

	count := 0
	id := e.Subscribe(func(*Event) { count++ })
	e.Emit(TypeRecordCreated, "", nil)

	assert.True(t, e.Unsubscribe(id))
	assert.False(t, e.Unsubscribe(id), "second unsubscribe must report missing")

	e.Emit(TypeRecordCreated, "", nil)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, e.SubscriptionCount())
}

func TestEmitterRecoversHandlerPanic(t *testing.T) {
	e := NewEmitter()

	e.Subscribe(func(*Event) { panic("bad handler") })
	delivered := false
	e.Subscribe(func(*Event) { delivered = true })

	assert.NotPanics(t, func() { e.Emit(TypeRecordCreated, "", nil) })
	assert.True(t, delivered, "a panicking handler must not starve the others")
}

func TestEmitterBufferIsBoundedAndReplayable(t *testing.T) {
	e := NewEmitter(WithBufferSize(3))

	for i := 0; i < 5; i++ {
		e.Emit(TypeRecordUpdated, "actor-1", i)
	}

	buf := e.Buffer()
	require.Len(t, buf, 3)
	assert.Equal(t, 2, buf[0].Data, "oldest events fall off the buffer")

	assert.Empty(t, e.BufferSince(time.Now().Add(time.Minute)))
	assert.Len(t, e.BufferSince(time.Time{}), 3)
}

func TestEmitterConcurrentEmitAndSubscribe(t *testing.T) {
	e := NewEmitter()

	var mu sync.Mutex
	count := 0
	e.Subscribe(func(*Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				e.Emit(TypeRecordUpdated, "actor-1", nil)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 200, count)
}
