// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryableClassification(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.False(t, IsRetryable(context.Canceled))

	assert.True(t, IsRetryable(&StatusError{Op: "list", StatusCode: http.StatusRequestTimeout}))
	assert.True(t, IsRetryable(&StatusError{Op: "list", StatusCode: http.StatusTooManyRequests}))
	assert.True(t, IsRetryable(&StatusError{Op: "list", StatusCode: http.StatusBadGateway}))
	assert.False(t, IsRetryable(&StatusError{Op: "list", StatusCode: http.StatusForbidden}))
	assert.False(t, IsRetryable(&StatusError{Op: "list", StatusCode: http.StatusNotFound}))

	wrapped := fmt.Errorf("list employees: %w", &StatusError{Op: "list employees", StatusCode: 503})
	assert.True(t, IsRetryable(wrapped))
}

// Client timeouts surface as url.Error values that both implement
// net.Error and match context.DeadlineExceeded. They must classify as
// transient.
func TestClientTimeoutClassifiesTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 20 * time.Millisecond}
	_, err := client.Get(srv.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.True(t, IsRetryable(err), "per-call client timeouts are the canonical transient failure")
}

func TestClientTimeoutIsRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL)
	cfg.RequestTimeout = 20 * time.Millisecond
	cfg.RequestsPerSecond = 100
	cfg.Retry = RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}

	client, err := NewClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	_, err = client.ListEmployees(context.Background(), ListOptions{Limit: 10})
	require.Error(t, err)
	assert.EqualValues(t, 3, hits.Load(), "every attempt the policy allows must be spent")
}

func TestPermanentStatusIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL)
	cfg.Retry = RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}

	client, err := NewClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	_, err = client.ListEmployees(context.Background(), ListOptions{Limit: 10})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.EqualValues(t, 1, hits.Load())
}
