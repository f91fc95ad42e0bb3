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
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors for the remote client.
var (
	// ErrInvalidRetryConfig indicates a retry configuration that cannot
	// be executed (zero attempts, inverted backoff bounds).
	ErrInvalidRetryConfig = errors.New("invalid retry configuration")

	// ErrEmptyBaseURL indicates the client was constructed without a
	// platform base URL.
	ErrEmptyBaseURL = errors.New("base URL must not be empty")
)

// StatusError is a non-2xx platform response.
//
// The status code drives the retry taxonomy: 408, 429 and 5xx are
// transient; every other 4xx is permanent and is never retried.
type StatusError struct {
	// Op is the logical operation ("list employees", "get ticket").
	Op string

	// StatusCode is the HTTP status returned by the platform.
	StatusCode int
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: platform returned status %d", e.Op, e.StatusCode)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// IsRetryable classifies an error as transient (retry with backoff) or
// permanent (fail the attempt immediately).
//
// Transient: network timeouts, including per-call client timeouts, and
// StatusError values whose code is 408, 429 or 5xx. Caller cancellation
// and all other errors are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}

	// http.Client timeout errors match context.DeadlineExceeded, so the
	// net.Error timeout check must run before any context sentinel
	// test. Cancellation of the caller's own context is handled by the
	// retry loop's ctx checks, not here.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
