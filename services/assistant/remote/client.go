// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package remote is the boundary to the ticketing/ITSM platform's REST
// listing API.
//
// Every call is paced by a shared rate limiter, bounded by a fixed
// per-call timeout, and retried with exponential backoff for transient
// failures only (timeout, 408/429/5xx). Records are decoded into the
// typed structs from datatypes before they enter the core; records that
// fail the boundary check are dropped with a warning rather than passed
// through untyped.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/datatypes"
)

// ListOptions control one page of a listing call.
type ListOptions struct {
	// Offset is the zero-based index of the first record to return.
	Offset int

	// Limit is the page size. The platform may silently return fewer.
	Limit int

	// Query is an optional substring filter applied server-side.
	Query string
}

// Config configures the platform client.
type Config struct {
	// BaseURL is the platform API root, e.g. "https://itsm.example.com/api/v1".
	BaseURL string

	// RequestTimeout bounds each individual HTTP call.
	// Default: 15s
	RequestTimeout time.Duration

	// RequestsPerSecond paces outbound calls. Default: 5.
	RequestsPerSecond float64

	// Retry controls the backoff policy for transient failures.
	Retry RetryConfig

	// APIToken is sent as a bearer token when non-empty.
	APIToken string
}

// DefaultConfig returns production defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:           baseURL,
		RequestTimeout:    15 * time.Second,
		RequestsPerSecond: 5,
		Retry:             DefaultRetryConfig(),
	}
}

// Client fetches records from the ticketing platform.
//
// Thread Safety: Safe for concurrent use after construction.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a platform client.
//
// Inputs:
//
//	cfg - Client configuration. BaseURL is required.
//	logger - Structured logger. Must not be nil.
//
// Outputs:
//
//	*Client - The configured client.
//	error - Non-nil if cfg is invalid.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if err := cfg.Retry.Validate(); err != nil {
		cfg.Retry = DefaultRetryConfig()
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1),
		logger:  logger,
	}, nil
}

// listEnvelope is the platform's collection response shape.
type listEnvelope struct {
	Value json.RawMessage `json:"value"`
}

// get performs one rate-limited, retried GET and returns the raw
// collection payload.
func (c *Client) get(ctx context.Context, op, path string, query url.Values) (json.RawMessage, error) {
	var payload json.RawMessage

	_, err := Retry(ctx, c.cfg.Retry, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		u := c.cfg.BaseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("%s: building request: %w", op, err)
		}
		req.Header.Set("Accept", "application/json")
		if c.cfg.APIToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			io.Copy(io.Discard, resp.Body)
			return &StatusError{Op: op, StatusCode: resp.StatusCode}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: reading body: %w", op, err)
		}

		var env listEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			// Malformed response is a permanent error class.
			return fmt.Errorf("%s: decoding envelope: %w", op, err)
		}
		if env.Value != nil {
			payload = env.Value
		} else {
			// Some endpoints return a bare array.
			payload = body
		}

		if attempt > 1 {
			c.logger.Info("platform call succeeded after retry", "op", op, "attempt", attempt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func listQuery(opts ListOptions) url.Values {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(opts.Offset))
	q.Set("limit", strconv.Itoa(opts.Limit))
	if opts.Query != "" {
		q.Set("query", opts.Query)
	}
	return q
}

// decodeRecords decodes a collection payload and drops records that
// fail the boundary check (empty identifier). Dropped records are
// logged, never propagated.
func decodeRecords[T interface{ RecordID() string }](logger *slog.Logger, op string, payload json.RawMessage) ([]T, error) {
	var records []T
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("%s: decoding records: %w", op, err)
	}

	valid := records[:0]
	dropped := 0
	for _, r := range records {
		if r.RecordID() == "" {
			dropped++
			continue
		}
		valid = append(valid, r)
	}
	if dropped > 0 {
		logger.Warn("dropped records without identifiers", "op", op, "count", dropped)
	}
	return valid, nil
}

// list is the shared body of every typed listing method.
func list[T interface{ RecordID() string }](ctx context.Context, c *Client, op, path string, opts ListOptions) ([]T, error) {
	payload, err := c.get(ctx, op, path, listQuery(opts))
	if err != nil {
		return nil, err
	}
	return decodeRecords[T](c.logger, op, payload)
}

// ListEmployees returns one page of the employee directory.
func (c *Client) ListEmployees(ctx context.Context, opts ListOptions) ([]datatypes.Employee, error) {
	return list[datatypes.Employee](ctx, c, "list employees", "/employees", opts)
}

// ListIncidents returns one page of incidents.
func (c *Client) ListIncidents(ctx context.Context, opts ListOptions) ([]datatypes.Ticket, error) {
	return list[datatypes.Ticket](ctx, c, "list incidents", "/incidents", opts)
}

// ListServiceRequests returns one page of service requests.
func (c *Client) ListServiceRequests(ctx context.Context, opts ListOptions) ([]datatypes.Ticket, error) {
	return list[datatypes.Ticket](ctx, c, "list service requests", "/service_requests", opts)
}

// ListCategories returns one page of ticket categories.
func (c *Client) ListCategories(ctx context.Context, opts ListOptions) ([]datatypes.Category, error) {
	return list[datatypes.Category](ctx, c, "list categories", "/categories", opts)
}

// ListServices returns one page of the service catalog.
func (c *Client) ListServices(ctx context.Context, opts ListOptions) ([]datatypes.Service, error) {
	return list[datatypes.Service](ctx, c, "list services", "/services", opts)
}

// ListTeams returns one page of fulfillment teams.
func (c *Client) ListTeams(ctx context.Context, opts ListOptions) ([]datatypes.Team, error) {
	return list[datatypes.Team](ctx, c, "list teams", "/teams", opts)
}

// ListDepartments returns one page of departments.
func (c *Client) ListDepartments(ctx context.Context, opts ListOptions) ([]datatypes.Department, error) {
	return list[datatypes.Department](ctx, c, "list departments", "/departments", opts)
}

// ListRoles returns one page of roles.
func (c *Client) ListRoles(ctx context.Context, opts ListOptions) ([]datatypes.Role, error) {
	return list[datatypes.Role](ctx, c, "list roles", "/roles", opts)
}

// ListTicketsForRequester returns one page of tickets the given actor
// opened, regardless of kind.
func (c *Client) ListTicketsForRequester(ctx context.Context, requesterID string, opts ListOptions) ([]datatypes.Ticket, error) {
	q := listQuery(opts)
	q.Set("requester_id", requesterID)
	payload, err := c.get(ctx, "list requester tickets", "/tickets", q)
	if err != nil {
		return nil, err
	}
	return decodeRecords[datatypes.Ticket](c.logger, "list requester tickets", payload)
}

// GetTicket fetches a single ticket by its internal identifier.
func (c *Client) GetTicket(ctx context.Context, id string) (*datatypes.Ticket, error) {
	var ticket datatypes.Ticket

	_, err := Retry(ctx, c.cfg.Retry, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/tickets/"+url.PathEscape(id), nil)
		if err != nil {
			return fmt.Errorf("get ticket: building request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.cfg.APIToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("get ticket: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			io.Copy(io.Discard, resp.Body)
			return &StatusError{Op: "get ticket", StatusCode: resp.StatusCode}
		}

		if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
			return fmt.Errorf("get ticket: decoding: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ticket.ID == "" {
		return nil, fmt.Errorf("get ticket: response missing identifier")
	}
	return &ticket, nil
}
