// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot builds and maintains the versioned local mirror of
// the remote platform's entity collections.
//
// A snapshot is rebuilt wholesale. Collections the actor can list
// directly are walked with offset pagination; collections the actor
// cannot list fall back to keyspace probing, one prefix query per
// alphabet character, with a shared seen set deduplicating the
// results. A section that fails is logged and left empty so the rest
// of the snapshot still builds.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/cache"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/datatypes"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/remote"
)

// BlobName is the store key under which the serialized snapshot lives.
const BlobName = "snapshot"

// ErrNilSource is returned when the builder is constructed without a
// remote source.
var ErrNilSource = errors.New("snapshot: source must not be nil")

// ErrNilStore is returned when the builder is constructed without a
// cache store.
var ErrNilStore = errors.New("snapshot: store must not be nil")

// Source is the slice of the remote client the builder consumes.
type Source interface {
	ListEmployees(ctx context.Context, opts remote.ListOptions) ([]datatypes.Employee, error)
	ListIncidents(ctx context.Context, opts remote.ListOptions) ([]datatypes.Ticket, error)
	ListServiceRequests(ctx context.Context, opts remote.ListOptions) ([]datatypes.Ticket, error)
	ListCategories(ctx context.Context, opts remote.ListOptions) ([]datatypes.Category, error)
	ListServices(ctx context.Context, opts remote.ListOptions) ([]datatypes.Service, error)
	ListTeams(ctx context.Context, opts remote.ListOptions) ([]datatypes.Team, error)
	ListDepartments(ctx context.Context, opts remote.ListOptions) ([]datatypes.Department, error)
	ListRoles(ctx context.Context, opts remote.ListOptions) ([]datatypes.Role, error)
	ListTicketsForRequester(ctx context.Context, requesterID string, opts remote.ListOptions) ([]datatypes.Ticket, error)
	GetTicket(ctx context.Context, id string) (*datatypes.Ticket, error)
}

// ProgressFunc receives build stage updates. Reported percentages are
// monotonically non-decreasing and the final call always carries the
// "complete" stage at 100, success or not.
type ProgressFunc func(stage string, percent int, message string)

// Config tunes the build.
type Config struct {
	// PageSize is the page size for offset pagination. Default: 100.
	PageSize int

	// MaxPages caps pages per direct listing. Default: 50.
	MaxPages int

	// MaxPagesPerProbe caps pages per prefix probe. Default: 5.
	MaxPagesPerProbe int

	// ProbeTrigger is the record count below which a successful direct
	// listing is treated as silently capped and supplemented by
	// keyspace probing. Default: 10.
	ProbeTrigger int

	// MaxRecords is the overall record cap across all probes of one
	// collection. Default: 5000.
	MaxRecords int

	// DetailConcurrency bounds concurrent ticket detail fetches.
	// Default: 5.
	DetailConcurrency int

	// DetailBatchDelay is the pause between detail fetch batches, kept
	// well under the remote rate limit. Default: 200ms.
	DetailBatchDelay time.Duration

	// MaxDetailPrefetch caps how many ticket details are warmed into
	// the cache per rebuild. Default: 200.
	MaxDetailPrefetch int

	// Freshness is how long a snapshot serves reads before a rebuild
	// is forced. Default: datatypes.FreshnessWindow.
	Freshness time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:          100,
		MaxPages:          50,
		MaxPagesPerProbe:  5,
		ProbeTrigger:      10,
		MaxRecords:        5000,
		DetailConcurrency: 5,
		DetailBatchDelay:  200 * time.Millisecond,
		MaxDetailPrefetch: 200,
		Freshness:         datatypes.FreshnessWindow,
	}
}

// Builder owns the snapshot lifecycle.
//
// Thread Safety: Safe for concurrent use. Rebuilds are serialized by
// an internal mutex; concurrent callers of Rebuild queue behind the
// running build rather than duplicating remote traffic.
type Builder struct {
	source Source
	store  *cache.Store
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewBuilder constructs a Builder.
func NewBuilder(source Source, store *cache.Store, cfg Config, logger *slog.Logger) (*Builder, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if store == nil {
		return nil, ErrNilStore
	}

	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.MaxPagesPerProbe <= 0 {
		cfg.MaxPagesPerProbe = def.MaxPagesPerProbe
	}
	if cfg.ProbeTrigger <= 0 {
		cfg.ProbeTrigger = def.ProbeTrigger
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = def.MaxRecords
	}
	if cfg.DetailConcurrency <= 0 {
		cfg.DetailConcurrency = def.DetailConcurrency
	}
	if cfg.DetailBatchDelay <= 0 {
		cfg.DetailBatchDelay = def.DetailBatchDelay
	}
	if cfg.MaxDetailPrefetch <= 0 {
		cfg.MaxDetailPrefetch = def.MaxDetailPrefetch
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = def.Freshness
	}

	return &Builder{
		source: source,
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Current returns a usable snapshot, rebuilding when the persisted one
// is absent, stale, or carries a different schema version.
//
// Inputs:
//
//	ctx - Controls cancellation of a rebuild, if one is needed.
//	actor - The actor whose capabilities scope the rebuild.
//	progress - Optional; receives stage updates when rebuilding.
//
// Outputs:
//
//	*datatypes.Snapshot - A snapshot at the current schema version,
//	no older than the freshness window.
//	error - Non-nil only when a needed rebuild produced nothing at all.
func (b *Builder) Current(ctx context.Context, actor datatypes.Actor, progress ProgressFunc) (*datatypes.Snapshot, error) {
	if snap := b.load(); snap != nil && snap.Usable(b.now()) && b.now().Sub(snap.LastUpdated) < b.cfg.Freshness {
		return snap, nil
	}
	return b.Rebuild(ctx, actor, progress)
}

// load reads the persisted snapshot, returning nil when absent or
// undecodable. A blob at a foreign schema version is discarded so the
// caller rebuilds instead of serving mismatched shapes.
func (b *Builder) load() *datatypes.Snapshot {
	raw, ok := b.store.GetBlob(BlobName)
	if !ok {
		return nil
	}

	var snap datatypes.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		b.logger.Warn("discarding undecodable snapshot blob", "error", err)
		b.store.DeleteBlob(BlobName)
		return nil
	}
	if snap.SchemaVersion != datatypes.CurrentSchemaVersion {
		b.logger.Info("discarding snapshot at foreign schema version",
			"found", snap.SchemaVersion, "want", datatypes.CurrentSchemaVersion)
		b.store.DeleteBlob(BlobName)
		return nil
	}
	return &snap
}

// Rebuild fetches every collection and persists a fresh snapshot.
//
// Description:
//
//	Sections are built independently: a section whose fetch fails is
//	logged and left empty while the remaining sections proceed. The
//	result is persisted even when partial, because a partial mirror
//	still grounds more answers than none. Ticket details for the
//	actor's visible tickets are warmed into the entry cache in bounded
//	concurrent batches.
func (b *Builder) Rebuild(ctx context.Context, actor datatypes.Actor, progress ProgressFunc) (*datatypes.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tracker := &progressTracker{fn: progress}
	defer tracker.report("complete", 100, "snapshot build finished")

	start := b.now()
	snap := &datatypes.Snapshot{SchemaVersion: datatypes.CurrentSchemaVersion}

	tracker.report("employees", 5, "listing employee directory")
	snap.Employees = buildSection(ctx, b, "employees", func() ([]datatypes.Employee, error) {
		return b.collectEmployees(ctx, actor)
	})

	tracker.report("tickets", 20, "collecting incidents and service requests")
	snap.Incidents, snap.ServiceRequests, snap.OwnRequesterTickets = b.collectTickets(ctx, actor)

	tracker.report("categories", 45, "listing categories")
	snap.Categories = buildSection(ctx, b, "categories", func() ([]datatypes.Category, error) {
		seen := make(map[string]struct{})
		return collectPaginated(ctx, b.source.ListCategories, b.cfg, seen)
	})

	tracker.report("services", 55, "listing services")
	snap.Services = buildSection(ctx, b, "services", func() ([]datatypes.Service, error) {
		seen := make(map[string]struct{})
		return collectPaginated(ctx, b.source.ListServices, b.cfg, seen)
	})

	tracker.report("teams", 65, "listing teams")
	snap.Teams = buildSection(ctx, b, "teams", func() ([]datatypes.Team, error) {
		seen := make(map[string]struct{})
		return collectPaginated(ctx, b.source.ListTeams, b.cfg, seen)
	})

	tracker.report("departments", 72, "listing departments")
	snap.Departments = buildSection(ctx, b, "departments", func() ([]datatypes.Department, error) {
		seen := make(map[string]struct{})
		return collectPaginated(ctx, b.source.ListDepartments, b.cfg, seen)
	})

	tracker.report("roles", 78, "listing roles")
	snap.Roles = buildSection(ctx, b, "roles", func() ([]datatypes.Role, error) {
		seen := make(map[string]struct{})
		return collectPaginated(ctx, b.source.ListRoles, b.cfg, seen)
	})

	tracker.report("details", 85, "warming ticket detail cache")
	b.prefetchDetails(ctx, snap)

	tracker.report("persist", 95, "persisting snapshot")
	now := b.now()
	snap.LastUpdated = now

	encoded, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := b.store.SetBlob(BlobName, encoded); err != nil {
		return nil, fmt.Errorf("snapshot: persist: %w", err)
	}
	for _, resource := range []string{"employees", "tickets", "categories", "services", "teams", "departments", "roles"} {
		if err := b.store.SetLastSync(actor.ID, resource, now); err != nil {
			b.logger.Warn("failed to record last sync", "resource", resource, "error", err)
		}
	}

	b.logger.Info("snapshot rebuilt",
		"employees", len(snap.Employees),
		"incidents", len(snap.Incidents),
		"service_requests", len(snap.ServiceRequests),
		"own_tickets", len(snap.OwnRequesterTickets),
		"duration", b.now().Sub(start))

	return snap, nil
}

// collectEmployees lists the directory. Actors without the all-users
// capability, privileged actors whose direct listing is refused, and
// privileged actors whose direct listing comes back suspiciously small
// go through keyspace probing.
func (b *Builder) collectEmployees(ctx context.Context, actor datatypes.Actor) ([]datatypes.Employee, error) {
	seen := make(map[string]struct{})

	if actor.Capabilities.CanViewAllUsers {
		employees, err := collectPaginated(ctx, b.source.ListEmployees, b.cfg, seen)
		switch {
		case err == nil && len(employees) >= b.cfg.ProbeTrigger:
			return employees, nil
		case err == nil:
			// A 200 with a handful of records is how the remote caps
			// an unfiltered listing. Probing recovers the rest; the
			// shared seen set keeps the direct results deduplicated.
			b.logger.Info("direct employee listing suspiciously small, probing keyspace",
				"actor", actor.ID, "collected", len(employees))
			probed, perr := collectProbed(ctx, b.source.ListEmployees, b.cfg, seen)
			return append(employees, probed...), perr
		case !isForbidden(err):
			return employees, err
		default:
			b.logger.Info("direct employee listing refused, probing keyspace", "actor", actor.ID)
		}
	}

	return collectProbed(ctx, b.source.ListEmployees, b.cfg, seen)
}

// collectTickets gathers incidents and service requests scoped to the
// actor's visibility, plus the actor's own requester tickets.
func (b *Builder) collectTickets(ctx context.Context, actor datatypes.Actor) (incidents, requests, own []datatypes.Ticket) {
	seen := make(map[string]struct{})

	if actor.Capabilities.CanViewAllTickets {
		incidents = buildSection(ctx, b, "incidents", func() ([]datatypes.Ticket, error) {
			return collectPaginated(ctx, b.source.ListIncidents, b.cfg, seen)
		})
		requests = buildSection(ctx, b, "service_requests", func() ([]datatypes.Ticket, error) {
			return collectPaginated(ctx, b.source.ListServiceRequests, b.cfg, seen)
		})
	}

	ownSeen := make(map[string]struct{})
	own = buildSection(ctx, b, "own_requester_tickets", func() ([]datatypes.Ticket, error) {
		return collectPaginated(ctx, func(ctx context.Context, opts remote.ListOptions) ([]datatypes.Ticket, error) {
			return b.source.ListTicketsForRequester(ctx, actor.ID, opts)
		}, b.cfg, ownSeen)
	})

	return incidents, requests, own
}

// prefetchDetails warms the entry cache with full ticket records in
// bounded concurrent batches.
func (b *Builder) prefetchDetails(ctx context.Context, snap *datatypes.Snapshot) {
	ids := make([]string, 0, b.cfg.MaxDetailPrefetch)
	for _, t := range snap.OwnRequesterTickets {
		ids = append(ids, t.ID)
	}
	for _, t := range snap.Incidents {
		ids = append(ids, t.ID)
	}
	for _, t := range snap.ServiceRequests {
		ids = append(ids, t.ID)
	}
	if len(ids) > b.cfg.MaxDetailPrefetch {
		ids = ids[:b.cfg.MaxDetailPrefetch]
	}

	for start := 0; start < len(ids); start += b.cfg.DetailConcurrency {
		if ctx.Err() != nil {
			return
		}
		end := start + b.cfg.DetailConcurrency
		if end > len(ids) {
			end = len(ids)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.cfg.DetailConcurrency)
		for _, id := range ids[start:end] {
			id := id
			g.Go(func() error {
				ticket, err := b.source.GetTicket(gctx, id)
				if err != nil {
					b.logger.Debug("ticket detail prefetch failed", "id", id, "error", err)
					return nil
				}
				b.store.Set(gctx, "ticket_detail", map[string]any{"id": id}, ticket)
				return nil
			})
		}
		g.Wait()

		if end < len(ids) {
			time.Sleep(b.cfg.DetailBatchDelay)
		}
	}
}

// buildSection runs one section fetch with fault isolation: an error
// keeps whatever was collected and moves on.
func buildSection[T any](ctx context.Context, b *Builder, name string, fetch func() ([]T, error)) []T {
	records, err := fetch()
	if err != nil && ctx.Err() == nil {
		b.logger.Warn("snapshot section failed, continuing with partial data",
			"section", name, "collected", len(records), "error", err)
	}
	return records
}

// isForbidden reports whether the remote refused the operation
// outright, which is the trigger for the probing fallback.
func isForbidden(err error) bool {
	var se *remote.StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusForbidden
}

// progressTracker clamps reported percentages so observers never see
// progress move backwards.
type progressTracker struct {
	fn   ProgressFunc
	last int
}

func (p *progressTracker) report(stage string, percent int, message string) {
	if p.fn == nil {
		return
	}
	if percent < p.last {
		percent = p.last
	}
	p.last = percent
	p.fn(stage, percent, message)
}
